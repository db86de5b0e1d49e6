package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/testutil"
	"gorm.io/gorm"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	be.Err(t, db.Model(model).Count(&n).Error, nil)
	return n
}

func TestInsertEmailsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewEmailRepository(db)

	emails := []*domain.Email{
		testutil.Email("acc", "m1", "t1", base),
		testutil.Email("acc", "m2", "t1", base.Add(time.Minute)),
	}
	emails[0].Attachments = []domain.Attachment{{PartID: "1", Filename: "a.pdf", MimeType: "application/pdf"}}

	newIDs, err := repo.InsertEmails(ctx, "acc", emails, "")
	be.Err(t, err, nil)
	be.Equal(t, newIDs, []string{"m1", "m2"})

	be.Err(t, repo.MarkAsRead(ctx, "acc", []string{"m1"}), nil)

	newIDs, err = repo.InsertEmails(ctx, "acc", emails, "")
	be.Err(t, err, nil)
	be.Equal(t, len(newIDs), 0)

	be.Equal(t, count(t, db, &domain.Email{}), int64(2))
	be.Equal(t, count(t, db, &domain.EmailBody{}), int64(2))
	be.Equal(t, count(t, db, &domain.Attachment{}), int64(1))

	got, err := repo.FindByID(ctx, "m1")
	be.Err(t, err, nil)
	be.True(t, !got.Unread)
	be.Equal(t, got.Body.Plain, "Hello from m1")
	be.Equal(t, len(got.Attachments), 1)
}

func TestInsertEmailsReportsOnlyNewIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewEmailRepository(testutil.NewDB(t))

	_, err := repo.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m1", "t1", base)}, "")
	be.Err(t, err, nil)

	newIDs, err := repo.InsertEmails(ctx, "acc", []*domain.Email{
		testutil.Email("acc", "m1", "t1", base),
		testutil.Email("acc", "m2", "t2", base),
		testutil.Email("acc", "m2", "t2", base),
	}, "")
	be.Err(t, err, nil)
	be.Equal(t, newIDs, []string{"m2"})
}

func TestInsertEmailsBodyIsImmutable(t *testing.T) {
	ctx := context.Background()
	repo := NewEmailRepository(testutil.NewDB(t))

	first := testutil.Email("acc", "m1", "t1", base)
	_, err := repo.InsertEmails(ctx, "acc", []*domain.Email{first}, "")
	be.Err(t, err, nil)

	second := testutil.Email("acc", "m1", "t1", base)
	second.Body.Plain = "rewritten"
	_, err = repo.InsertEmails(ctx, "acc", []*domain.Email{second}, "")
	be.Err(t, err, nil)

	got, err := repo.FindByID(ctx, "m1")
	be.Err(t, err, nil)
	be.Equal(t, got.Body.Plain, "Hello from m1")
}

func TestInsertEmailsInvalidatesThreadSummary(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewEmailRepository(db)
	summaries := NewSummaryRepository(db)

	_, err := repo.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m1", "t1", base)}, "")
	be.Err(t, err, nil)
	be.Err(t, summaries.SaveSummary(ctx, "acc", "t1", "old summary"), nil)
	be.Err(t, summaries.SaveSummary(ctx, "acc", "t2", "other thread"), nil)
	be.Err(t, summaries.SaveSummary(ctx, "other", "t1", "other account"), nil)

	_, err = repo.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m2", "t1", base.Add(time.Hour))}, "")
	be.Err(t, err, nil)

	gone, err := summaries.GetSummary(ctx, "acc", "t1")
	be.Err(t, err, nil)
	be.True(t, gone == nil)

	kept, err := summaries.GetSummary(ctx, "acc", "t2")
	be.Err(t, err, nil)
	be.Equal(t, kept.Summary, "other thread")

	// same thread id under another account is a separate entry
	foreign, err := summaries.GetSummary(ctx, "other", "t1")
	be.Err(t, err, nil)
	be.Equal(t, foreign.Summary, "other account")
}

func TestSummariesAreKeyedByAccountAndThread(t *testing.T) {
	ctx := context.Background()
	summaries := NewSummaryRepository(testutil.NewDB(t))

	be.Err(t, summaries.SaveSummary(ctx, "a", "t1", "first"), nil)
	be.Err(t, summaries.SaveSummary(ctx, "b", "t1", "second"), nil)
	be.Err(t, summaries.SaveSummary(ctx, "a", "t1", "updated"), nil)

	a, err := summaries.GetSummary(ctx, "a", "t1")
	be.Err(t, err, nil)
	be.Equal(t, a.Summary, "updated")
	b, err := summaries.GetSummary(ctx, "b", "t1")
	be.Err(t, err, nil)
	be.Equal(t, b.Summary, "second")

	got, err := summaries.GetSummaries(ctx, "b", []string{"t1", "t9"})
	be.Err(t, err, nil)
	be.Equal(t, got, map[string]string{"t1": "second"})
}

func TestInsertEmailsCheckpointsPageToken(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewEmailRepository(db)
	states := NewSyncStateRepository(db)

	_, err := repo.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m1", "t1", base)}, "page-2")
	be.Err(t, err, nil)

	state, err := states.Get(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, state.LastSyncPageToken, "page-2")
	be.True(t, !state.InitialSyncComplete)

	_, err = repo.InsertEmails(ctx, "acc", nil, "page-3")
	be.Err(t, err, nil)
	state, err = states.Get(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, state.LastSyncPageToken, "page-3")
	be.Equal(t, count(t, db, &domain.SyncState{}), int64(1))
}

func TestInsertEmailsRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewEmailRepository(db)

	be.Err(t, db.Migrator().DropTable(&domain.Attachment{}), nil)

	e := testutil.Email("acc", "m1", "t1", base)
	e.Attachments = []domain.Attachment{{PartID: "1", Filename: "x"}}
	_, err := repo.InsertEmails(ctx, "acc", []*domain.Email{e}, "tok")
	be.True(t, err != nil)

	be.Equal(t, count(t, db, &domain.Email{}), int64(0))
	be.Equal(t, count(t, db, &domain.SyncState{}), int64(0))
}

func TestDeleteEmailsCascades(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewEmailRepository(db)
	vectors := NewEmbeddingRepository(db)
	results := NewMiddlewareResultRepository(db)

	e := testutil.Email("acc", "m1", "t1", base)
	e.Attachments = []domain.Attachment{{PartID: "1", Filename: "a.txt"}}
	_, err := repo.InsertEmails(ctx, "acc", []*domain.Email{e, testutil.Email("acc", "m2", "t2", base)}, "")
	be.Err(t, err, nil)
	be.Err(t, vectors.Upsert(ctx, "acc", "m1", []float32{1, 0}), nil)
	be.Err(t, results.Save(ctx, "extract-otp", "m1", []byte(`{"code":"1"}`)), nil)

	be.Err(t, repo.DeleteEmails(ctx, []string{"m1"}), nil)

	be.Equal(t, count(t, db, &domain.Email{}), int64(1))
	be.Equal(t, count(t, db, &domain.EmailBody{}), int64(1))
	be.Equal(t, count(t, db, &domain.Attachment{}), int64(0))
	be.Equal(t, count(t, db, &domain.EmbeddingRecord{}), int64(0))
	be.Equal(t, count(t, db, &domain.MiddlewareResult{}), int64(0))
}

func TestNewestEmailDateAndCounts(t *testing.T) {
	ctx := context.Background()
	repo := NewEmailRepository(testutil.NewDB(t))

	none, err := repo.NewestEmailDate(ctx, "acc")
	be.Err(t, err, nil)
	be.True(t, none == nil)

	older := testutil.Email("acc", "m1", "t1", base)
	older.HistoryID = 10
	newer := testutil.Email("acc", "m2", "t2", base.Add(48*time.Hour))
	newer.HistoryID = 20
	other := testutil.Email("other", "m3", "t3", base.Add(96*time.Hour))
	_, err = repo.InsertEmails(ctx, "acc", []*domain.Email{older, newer}, "")
	be.Err(t, err, nil)
	_, err = repo.InsertEmails(ctx, "other", []*domain.Email{other}, "")
	be.Err(t, err, nil)

	newest, err := repo.NewestEmailDate(ctx, "acc")
	be.Err(t, err, nil)
	be.True(t, newest.Equal(base.Add(48*time.Hour)))

	maxHistory, err := repo.MaxHistoryID(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, maxHistory, uint64(20))

	unread, err := repo.UnreadCount(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, unread, int64(2))
}

func TestArchiveAndLabels(t *testing.T) {
	ctx := context.Background()
	repo := NewEmailRepository(testutil.NewDB(t))
	_, err := repo.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m1", "t1", base)}, "")
	be.Err(t, err, nil)

	be.Err(t, repo.ArchiveThreads(ctx, "acc", []string{"t1"}), nil)
	got, err := repo.FindByID(ctx, "m1")
	be.Err(t, err, nil)
	be.Equal(t, got.Folder, domain.FolderArchive)

	be.Err(t, repo.UpdateLabels(ctx, "m1", domain.StringArray{"INBOX", "TRASH"}), nil)
	got, err = repo.FindByID(ctx, "m1")
	be.Err(t, err, nil)
	be.Equal(t, got.Folder, domain.FolderTrash)
	be.True(t, !got.Unread)

	list, total, err := repo.List(ctx, "acc", domain.FolderTrash, 10, 0)
	be.Err(t, err, nil)
	be.Equal(t, total, int64(1))
	be.Equal(t, list[0].ID, "m1")
}

func TestAttachmentLookups(t *testing.T) {
	ctx := context.Background()
	repo := NewEmailRepository(testutil.NewDB(t))

	e := testutil.Email("acc", "m1", "t1", base)
	e.Attachments = []domain.Attachment{{PartID: "2", AttachmentID: "att-1", Filename: "logo.png", MimeType: "image/png", ContentID: "logo@x"}}
	_, err := repo.InsertEmails(ctx, "acc", []*domain.Email{e}, "")
	be.Err(t, err, nil)

	be.Err(t, repo.SaveAttachmentData(ctx, "m1", "2", []byte("png")), nil)

	att, err := repo.GetAttachmentByContentID(ctx, "acc", "logo@x")
	be.Err(t, err, nil)
	be.Equal(t, att.PartID, "2")
	be.Equal(t, att.Data, []byte("png"))

	none, err := repo.GetAttachmentByContentID(ctx, "other", "logo@x")
	be.Err(t, err, nil)
	be.True(t, none == nil)

	thread, err := repo.GetThread(ctx, "acc", "t1")
	be.Err(t, err, nil)
	be.Equal(t, len(thread[0].Attachments), 1)
	be.Equal(t, len(thread[0].Attachments[0].Data), 0)
}
