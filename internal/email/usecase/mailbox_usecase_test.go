package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/repository"
	"github.com/usemox/mox/internal/testutil"
	"github.com/usemox/mox/pkg/logger"
)

type mailboxFixture struct {
	*ingestFixture
	provider *testutil.Provider
	mailbox  MailboxUsecase
}

func newMailboxFixture(t *testing.T) *mailboxFixture {
	t.Helper()
	f := newIngestFixture(t)
	provider := testutil.NewProvider()
	mailbox := NewMailboxUsecase(f.emails, repository.NewMiddlewareResultRepository(f.db),
		testutil.Resolver{"acc": provider}, f.ingest, "", logger.Discard())
	return &mailboxFixture{ingestFixture: f, provider: provider, mailbox: mailbox}
}

func (f *mailboxFixture) store(t *testing.T, emails ...*domain.Email) {
	t.Helper()
	_, err := f.ingest.InsertEmails(context.Background(), "acc", emails)
	be.Err(t, err, nil)
}

func TestGetEmailHidesOtherAccounts(t *testing.T) {
	ctx := context.Background()
	f := newMailboxFixture(t)
	testutil.Account(t, f.db, "other", "other@example.com", 0)
	_, err := f.ingest.InsertEmails(ctx, "other", []*domain.Email{testutil.Email("other", "x1", "tx", base)})
	be.Err(t, err, nil)

	_, err = f.mailbox.GetEmail(ctx, "acc", "x1")
	be.Err(t, err, domain.ErrEmailNotFound)
	_, err = f.mailbox.GetEmail(ctx, "acc", "nope")
	be.Err(t, err, domain.ErrEmailNotFound)
}

func TestGetThreadRewritesInlineImages(t *testing.T) {
	ctx := context.Background()
	f := newMailboxFixture(t)
	e := testutil.Email("acc", "m1", "t1", base)
	e.Body.HTML = `<p>Logo</p><img src="cid:logo@mail"><img src='cid:x'>`
	f.store(t, e, testutil.Email("acc", "m2", "t1", base.Add(-time.Hour)))

	thread, err := f.mailbox.GetThread(ctx, "acc", "t1")
	be.Err(t, err, nil)
	be.Equal(t, len(thread), 2)
	be.Equal(t, thread[0].ID, "m2")
	be.Equal(t, thread[1].Body.HTML, `<p>Logo</p><img src="/api/attachments/cid/logo@mail"><img src='/api/attachments/cid/x'>`)

	_, err = f.mailbox.GetThread(ctx, "acc", "missing")
	be.Err(t, err, domain.ErrEmailNotFound)
}

func TestMarkAsReadUpdatesLocalAndProvider(t *testing.T) {
	ctx := context.Background()
	f := newMailboxFixture(t)
	f.store(t, testutil.Email("acc", "m1", "t1", base))

	be.Err(t, f.mailbox.MarkAsRead(ctx, "acc", []string{"m1"}), nil)

	got, err := f.mailbox.GetEmail(ctx, "acc", "m1")
	be.Err(t, err, nil)
	be.True(t, !got.Unread)
	be.Equal(t, f.provider.Labels, []testutil.LabelChange{{IDs: []string{"m1"}, Remove: []string{"UNREAD"}}})

	n, err := f.mailbox.UnreadCount(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, n, int64(0))
}

func TestModifyLabelsRefoldersMessage(t *testing.T) {
	ctx := context.Background()
	f := newMailboxFixture(t)
	f.store(t, testutil.Email("acc", "m1", "t1", base))

	be.Err(t, f.mailbox.ModifyLabels(ctx, "acc", []string{"m1"}, []string{"TRASH"}, []string{"INBOX"}), nil)

	got, err := f.mailbox.GetEmail(ctx, "acc", "m1")
	be.Err(t, err, nil)
	be.Equal(t, got.Folder, domain.FolderTrash)
	be.Equal(t, []string(got.Labels), []string{"UNREAD", "TRASH"})
}

func TestArchiveThreads(t *testing.T) {
	ctx := context.Background()
	f := newMailboxFixture(t)
	f.store(t, testutil.Email("acc", "m1", "t1", base), testutil.Email("acc", "m2", "t1", base))

	be.Err(t, f.mailbox.ArchiveThreads(ctx, "acc", []string{"t1"}), nil)

	list, total, err := f.mailbox.ListEmails(ctx, "acc", domain.FolderArchive, 10, 0)
	be.Err(t, err, nil)
	be.Equal(t, total, int64(2))
	be.Equal(t, len(list), 2)
}

func TestGetAttachmentDownloadsLazily(t *testing.T) {
	ctx := context.Background()
	f := newMailboxFixture(t)
	e := testutil.Email("acc", "m1", "t1", base)
	e.Attachments = []domain.Attachment{{PartID: "2", AttachmentID: "att-1", Filename: "logo.png", MimeType: "image/png", ContentID: "logo"}}
	f.store(t, e)
	f.provider.Attachments["att-1"] = []byte("png-bytes")

	att, err := f.mailbox.GetAttachment(ctx, "acc", "m1", "2")
	be.Err(t, err, nil)
	be.Equal(t, string(att.Data), "png-bytes")

	// the second read is served from the store
	delete(f.provider.Attachments, "att-1")
	att, err = f.mailbox.GetAttachmentByContentID(ctx, "acc", "logo")
	be.Err(t, err, nil)
	be.Equal(t, string(att.Data), "png-bytes")

	_, err = f.mailbox.GetAttachment(ctx, "acc", "m1", "9")
	be.Err(t, err, domain.ErrAttachmentNotFound)
}

func TestSendEmailStoresSentMessage(t *testing.T) {
	ctx := context.Background()
	f := newMailboxFixture(t)
	sent := testutil.Email("acc", "s1", "t9", base)
	sent.Labels = domain.StringArray{"SENT"}
	sent.Unread = false
	f.provider.SentID = "s1"
	f.provider.Messages["s1"] = sent

	got, err := f.mailbox.SendEmail(ctx, "acc", &domain.OutgoingEmail{To: []string{"bob@example.com"}, Subject: "Hi", Plain: "Hello"})
	be.Err(t, err, nil)
	be.Equal(t, got.ID, "s1")
	be.Equal(t, len(f.provider.Sent), 1)

	stored, err := f.mailbox.GetEmail(ctx, "acc", "s1")
	be.Err(t, err, nil)
	be.Equal(t, stored.Folder, domain.FolderSent)
}

func TestInsightsListsStageResults(t *testing.T) {
	ctx := context.Background()
	f := newMailboxFixture(t)
	f.store(t, testutil.Email("acc", "m1", "t1", base))
	be.Err(t, repository.NewMiddlewareResultRepository(f.db).Save(ctx, "extract-otp", "m1", []byte(`{"code":"1234"}`)), nil)

	results, err := f.mailbox.Insights(ctx, "acc", "m1")
	be.Err(t, err, nil)
	be.Equal(t, len(results), 1)
	be.Equal(t, string(results[0].Result), `{"code":"1234"}`)
}
