package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	accountrepo "github.com/usemox/mox/internal/account/repository"
	"github.com/usemox/mox/internal/email/domain"
	"github.com/usemox/mox/internal/email/repository"
	"github.com/usemox/mox/internal/testutil"
	"github.com/usemox/mox/pkg/events"
	"github.com/usemox/mox/pkg/logger"
	"gorm.io/gorm"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type dispatchRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (d *dispatchRecorder) Dispatch(emails []*domain.Email) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for _, e := range emails {
		ids = append(ids, e.ID)
	}
	d.calls = append(d.calls, ids)
}

type vectorRecorder struct {
	ids []string
	err error
}

func (v *vectorRecorder) Delete(_ context.Context, ids ...string) error {
	v.ids = append(v.ids, ids...)
	return v.err
}

type ingestFixture struct {
	db       *gorm.DB
	bus      *events.Bus
	derived  *dispatchRecorder
	vectors  *vectorRecorder
	ingest   IngestUsecase
	emails   repository.EmailRepository
	accounts accountrepo.AccountRepository
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.Account(t, db, "acc", "me@example.com", 0)
	f := &ingestFixture{
		db:       db,
		bus:      events.NewBus(logger.Discard()),
		derived:  &dispatchRecorder{},
		vectors:  &vectorRecorder{},
		emails:   repository.NewEmailRepository(db),
		accounts: accountrepo.NewAccountRepository(db),
	}
	f.ingest = NewIngestUsecase(f.emails, f.accounts, f.bus, f.derived, f.vectors, logger.Discard())
	return f
}

func TestInsertEmailsAnnouncesOnlyNewMail(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)
	ch, unsub := events.Chan(f.bus, events.NewEmailsTopic, 4)
	defer unsub()

	first := testutil.Email("acc", "m1", "t1", base)
	newIDs, err := f.ingest.InsertEmails(ctx, "acc", []*domain.Email{first})
	be.Err(t, err, nil)
	be.Equal(t, newIDs, []string{"m1"})

	ev := <-ch
	be.Equal(t, ev.AccountID, "acc")
	be.Equal(t, len(ev.Emails), 1)
	be.Equal(t, ev.Emails[0].ID, "m1")

	// redelivery of m1 alongside a new m2
	newIDs, err = f.ingest.InsertEmails(ctx, "acc", []*domain.Email{
		testutil.Email("acc", "m1", "t1", base),
		testutil.Email("acc", "m2", "t1", base.Add(time.Minute)),
	})
	be.Err(t, err, nil)
	be.Equal(t, newIDs, []string{"m2"})

	ev = <-ch
	be.Equal(t, len(ev.Emails), 1)
	be.Equal(t, ev.Emails[0].ID, "m2")
	be.Equal(t, f.derived.calls, [][]string{{"m1"}, {"m2"}})

	// nothing new, nothing announced
	_, err = f.ingest.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m2", "t1", base)})
	be.Err(t, err, nil)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
	be.Equal(t, len(f.derived.calls), 2)
}

func TestInsertEmailsDerivesFolderFromLabels(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)

	sent := testutil.Email("acc", "m1", "t1", base)
	sent.Labels = domain.StringArray{"SENT"}
	sent.Folder = domain.FolderInbox
	archived := testutil.Email("acc", "m2", "t2", base)
	archived.Labels = domain.StringArray{"IMPORTANT"}

	_, err := f.ingest.InsertEmails(ctx, "acc", []*domain.Email{sent, archived})
	be.Err(t, err, nil)

	got, err := f.emails.FindByID(ctx, "m1")
	be.Err(t, err, nil)
	be.Equal(t, got.Folder, domain.FolderSent)
	got, err = f.emails.FindByID(ctx, "m2")
	be.Err(t, err, nil)
	be.Equal(t, got.Folder, domain.FolderArchive)
}

func TestInsertEmailsAdvancesWatermarkForwardOnly(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)

	e1 := testutil.Email("acc", "m1", "t1", base)
	e1.HistoryID = 500
	e2 := testutil.Email("acc", "m2", "t2", base)
	e2.HistoryID = 300
	_, err := f.ingest.InsertEmails(ctx, "acc", []*domain.Email{e1, e2})
	be.Err(t, err, nil)

	acc, err := f.accounts.FindByID(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, acc.HistoryID, uint64(500))

	older := testutil.Email("acc", "m3", "t3", base)
	older.HistoryID = 100
	_, err = f.ingest.InsertEmails(ctx, "acc", []*domain.Email{older})
	be.Err(t, err, nil)

	acc, err = f.accounts.FindByID(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, acc.HistoryID, uint64(500))
}

func TestInsertPageCheckpointsToken(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)

	_, err := f.ingest.InsertPage(ctx, "acc", []*domain.Email{testutil.Email("acc", "m1", "t1", base)}, "page-2")
	be.Err(t, err, nil)

	state, err := repository.NewSyncStateRepository(f.db).Get(ctx, "acc")
	be.Err(t, err, nil)
	be.Equal(t, state.LastSyncPageToken, "page-2")
}

func TestInsertEmailsEmptyIsNoop(t *testing.T) {
	f := newIngestFixture(t)
	newIDs, err := f.ingest.InsertEmails(context.Background(), "acc", nil)
	be.Err(t, err, nil)
	be.Equal(t, len(newIDs), 0)
	be.Equal(t, len(f.derived.calls), 0)
}

func TestDeleteEmailsCascadesAndMirrors(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)
	_, err := f.ingest.InsertEmails(ctx, "acc", []*domain.Email{testutil.Email("acc", "m1", "t1", base)})
	be.Err(t, err, nil)
	be.Err(t, repository.NewEmbeddingRepository(f.db).Upsert(ctx, "acc", "m1", []float32{1, 2}), nil)
	be.Err(t, repository.NewMiddlewareResultRepository(f.db).Save(ctx, "extract-otp", "m1", []byte(`{}`)), nil)

	f.vectors.err = errors.New("chroma down")
	be.Err(t, f.ingest.DeleteEmails(ctx, []string{"m1", "missing"}), nil)

	got, err := f.emails.FindByID(ctx, "m1")
	be.Err(t, err, nil)
	be.True(t, got == nil)

	var n int64
	be.Err(t, f.db.Model(&domain.EmbeddingRecord{}).Count(&n).Error, nil)
	be.Equal(t, n, int64(0))
	be.Err(t, f.db.Model(&domain.MiddlewareResult{}).Count(&n).Error, nil)
	be.Equal(t, n, int64(0))
	be.Err(t, f.db.Model(&domain.EmailBody{}).Count(&n).Error, nil)
	be.Equal(t, n, int64(0))
	be.Equal(t, f.vectors.ids, []string{"m1", "missing"})
}
