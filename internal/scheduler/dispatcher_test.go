package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/requestid"
	"github.com/google/uuid"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestRepo(t *testing.T) *sqlite.ScheduledActionRepository {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "dispatch.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewScheduledActionRepository(db)
}

func seed(t *testing.T, repo *sqlite.ScheduledActionRepository, scope domain.Scope, date, clock string) *domain.ScheduledAction {
	t.Helper()
	a := &domain.ScheduledAction{
		ID:            uuid.NewString(),
		TenantID:      scope.TenantID,
		OwnerID:       scope.OwnerID,
		SubjectUserID: "user-" + date,
		Config:        domain.TemplateConfig("standard"),
		Status:        domain.StatusScheduled,
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.Reschedule(date, clock, "UTC"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	created, err := repo.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return created
}

// claimingRunner claims through the store like the real execute path and
// records which records it got.
type claimingRunner struct {
	repo *sqlite.ScheduledActionRepository

	mu      sync.Mutex
	ran     []string
	scopes  []domain.Scope
	reqIDs  []string
	failFor string
}

func (r *claimingRunner) Execute(ctx context.Context, scope domain.Scope, id string) (*domain.ScheduledAction, error) {
	if id == r.failFor {
		return nil, errors.New("database is locked")
	}
	a, err := r.repo.Claim(ctx, scope, id, time.Now())
	if err != nil {
		return nil, err
	}
	if err := r.repo.Finish(ctx, id, Aggregate(nil, nil, time.Now())); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.ran = append(r.ran, id)
	r.scopes = append(r.scopes, scope)
	r.reqIDs = append(r.reqIDs, requestid.FromContext(ctx))
	r.mu.Unlock()
	return a, nil
}

func TestNewDispatcher_RejectsBadSpec(t *testing.T) {
	if _, err := NewDispatcher(newTestRepo(t), &claimingRunner{}, testLogger, "every now and then", 10, 1); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestDispatch_RunsOnlyDueRecordsWithTheirScope(t *testing.T) {
	repo := newTestRepo(t)
	a := domain.Scope{TenantID: "t1", OwnerID: "o1"}
	b := domain.Scope{TenantID: "t2", OwnerID: "o2"}

	dueA := seed(t, repo, a, "2025-01-01", "09:00")
	dueB := seed(t, repo, b, "2025-01-02", "09:00")
	future := seed(t, repo, a, "2999-01-01", "09:00")

	runner := &claimingRunner{repo: repo}
	d, err := NewDispatcher(repo, runner, testLogger, "@every 1m", 10, 1)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	d.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	d.dispatch(context.Background())

	// concurrency 1 keeps the dispatch order observable
	if len(runner.ran) != 2 || runner.ran[0] != dueA.ID || runner.ran[1] != dueB.ID {
		t.Fatalf("ran = %v, want [%s %s]", runner.ran, dueA.ID, dueB.ID)
	}
	if runner.scopes[0] != a || runner.scopes[1] != b {
		t.Errorf("scopes = %v", runner.scopes)
	}
	if runner.reqIDs[0] == "" || runner.reqIDs[0] == runner.reqIDs[1] {
		t.Errorf("each run needs its own request id, got %v", runner.reqIDs)
	}

	got, err := repo.GetByID(context.Background(), a, future.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusScheduled {
		t.Errorf("future record status = %s, want scheduled", got.Status)
	}

	// A second pass finds nothing left to do.
	d.dispatch(context.Background())
	if len(runner.ran) != 2 {
		t.Errorf("second pass re-ran records: %v", runner.ran)
	}
}

func TestDispatch_ManualClaimWinsAndDueCheckSkips(t *testing.T) {
	repo := newTestRepo(t)
	scope := domain.Scope{TenantID: "t1", OwnerID: "o1"}
	rec := seed(t, repo, scope, "2025-01-01", "09:00")

	// Manual trigger claims between listing and execution.
	if _, err := repo.Claim(context.Background(), scope, rec.ID, time.Now()); err != nil {
		t.Fatalf("manual claim: %v", err)
	}

	runner := &claimingRunner{repo: repo}
	d, _ := NewDispatcher(repo, runner, testLogger, "@every 1m", 10, 2)
	d.run(context.Background(), rec)

	if len(runner.ran) != 0 {
		t.Errorf("due-check executed an already claimed record: %v", runner.ran)
	}
}

func TestDispatch_ErrorOnOneRecordDoesNotStopOthers(t *testing.T) {
	repo := newTestRepo(t)
	scope := domain.Scope{TenantID: "t1", OwnerID: "o1"}
	broken := seed(t, repo, scope, "2025-01-01", "09:00")
	fine := seed(t, repo, scope, "2025-01-02", "09:00")

	runner := &claimingRunner{repo: repo, failFor: broken.ID}
	d, _ := NewDispatcher(repo, runner, testLogger, "@every 1m", 10, 4)
	d.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	d.dispatch(context.Background())

	if len(runner.ran) != 1 || runner.ran[0] != fine.ID {
		t.Errorf("ran = %v, want [%s]", runner.ran, fine.ID)
	}
}

func TestDispatcher_StartStopsOnCancel(t *testing.T) {
	d, err := NewDispatcher(newTestRepo(t), &claimingRunner{}, testLogger, "@every 1h", 10, 1)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func TestReap_FailsStaleExecutions(t *testing.T) {
	repo := newTestRepo(t)
	scope := domain.Scope{TenantID: "t1", OwnerID: "o1"}
	stuck := seed(t, repo, scope, "2025-01-01", "09:00")
	running := seed(t, repo, scope, "2025-01-02", "09:00")

	if _, err := repo.Claim(context.Background(), scope, stuck.ID, time.Now().Add(-2*time.Hour)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := repo.Claim(context.Background(), scope, running.ID, time.Now()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	NewReaper(repo, testLogger, time.Minute, time.Hour).reap(context.Background())

	got, _ := repo.GetByID(context.Background(), scope, stuck.ID)
	if got.Status != domain.StatusFailed || got.FailureReason == nil || *got.FailureReason != InterruptedReason {
		t.Errorf("stuck record = %s / %v", got.Status, got.FailureReason)
	}
	got, _ = repo.GetByID(context.Background(), scope, running.ID)
	if got.Status != domain.StatusExecuting {
		t.Errorf("running record status = %s, want executing", got.Status)
	}
}
