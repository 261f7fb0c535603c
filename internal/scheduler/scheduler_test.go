package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/executor"
	"github.com/chatvault/chatvault/internal/gateway"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/registry"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/validator"
)

// flakyExecutor fails a configured number of times before delegating to
// the fixture executor.
type flakyExecutor struct {
	remaining atomic.Int32
	inner     executor.Executor
}

func (f *flakyExecutor) Extract(ctx context.Context, cred models.Credential, params map[string]any) (models.RawPayload, error) {
	if f.remaining.Add(-1) >= 0 {
		return nil, errs.New(errs.KindProviderUnavailable, "upstream flapping")
	}
	return f.inner.Extract(ctx, cred, params)
}

func (f *flakyExecutor) PollForNew(ctx context.Context, cred models.Credential, since time.Time) (models.RawPayload, error) {
	return f.inner.PollForNew(ctx, cred, since)
}

type fixture struct {
	reg   *registry.Registry
	gw    *gateway.Gateway
	val   *validator.Validator
	st    *store.Memory
	sched *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	reg.RegisterFixtures()

	gw := gateway.New(reg, 2*time.Second, nil)
	val := validator.New(reg, time.Hour, 100, time.Minute, nil)
	st := store.NewMemory()
	return &fixture{
		reg:   reg,
		gw:    gw,
		val:   val,
		st:    st,
		sched: New(gw, val, st, 3, time.Millisecond, nil),
	}
}

func (f *fixture) validated(t *testing.T, provider, field, value string) models.Credential {
	t.Helper()
	cred := models.Credential{Provider: provider, Secrets: map[string]string{field: value}}
	if _, err := f.val.Validate(context.Background(), cred); err != nil {
		t.Fatalf("credential validation failed: %v", err)
	}
	return cred
}

func waitTerminal(t *testing.T, s *Scheduler, id string) models.ExtractionJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := s.Wait(ctx, id)
	if err != nil {
		t.Fatalf("job %s did not finish: %v", id, err)
	}
	return snap
}

func TestJobRunsToCompletion(t *testing.T) {
	f := newFixture(t)
	cred := f.validated(t, "claude", "session_cookie", "cookie-1")

	job, err := f.sched.Submit(context.Background(), "extract_claude_conversations", cred,
		map[string]any{"session_cookie": "cookie-1"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.State != models.JobQueued {
		t.Errorf("freshly submitted job should be queued, got %s", job.State)
	}

	snap := waitTerminal(t, f.sched, job.ID)
	if snap.State != models.JobSucceeded {
		t.Fatalf("expected succeeded, got %s (%+v)", snap.State, snap.Error)
	}
	if snap.Progress != 100 {
		t.Errorf("completed job should report progress 100, got %d", snap.Progress)
	}
	if snap.Result == nil {
		t.Fatal("succeeded job should carry a result")
	}
	if snap.Result.Metadata.TotalConversations != 1 {
		t.Errorf("claude fixture has 1 conversation, metadata says %d", snap.Result.Metadata.TotalConversations)
	}
	if len(snap.Result.Conversations) != 1 {
		t.Fatalf("expected 1 normalized conversation, got %d", len(snap.Result.Conversations))
	}
	if snap.Result.Conversations[0].Title != "System Architecture Discussion" {
		t.Errorf("unexpected title %q", snap.Result.Conversations[0].Title)
	}

	// Results land in the store.
	stored, err := f.st.GetConversation(context.Background(), snap.Result.Conversations[0].ID)
	if err != nil {
		t.Fatalf("conversation not stored: %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Errorf("expected 2 stored messages, got %d", len(stored.Messages))
	}
}

func TestSubmitRejectsUnvalidatedCredential(t *testing.T) {
	f := newFixture(t)
	cred := models.Credential{Provider: "chatgpt", Secrets: map[string]string{"session_token": "never-validated"}}

	// The rejection is synchronous: no job, no slot, nothing to poll.
	_, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred,
		map[string]any{"session_token": "never-validated"})
	if !errs.IsKind(err, errs.KindCredentialsNotValidated) {
		t.Fatalf("expected credentials_not_validated, got %v", err)
	}
	if jobs := f.sched.List(); len(jobs) != 0 {
		t.Errorf("rejected submit must not create a job, got %d", len(jobs))
	}

	// Validating first makes the same submit work.
	if _, err := f.val.Validate(context.Background(), cred); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	job, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred,
		map[string]any{"session_token": "never-validated"})
	if err != nil {
		t.Fatalf("submit after validation should work: %v", err)
	}
	if snap := waitTerminal(t, f.sched, job.ID); snap.State != models.JobSucceeded {
		t.Errorf("expected succeeded after validation, got %s", snap.State)
	}
}

func TestDuplicateSubmitRejected(t *testing.T) {
	f := newFixture(t)
	slow := executor.NewFixture("chatgpt")
	slow.Delay = 300 * time.Millisecond
	if err := f.reg.RegisterExecutor("chatgpt", slow); err != nil {
		t.Fatalf("RegisterExecutor failed: %v", err)
	}
	cred := f.validated(t, "chatgpt", "session_token", "tok-1")
	params := map[string]any{"session_token": "tok-1"}

	first, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred, params)
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}

	_, err = f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred, params)
	if !errs.IsKind(err, errs.KindJobAlreadyRunning) {
		t.Fatalf("expected job_already_running, got %v", err)
	}

	// A different credential for the same provider is its own slot.
	other := f.validated(t, "chatgpt", "session_token", "tok-2")
	if _, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", other,
		map[string]any{"session_token": "tok-2"}); err != nil {
		t.Errorf("different fingerprint should not be blocked: %v", err)
	}

	waitTerminal(t, f.sched, first.ID)

	// Terminal job releases the slot.
	if _, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred, params); err != nil {
		t.Errorf("submit after completion should work: %v", err)
	}
}

func TestConcurrentSubmitsAdmitExactlyOne(t *testing.T) {
	f := newFixture(t)
	slow := executor.NewFixture("chatgpt")
	slow.Delay = 200 * time.Millisecond
	if err := f.reg.RegisterExecutor("chatgpt", slow); err != nil {
		t.Fatalf("RegisterExecutor failed: %v", err)
	}
	cred := f.validated(t, "chatgpt", "session_token", "tok-race")
	params := map[string]any{"session_token": "tok-race"}

	const n = 16
	var admitted atomic.Int32
	var rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred, params)
			switch {
			case err == nil:
				admitted.Add(1)
			case errs.IsKind(err, errs.KindJobAlreadyRunning):
				rejected.Add(1)
			default:
				t.Errorf("unexpected submit error: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 1 {
		t.Errorf("exactly one concurrent submit should win, got %d", admitted.Load())
	}
	if rejected.Load() != n-1 {
		t.Errorf("expected %d rejections, got %d", n-1, rejected.Load())
	}
}

func TestCancelWhileRunningDiscardsResults(t *testing.T) {
	f := newFixture(t)
	slow := executor.NewFixture("chatgpt")
	slow.Delay = 2 * time.Second
	if err := f.reg.RegisterExecutor("chatgpt", slow); err != nil {
		t.Fatalf("RegisterExecutor failed: %v", err)
	}
	cred := f.validated(t, "chatgpt", "session_token", "tok-cancel")

	job, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred,
		map[string]any{"session_token": "tok-cancel"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Give the runner a moment to reach the provider call.
	time.Sleep(50 * time.Millisecond)

	snap, err := f.sched.Cancel(job.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if snap.State != models.JobCancelled {
		t.Fatalf("expected cancelled, got %s", snap.State)
	}

	final := waitTerminal(t, f.sched, job.ID)
	if final.State != models.JobCancelled {
		t.Errorf("terminal state must stay cancelled, got %s", final.State)
	}
	if final.Result != nil {
		t.Error("cancelled job must not carry results")
	}

	// Nothing reached the store.
	total, err := f.st.CountConversations(context.Background())
	if err != nil {
		t.Fatalf("CountConversations failed: %v", err)
	}
	if total != 0 {
		t.Errorf("cancelled job must not write to the store, found %d conversations", total)
	}

	// Cancelling again is a no-op reporting the terminal state.
	again, err := f.sched.Cancel(job.ID)
	if err != nil {
		t.Fatalf("second Cancel failed: %v", err)
	}
	if again.State != models.JobCancelled {
		t.Errorf("second cancel should report cancelled, got %s", again.State)
	}
}

func TestTransientFailuresRetry(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyExecutor{inner: executor.NewFixture("chatgpt")}
	flaky.remaining.Store(2)
	if err := f.reg.RegisterExecutor("chatgpt", flaky); err != nil {
		t.Fatalf("RegisterExecutor failed: %v", err)
	}
	cred := f.validated(t, "chatgpt", "session_token", "tok-retry")

	job, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred,
		map[string]any{"session_token": "tok-retry"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := waitTerminal(t, f.sched, job.ID)
	if snap.State != models.JobSucceeded {
		t.Fatalf("expected success after retries, got %s (%+v)", snap.State, snap.Error)
	}
	if snap.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", snap.Attempts)
	}
}

func TestRetriesExhaustedFailsJob(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyExecutor{inner: executor.NewFixture("chatgpt")}
	flaky.remaining.Store(10)
	if err := f.reg.RegisterExecutor("chatgpt", flaky); err != nil {
		t.Fatalf("RegisterExecutor failed: %v", err)
	}
	cred := f.validated(t, "chatgpt", "session_token", "tok-exhaust")

	job, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred,
		map[string]any{"session_token": "tok-exhaust"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snap := waitTerminal(t, f.sched, job.ID)
	if snap.State != models.JobFailed {
		t.Fatalf("expected failed, got %s", snap.State)
	}
	if snap.Attempts != 3 {
		t.Errorf("expected 3 attempts before giving up, got %d", snap.Attempts)
	}
	if snap.Error == nil || snap.Error.Kind != string(errs.KindProviderUnavailable) {
		t.Errorf("expected provider_unavailable error, got %+v", snap.Error)
	}
}

func TestSubmitRejectsInvalidParams(t *testing.T) {
	f := newFixture(t)
	cred := f.validated(t, "chatgpt", "session_token", "tok-x")

	_, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred, map[string]any{})
	if !errs.IsKind(err, errs.KindSchemaValidation) {
		t.Fatalf("expected schema_validation_error, got %v", err)
	}

	// A rejected submit must not hold the slot.
	if _, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred,
		map[string]any{"session_token": "tok-x"}); err != nil {
		t.Errorf("valid submit after rejected submit should work: %v", err)
	}
}

func TestGetUnknownJob(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sched.Get("missing"); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
	if _, err := f.sched.Cancel("missing"); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("expected not_found from Cancel, got %v", err)
	}
}

func TestListOrdersByCreation(t *testing.T) {
	f := newFixture(t)
	cred1 := f.validated(t, "chatgpt", "session_token", "tok-l1")
	cred2 := f.validated(t, "claude", "session_cookie", "cookie-l2")

	j1, err := f.sched.Submit(context.Background(), "extract_chatgpt_conversations", cred1,
		map[string]any{"session_token": "tok-l1"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, f.sched, j1.ID)

	j2, err := f.sched.Submit(context.Background(), "extract_claude_conversations", cred2,
		map[string]any{"session_cookie": "cookie-l2"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, f.sched, j2.ID)

	jobs := f.sched.List()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if !jobs[0].CreatedAt.After(jobs[1].CreatedAt) && !jobs[0].CreatedAt.Equal(jobs[1].CreatedAt) {
		t.Error("jobs should be listed most recent first")
	}
}
