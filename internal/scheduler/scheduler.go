// Package scheduler runs one-shot extraction jobs. At most one job per
// (provider, credential fingerprint) may run at a time; results are
// normalized and written to the conversation store on success.
package scheduler

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/gateway"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/normalizer"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/validator"
)

// job is the live record behind an ExtractionJob snapshot. Only the
// scheduler goroutines touch data; everything else reads snapshots.
type job struct {
	mu     sync.RWMutex
	data   models.ExtractionJob
	cred   models.Credential
	cancel context.CancelFunc
	done   chan struct{}
}

func (j *job) snapshot() models.ExtractionJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.data
}

// Scheduler owns the extraction job lifecycle.
type Scheduler struct {
	gateway   *gateway.Gateway
	validator *validator.Validator
	store     store.Store
	logger    *slog.Logger

	maxRetries int
	backoff    time.Duration

	mu    sync.RWMutex
	jobs  map[string]*job
	slots map[string]string // provider/fingerprint -> running job id

	// onTransition, when set, observes every state change. Used by the
	// server to push job events to websocket subscribers.
	onTransition func(models.ExtractionJob)

	now func() time.Time
}

// New creates a scheduler. maxRetries bounds re-dispatch of transient
// failures; backoff is the initial retry delay, doubling per attempt.
func New(gw *gateway.Gateway, val *validator.Validator, st store.Store, maxRetries int, backoff time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Scheduler{
		gateway:    gw,
		validator:  val,
		store:      st,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    backoff,
		jobs:       make(map[string]*job),
		slots:      make(map[string]string),
		now:        time.Now,
	}
}

// OnTransition registers a state change observer. Must be called before
// the first Submit.
func (s *Scheduler) OnTransition(fn func(models.ExtractionJob)) {
	s.onTransition = fn
}

func slotKey(provider, fingerprint string) string {
	return provider + "/" + fingerprint
}

// Submit creates and starts an extraction job. The credential must carry a
// fresh validation record, checked before any state is created, and the
// (provider, credential) slot is reserved synchronously, so a second submit
// for the same pair fails immediately with job_already_running while the
// first is live.
func (s *Scheduler) Submit(ctx context.Context, toolName string, cred models.Credential, params map[string]any) (models.ExtractionJob, error) {
	tool, err := s.gateway.Registry().FindTool(toolName, cred.Provider)
	if err != nil {
		return models.ExtractionJob{}, err
	}
	params, err = s.gateway.ValidateParams(tool, params)
	if err != nil {
		return models.ExtractionJob{}, err
	}

	record, err := s.validator.Require(cred)
	if err != nil {
		return models.ExtractionJob{}, err
	}
	if !record.Valid {
		return models.ExtractionJob{}, errs.New(errs.KindCredentialsNotValidated, "validation record is not valid")
	}

	fingerprint := cred.Fingerprint()
	key := slotKey(tool.ProviderID, fingerprint)

	s.mu.Lock()
	if holder, busy := s.slots[key]; busy {
		s.mu.Unlock()
		return models.ExtractionJob{}, errs.Newf(errs.KindJobAlreadyRunning,
			"job %s already running for this provider and credential", holder)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{
		data: models.ExtractionJob{
			ID:          uuid.New().String()[:8],
			Provider:    tool.ProviderID,
			Fingerprint: fingerprint,
			Tool:        tool.Name,
			Parameters:  params,
			State:       models.JobQueued,
			CreatedAt:   s.now().UTC(),
		},
		cred:   cred,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.jobs[j.data.ID] = j
	s.slots[key] = j.data.ID
	s.mu.Unlock()

	s.logger.Info("job submitted", "job_id", j.data.ID, "tool", tool.Name, "provider", tool.ProviderID, "fingerprint", fingerprint)
	s.notify(j.snapshot())

	go s.run(runCtx, j, tool)
	return j.snapshot(), nil
}

// Get returns a snapshot of a job.
func (s *Scheduler) Get(id string) (models.ExtractionJob, error) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return models.ExtractionJob{}, errs.Newf(errs.KindNotFound, "job %q not found", id)
	}
	return j.snapshot(), nil
}

// List returns snapshots of all jobs, most recent first.
func (s *Scheduler) List() []models.ExtractionJob {
	s.mu.RLock()
	jobs := make([]models.ExtractionJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j.snapshot())
	}
	s.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b models.ExtractionJob) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return jobs
}

// Cancel stops a job. Cancelling an already-terminal job is a no-op that
// reports the current state. A cancelled job's results are discarded even
// if the provider call had already returned.
func (s *Scheduler) Cancel(id string) (models.ExtractionJob, error) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return models.ExtractionJob{}, errs.Newf(errs.KindNotFound, "job %q not found", id)
	}

	if s.transition(j, models.JobCancelled, func(d *models.ExtractionJob) {
		d.Error = &models.JobError{Kind: "cancelled", Message: "cancelled by caller"}
	}) {
		j.cancel()
		s.logger.Info("job cancelled", "job_id", id)
	}
	return j.snapshot(), nil
}

// Wait blocks until the job reaches a terminal state or ctx is done.
func (s *Scheduler) Wait(ctx context.Context, id string) (models.ExtractionJob, error) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return models.ExtractionJob{}, errs.Newf(errs.KindNotFound, "job %q not found", id)
	}
	select {
	case <-j.done:
		return j.snapshot(), nil
	case <-ctx.Done():
		return j.snapshot(), ctx.Err()
	}
}

// run drives a job from queued to a terminal state.
func (s *Scheduler) run(ctx context.Context, j *job, tool *models.ToolDescriptor) {
	defer s.finish(j)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job goroutine panicked", "job_id", j.data.ID, "panic", r)
			s.fail(j, errs.Newf(errs.KindExecution, "internal panic: %v", r))
		}
	}()

	if !s.transition(j, models.JobValidating, nil) {
		return
	}

	record, err := s.validator.Require(j.cred)
	if err != nil {
		s.fail(j, err)
		return
	}
	if !record.Valid {
		// Lookup never returns invalid records, but the authorization
		// check stays explicit.
		s.fail(j, errs.New(errs.KindCredentialsNotValidated, "validation record is not valid"))
		return
	}

	if !s.transition(j, models.JobRunning, func(d *models.ExtractionJob) {
		t := s.now().UTC()
		d.StartedAt = &t
	}) {
		return
	}

	stopProgress := s.startProgress(ctx, j, tool.ExpectedDuration)
	raw, err := s.invokeWithRetry(ctx, j, tool)
	stopProgress()
	if err != nil {
		if ctx.Err() != nil {
			// Cancel already moved the job to cancelled.
			return
		}
		s.fail(j, err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	batch, err := normalizer.Normalize(j.data.Provider, raw)
	if err != nil {
		s.fail(j, err)
		return
	}

	result := models.JobResult{
		Conversations: batch.Conversations,
		Metadata:      batch.Metadata,
	}
	for _, ce := range batch.Errors {
		result.ConversationErrors = append(result.ConversationErrors, ce.String())
	}

	// Results are only applied while the job is still running; a cancel
	// racing this write discards everything.
	if !s.transition(j, models.JobSucceeded, func(d *models.ExtractionJob) {
		d.Progress = 100
		d.Result = &result
		t := s.now().UTC()
		d.FinishedAt = &t
	}) {
		return
	}

	for _, conv := range batch.Conversations {
		if _, err := s.store.UpsertConversation(ctx, conv); err != nil {
			s.logger.Warn("failed to store conversation", "job_id", j.data.ID, "conversation", conv.ID, "error", err)
		}
	}

	s.logger.Info("job succeeded",
		"job_id", j.data.ID,
		"conversations", len(batch.Conversations),
		"errors", len(batch.Errors))
}

// invokeWithRetry dispatches the tool, retrying transient failures with
// exponential backoff up to the attempt budget.
func (s *Scheduler) invokeWithRetry(ctx context.Context, j *job, tool *models.ToolDescriptor) (models.RawPayload, error) {
	delay := s.backoff
	var lastErr error

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		j.mu.Lock()
		j.data.Attempts = attempt
		j.mu.Unlock()

		res, err := s.gateway.Invoke(ctx, tool.Name, j.data.Provider, j.cred, j.data.Parameters)
		if err == nil {
			return res.Raw, nil
		}
		lastErr = err

		if ctx.Err() != nil || !errs.Retryable(err) || attempt == s.maxRetries {
			break
		}
		s.logger.Warn("job attempt failed, retrying",
			"job_id", j.data.ID, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}

// startProgress derives a synthetic progress percentage from the tool's
// expected duration. Progress is monotonic and holds at 95 until the job
// actually finishes.
func (s *Scheduler) startProgress(ctx context.Context, j *job, expected time.Duration) (stop func()) {
	if expected <= 0 {
		expected = 30 * time.Second
	}
	started := s.now()
	tick := expected / 20
	if tick < 50*time.Millisecond {
		tick = 50 * time.Millisecond
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				pct := int(float64(s.now().Sub(started)) / float64(expected) * 100)
				if pct > 95 {
					pct = 95
				}
				j.mu.Lock()
				if j.data.State == models.JobRunning && pct > j.data.Progress {
					j.data.Progress = pct
				}
				j.mu.Unlock()
			}
		}
	}()
	return func() { close(done) }
}

// transition applies a legal state change and reports whether it happened.
// Terminal states never change again.
func (s *Scheduler) transition(j *job, to models.JobState, mutate func(*models.ExtractionJob)) bool {
	j.mu.Lock()
	if err := models.ValidJobTransition(j.data.State, to); err != nil {
		j.mu.Unlock()
		return false
	}
	j.data.State = to
	if to.Terminal() && j.data.FinishedAt == nil {
		t := s.now().UTC()
		j.data.FinishedAt = &t
	}
	if mutate != nil {
		mutate(&j.data)
	}
	snap := j.data
	j.mu.Unlock()

	if to.Terminal() {
		s.release(snap)
	}
	s.notify(snap)
	return true
}

func (s *Scheduler) fail(j *job, err error) {
	kind := string(errs.KindOf(err))
	if kind == "" {
		kind = string(errs.KindExecution)
	}
	if s.transition(j, models.JobFailed, func(d *models.ExtractionJob) {
		d.Error = &models.JobError{Kind: kind, Message: err.Error()}
	}) {
		s.logger.Error("job failed", "job_id", j.data.ID, "kind", kind, "error", err)
	}
}

// release frees the (provider, fingerprint) slot held by a finished job.
func (s *Scheduler) release(snap models.ExtractionJob) {
	key := slotKey(snap.Provider, snap.Fingerprint)
	s.mu.Lock()
	if s.slots[key] == snap.ID {
		delete(s.slots, key)
	}
	s.mu.Unlock()
}

func (s *Scheduler) finish(j *job) {
	j.mu.Lock()
	select {
	case <-j.done:
	default:
		close(j.done)
	}
	j.mu.Unlock()
}

func (s *Scheduler) notify(snap models.ExtractionJob) {
	if s.onTransition == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("transition observer panicked", "job_id", snap.ID, "panic", r)
		}
	}()
	s.onTransition(snap)
}
