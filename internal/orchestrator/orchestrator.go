// Package orchestrator wires the registry, validator, gateway, scheduler
// and session manager into one facade. Every transport surface (MCP, HTTP,
// CLI) talks to this package.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/gateway"
	"github.com/chatvault/chatvault/internal/metrics"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/monitor"
	"github.com/chatvault/chatvault/internal/registry"
	"github.com/chatvault/chatvault/internal/scheduler"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/validator"
	"github.com/chatvault/chatvault/internal/webhook"
)

// EventType discriminates orchestrator events.
type EventType string

const (
	EventJob     EventType = "job"
	EventSession EventType = "session"
)

// Event is a state change pushed to subscribers.
type Event struct {
	Type    EventType                 `json:"type"`
	Job     *models.ExtractionJob     `json:"job,omitempty"`
	Session *models.MonitoringSession `json:"session,omitempty"`
	At      time.Time                 `json:"at"`
}

// Orchestrator is the composition root for all extraction operations.
type Orchestrator struct {
	registry  *registry.Registry
	validator *validator.Validator
	gateway   *gateway.Gateway
	scheduler *scheduler.Scheduler
	monitor   *monitor.Manager
	store     store.Store
	collector *metrics.Collector
	logger    *slog.Logger

	subMu sync.Mutex
	subs  map[int]chan Event
	subID int
}

// New builds an orchestrator from configuration. The store decides
// persistence: the SurrealDB backend when configured, in-memory otherwise.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := registry.Load()
	if err != nil {
		return nil, err
	}
	reg.RegisterFixtures()

	gw := gateway.New(reg, cfg.ExecutorTimeout, logger)
	val := validator.New(reg, cfg.ValidationTTL, cfg.ValidationRateLimit, cfg.ValidationWindow, logger)

	o := &Orchestrator{
		registry:  reg,
		validator: val,
		gateway:   gw,
		store:     st,
		collector: metrics.NewCollector(),
		logger:    logger,
		subs:      make(map[int]chan Event),
	}

	sink := &meteredSink{
		next:      webhook.NewHTTPSink(cfg.WebhookTimeout, cfg.WebhookAttempts, logger),
		collector: o.collector,
	}

	sched := scheduler.New(gw, val, st, cfg.MaxRetries, cfg.RetryBackoff, logger)
	sched.OnTransition(o.onJobTransition)
	o.scheduler = sched

	mon := monitor.New(gw, val, st, sink, cfg.MaxPollFailures, logger)
	mon.OnTransition(o.onSessionTransition)
	mon.OnPoll(func(elapsed time.Duration, _ error) {
		o.collector.RecordTiming(metrics.OpPoll, elapsed)
	})
	o.monitor = mon

	return o, nil
}

// Registry exposes the provider registry, mainly so binaries can swap in
// real executors over the fixtures.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Store exposes the conversation store.
func (o *Orchestrator) Store() store.Store { return o.store }

// ListProviders returns all catalog providers.
func (o *Orchestrator) ListProviders() []*models.ProviderDescriptor {
	return o.registry.List()
}

// DescribeProvider returns one provider descriptor.
func (o *Orchestrator) DescribeProvider(providerID string) (*models.ProviderDescriptor, error) {
	return o.registry.Describe(providerID)
}

// ListTools returns the tool descriptors for a provider, or all tools when
// providerID is empty.
func (o *Orchestrator) ListTools(providerID string) ([]models.ToolDescriptor, error) {
	return o.registry.ListTools(providerID)
}

// ValidateCredentials verifies a credential with its provider.
func (o *Orchestrator) ValidateCredentials(ctx context.Context, cred models.Credential) (*models.ValidationRecord, error) {
	start := time.Now()
	record, err := o.validator.Validate(ctx, cred)
	o.collector.RecordTiming(metrics.OpValidate, time.Since(start))
	return record, err
}

// InvokeTool dispatches a one-off tool call through the gateway without
// creating a job. The credential must have been validated.
func (o *Orchestrator) InvokeTool(ctx context.Context, toolName string, cred models.Credential, params map[string]any) (*gateway.ToolResult, error) {
	record, err := o.validator.Require(cred)
	if err != nil {
		return nil, err
	}
	if !record.Valid {
		return nil, errs.New(errs.KindCredentialsNotValidated, "validation record is not valid")
	}

	start := time.Now()
	res, err := o.gateway.Invoke(ctx, toolName, cred.Provider, cred, params)
	o.collector.RecordTiming(metrics.OpInvoke, time.Since(start))
	return res, err
}

// StartExtraction submits a one-shot extraction job.
func (o *Orchestrator) StartExtraction(ctx context.Context, toolName string, cred models.Credential, params map[string]any) (models.ExtractionJob, error) {
	return o.scheduler.Submit(ctx, toolName, cred, params)
}

// GetJob returns a job snapshot.
func (o *Orchestrator) GetJob(id string) (models.ExtractionJob, error) {
	return o.scheduler.Get(id)
}

// ListJobs returns all job snapshots, most recent first.
func (o *Orchestrator) ListJobs() []models.ExtractionJob {
	return o.scheduler.List()
}

// CancelJob cancels an extraction job.
func (o *Orchestrator) CancelJob(id string) (models.ExtractionJob, error) {
	return o.scheduler.Cancel(id)
}

// WaitJob blocks until the job is terminal or ctx is done.
func (o *Orchestrator) WaitJob(ctx context.Context, id string) (models.ExtractionJob, error) {
	return o.scheduler.Wait(ctx, id)
}

// StartMonitoring opens a polling session.
func (o *Orchestrator) StartMonitoring(ctx context.Context, toolName string, cred models.Credential, params map[string]any) (models.MonitoringSession, error) {
	return o.monitor.Start(ctx, toolName, cred, params)
}

// GetSession returns a session snapshot.
func (o *Orchestrator) GetSession(id string) (models.MonitoringSession, error) {
	return o.monitor.Get(id)
}

// ListSessions returns all session snapshots, most recent first.
func (o *Orchestrator) ListSessions() []models.MonitoringSession {
	return o.monitor.List()
}

// PauseMonitoring suspends a session's polling.
func (o *Orchestrator) PauseMonitoring(id string) (models.MonitoringSession, error) {
	return o.monitor.Pause(id)
}

// ResumeMonitoring restarts a paused session.
func (o *Orchestrator) ResumeMonitoring(id string) (models.MonitoringSession, error) {
	return o.monitor.Resume(id)
}

// StopMonitoring terminates a session.
func (o *Orchestrator) StopMonitoring(id string) (models.MonitoringSession, error) {
	return o.monitor.Stop(id)
}

// ListConversations returns a filtered page from the store.
func (o *Orchestrator) ListConversations(ctx context.Context, f store.Filter) (*store.Page, error) {
	return o.store.ListConversations(ctx, f)
}

// GetConversation returns one stored conversation.
func (o *Orchestrator) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return o.store.GetConversation(ctx, id)
}

// Stats combines runtime metrics with store totals.
type Stats struct {
	Metrics             metrics.Snapshot `json:"metrics"`
	StoredConversations int              `json:"stored_conversations"`
	ActiveJobs          int              `json:"active_jobs"`
	ActiveSessions      int              `json:"active_sessions"`
}

// GetStats returns the orchestrator statistics.
func (o *Orchestrator) GetStats(ctx context.Context) (*Stats, error) {
	total, err := o.store.CountConversations(ctx)
	if err != nil {
		return nil, err
	}

	activeJobs := 0
	for _, j := range o.scheduler.List() {
		if !j.State.Terminal() {
			activeJobs++
		}
	}
	activeSessions := 0
	for _, s := range o.monitor.List() {
		if !s.State.Terminal() {
			activeSessions++
		}
	}

	return &Stats{
		Metrics:             o.collector.Snapshot(),
		StoredConversations: total,
		ActiveJobs:          activeJobs,
		ActiveSessions:      activeSessions,
	}, nil
}

// Subscribe returns a channel receiving job and session events. The
// returned cancel func must be called to release the subscription. Slow
// subscribers drop events rather than blocking state transitions.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	o.subMu.Lock()
	o.subID++
	id := o.subID
	ch := make(chan Event, 64)
	o.subs[id] = ch
	o.subMu.Unlock()

	return ch, func() {
		o.subMu.Lock()
		if existing, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(existing)
		}
		o.subMu.Unlock()
	}
}

func (o *Orchestrator) publish(ev Event) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (o *Orchestrator) onJobTransition(job models.ExtractionJob) {
	if job.State.Terminal() {
		o.collector.CountJob(string(job.State))
		if job.State == models.JobSucceeded && job.Result != nil {
			msgs := 0
			for _, c := range job.Result.Conversations {
				msgs += len(c.Messages)
			}
			elapsed := time.Duration(0)
			if job.StartedAt != nil && job.FinishedAt != nil {
				elapsed = job.FinishedAt.Sub(*job.StartedAt)
			}
			o.collector.RecordExtraction(metrics.OpExtraction, elapsed,
				int64(len(job.Result.Conversations)), int64(msgs))
			o.collector.CountStored(int64(len(job.Result.Conversations)), int64(msgs))
		}
	}
	o.publish(Event{Type: EventJob, Job: &job, At: time.Now().UTC()})
}

// meteredSink books delivery timing and outcome around the real sink.
type meteredSink struct {
	next      webhook.Sink
	collector *metrics.Collector
}

func (s *meteredSink) Notify(ctx context.Context, url string, n webhook.Notification) error {
	start := time.Now()
	err := s.next.Notify(ctx, url, n)
	s.collector.RecordTiming(metrics.OpWebhook, time.Since(start))
	s.collector.CountWebhook(err == nil)
	return err
}

func (o *Orchestrator) onSessionTransition(sess models.MonitoringSession) {
	if sess.State.Terminal() {
		o.collector.CountSession(string(sess.State))
	}
	o.publish(Event{Type: EventSession, Session: &sess, At: time.Now().UTC()})
}
