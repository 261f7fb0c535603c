// Package monitor runs long-lived polling sessions that watch provider
// accounts for new conversation activity and push webhook notifications.
package monitor

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
	"github.com/chatvault/chatvault/internal/webhook"
)

// session is the live record behind a MonitoringSession snapshot.
type session struct {
	mu     sync.RWMutex
	data   models.MonitoringSession
	cred   models.Credential
	cancel context.CancelFunc

	// watermark is the exclusive lower bound for the next poll: the start
	// time of the last successful poll.
	watermark time.Time

	// resume is non-nil while paused; Resume closes it to wake the loop.
	resume chan struct{}
}

func (s *session) snapshot() models.MonitoringSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Manager owns all monitoring sessions.
type Manager struct {
	gateway   *gateway.Gateway
	validator *validator.Validator
	store     store.Store
	sink      webhook.Sink
	logger    *slog.Logger

	maxFailures int

	mu       sync.RWMutex
	sessions map[string]*session
	slots    map[string]string // provider/fingerprint -> active session id

	onTransition func(models.MonitoringSession)
	onPoll       func(elapsed time.Duration, err error)

	// bounds resolves the provider's polling interval limits. Overridable
	// in tests to run with millisecond intervals.
	bounds func(providerID string) (models.PollingBounds, error)

	now func() time.Time
}

// New creates a session manager. A session moves to the error state after
// maxFailures consecutive poll failures.
func New(gw *gateway.Gateway, val *validator.Validator, st store.Store, sink webhook.Sink, maxFailures int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFailures < 1 {
		maxFailures = 5
	}
	m := &Manager{
		gateway:     gw,
		validator:   val,
		store:       st,
		sink:        sink,
		logger:      logger,
		maxFailures: maxFailures,
		sessions:    make(map[string]*session),
		slots:       make(map[string]string),
		now:         time.Now,
	}
	m.bounds = func(providerID string) (models.PollingBounds, error) {
		desc, err := gw.Registry().Describe(providerID)
		if err != nil {
			return models.PollingBounds{}, err
		}
		return desc.Polling, nil
	}
	return m
}

// OnTransition registers a state change observer. Must be called before
// the first Start.
func (m *Manager) OnTransition(fn func(models.MonitoringSession)) {
	m.onTransition = fn
}

// OnPoll registers an observer for completed poll cycles. Must be called
// before the first Start.
func (m *Manager) OnPoll(fn func(elapsed time.Duration, err error)) {
	m.onPoll = fn
}

func slotKey(provider, fingerprint string) string {
	return provider + "/" + fingerprint
}

// Start creates a monitoring session and begins polling. The requested
// interval is clamped into the provider's declared bounds; zero selects
// the provider default. At most one non-terminal session may exist per
// (provider, credential fingerprint); a paused session still holds the
// slot.
func (m *Manager) Start(ctx context.Context, toolName string, cred models.Credential, params map[string]any) (models.MonitoringSession, error) {
	tool, err := m.gateway.Registry().FindTool(toolName, cred.Provider)
	if err != nil {
		return models.MonitoringSession{}, err
	}
	if tool.Category != models.CategoryRealTimeMonitoring && tool.Category != models.CategoryProjectMonitoring {
		return models.MonitoringSession{}, errs.Newf(errs.KindUnknownTool,
			"tool %s is not a monitoring tool", tool.Name)
	}
	params, err = m.gateway.ValidateParams(tool, params)
	if err != nil {
		return models.MonitoringSession{}, err
	}

	record, err := m.validator.Require(cred)
	if err != nil {
		return models.MonitoringSession{}, err
	}
	if !record.Valid {
		return models.MonitoringSession{}, errs.New(errs.KindCredentialsNotValidated, "validation record is not valid")
	}

	webhookURL, _ := params["webhook_url"].(string)
	interval, err := m.resolveInterval(tool.ProviderID, params)
	if err != nil {
		return models.MonitoringSession{}, err
	}

	fingerprint := cred.Fingerprint()
	key := slotKey(tool.ProviderID, fingerprint)

	m.mu.Lock()
	if holder, busy := m.slots[key]; busy {
		m.mu.Unlock()
		return models.MonitoringSession{}, errs.Newf(errs.KindSessionAlreadyActive,
			"session %s already active for this provider and credential", holder)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	now := m.now().UTC()
	sess := &session{
		data: models.MonitoringSession{
			ID:              uuid.New().String()[:8],
			Provider:        tool.ProviderID,
			Fingerprint:     fingerprint,
			Tool:            tool.Name,
			WebhookURL:      webhookURL,
			PollingInterval: interval,
			State:           models.SessionStarting,
			StartedAt:       now,
		},
		cred:   cred,
		cancel: cancel,
	}
	// First poll runs immediately; the interval applies between polls.
	sess.data.NextPollAt = &now
	m.sessions[sess.data.ID] = sess
	m.slots[key] = sess.data.ID
	m.mu.Unlock()

	m.logger.Info("monitoring session started",
		"session_id", sess.data.ID,
		"tool", tool.Name,
		"provider", tool.ProviderID,
		"interval", interval,
		"webhook", webhookURL != "")
	m.notify(sess.snapshot())

	go m.loop(runCtx, sess)
	return sess.snapshot(), nil
}

// resolveInterval reads the requested polling interval (seconds) from the
// params and clamps it into the provider's bounds.
func (m *Manager) resolveInterval(providerID string, params map[string]any) (time.Duration, error) {
	bounds, err := m.bounds(providerID)
	if err != nil {
		return 0, err
	}

	interval := bounds.Default
	if secs, ok := params["polling_interval"]; ok {
		switch v := secs.(type) {
		case float64:
			interval = time.Duration(v * float64(time.Second))
		case int:
			interval = time.Duration(v) * time.Second
		}
	}
	if bounds.Min > 0 && interval < bounds.Min {
		interval = bounds.Min
	}
	if bounds.Max > 0 && interval > bounds.Max {
		interval = bounds.Max
	}
	return interval, nil
}

// Get returns a snapshot of a session.
func (m *Manager) Get(id string) (models.MonitoringSession, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return models.MonitoringSession{}, errs.Newf(errs.KindNotFound, "session %q not found", id)
	}
	return sess.snapshot(), nil
}

// List returns snapshots of all sessions, most recent first.
func (m *Manager) List() []models.MonitoringSession {
	m.mu.RLock()
	sessions := make([]models.MonitoringSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess.snapshot())
	}
	m.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b models.MonitoringSession) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return sessions
}

// Pause suspends polling. The session keeps its slot; no poll runs until
// Resume.
func (m *Manager) Pause(id string) (models.MonitoringSession, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return models.MonitoringSession{}, err
	}

	sess.mu.Lock()
	if err := models.ValidSessionTransition(sess.data.State, models.SessionPaused); err != nil {
		state := sess.data.State
		sess.mu.Unlock()
		return models.MonitoringSession{}, errs.Newf(errs.KindExecution, "cannot pause session in state %s", state)
	}
	sess.data.State = models.SessionPaused
	sess.resume = make(chan struct{})
	snap := sess.data
	sess.mu.Unlock()

	m.logger.Info("session paused", "session_id", id)
	m.notify(snap)
	return snap, nil
}

// Resume restarts polling on a paused session. The next poll runs one full
// interval from now.
func (m *Manager) Resume(id string) (models.MonitoringSession, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return models.MonitoringSession{}, err
	}

	sess.mu.Lock()
	if err := models.ValidSessionTransition(sess.data.State, models.SessionActive); err != nil {
		state := sess.data.State
		sess.mu.Unlock()
		return models.MonitoringSession{}, errs.Newf(errs.KindExecution, "cannot resume session in state %s", state)
	}
	sess.data.State = models.SessionActive
	// The stale pre-pause schedule is discarded; polling restarts one full
	// interval from now.
	next := m.now().UTC().Add(sess.data.PollingInterval)
	sess.data.NextPollAt = &next
	if sess.resume != nil {
		close(sess.resume)
		sess.resume = nil
	}
	snap := sess.data
	sess.mu.Unlock()

	m.logger.Info("session resumed", "session_id", id)
	m.notify(snap)
	return snap, nil
}

// Stop terminates a session. Stopping an already-terminal session is a
// no-op reporting the current state.
func (m *Manager) Stop(id string) (models.MonitoringSession, error) {
	sess, err := m.lookup(id)
	if err != nil {
		return models.MonitoringSession{}, err
	}

	sess.mu.Lock()
	if sess.data.State.Terminal() {
		snap := sess.data
		sess.mu.Unlock()
		return snap, nil
	}
	sess.data.State = models.SessionStopped
	t := m.now().UTC()
	sess.data.StoppedAt = &t
	if sess.resume != nil {
		close(sess.resume)
		sess.resume = nil
	}
	snap := sess.data
	sess.mu.Unlock()

	sess.cancel()
	m.release(snap)
	m.logger.Info("session stopped", "session_id", id, "captured", snap.ConversationsCaptured)
	m.notify(snap)
	return snap, nil
}

func (m *Manager) lookup(id string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "session %q not found", id)
	}
	return sess, nil
}

// loop drives one session until it stops or errors out.
func (m *Manager) loop(ctx context.Context, sess *session) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("session loop panicked", "session_id", sess.data.ID, "panic", r)
		}
	}()

	for {
		sess.mu.RLock()
		next := sess.data.NextPollAt
		resume := sess.resume
		sess.mu.RUnlock()

		if resume != nil {
			select {
			case <-ctx.Done():
				return
			case <-resume:
				continue
			}
		}

		wait := time.Duration(0)
		if next != nil {
			wait = time.Until(*next)
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		sess.mu.RLock()
		paused := sess.resume != nil
		terminal := sess.data.State.Terminal()
		sess.mu.RUnlock()
		if terminal || ctx.Err() != nil {
			return
		}
		if paused {
			continue
		}

		if !m.poll(ctx, sess) {
			return
		}
	}
}

// poll runs one polling cycle. Returns false when the session reached a
// terminal state.
func (m *Manager) poll(ctx context.Context, sess *session) bool {
	sess.mu.Lock()
	pollStart := m.now().UTC()
	since := sess.watermark
	sess.data.LastPollAt = &pollStart
	next := pollStart.Add(sess.data.PollingInterval)
	sess.data.NextPollAt = &next
	provider := sess.data.Provider
	id := sess.data.ID
	sess.mu.Unlock()

	raw, err := m.gateway.Poll(ctx, provider, sess.cred, since)
	if m.onPoll != nil {
		m.onPoll(m.now().UTC().Sub(pollStart), err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		return m.recordFailure(sess, pollStart, err)
	}

	captured, notified := m.apply(ctx, sess, raw)

	sess.mu.Lock()
	// The session may have been stopped while the poll was in flight; a
	// terminal state is never left.
	if sess.data.State.Terminal() {
		sess.mu.Unlock()
		return false
	}
	sess.watermark = pollStart
	sess.data.ConsecutiveFailures = 0
	sess.data.LastError = ""
	sess.data.ConversationsCaptured += captured
	if sess.data.State == models.SessionStarting {
		sess.data.State = models.SessionActive
	}
	snap := sess.data
	sess.mu.Unlock()

	m.notify(snap)
	if captured > 0 {
		m.logger.Info("poll captured activity",
			"session_id", id,
			"conversations", captured,
			"notifications", notified)
	}
	return true
}

// apply normalizes a poll payload, stores the conversations, and sends one
// webhook notification per genuinely new message. Webhook failures are
// logged and dropped; they never affect the session.
func (m *Manager) apply(ctx context.Context, sess *session, raw models.RawPayload) (captured, notified int) {
	snap := sess.snapshot()

	batch, err := normalizer.Normalize(snap.Provider, raw)
	if err != nil {
		m.logger.Warn("poll payload rejected", "session_id", snap.ID, "error", err)
		return 0, 0
	}
	for _, ce := range batch.Errors {
		m.logger.Warn("conversation skipped during poll", "session_id", snap.ID, "error", ce.String())
	}

	for _, conv := range batch.Conversations {
		fresh := m.newMessages(ctx, conv)

		res, err := m.store.UpsertConversation(ctx, conv)
		if err != nil {
			m.logger.Warn("failed to store polled conversation",
				"session_id", snap.ID, "conversation", conv.ID, "error", err)
			continue
		}
		if res.Created || res.NewMessages > 0 {
			captured++
		}

		if snap.WebhookURL == "" || m.sink == nil {
			continue
		}
		for _, msg := range fresh {
			n := webhook.Notification{
				SessionID:    snap.ID,
				Provider:     snap.Provider,
				Conversation: conv.ID,
				Title:        conv.Title,
				Message:      msg,
				DedupeKey:    webhook.DedupeKey(snap.Provider, conv.ID, msg),
				ObservedAt:   m.now().UTC(),
			}
			if err := m.sink.Notify(ctx, snap.WebhookURL, n); err != nil {
				m.logger.Warn("webhook notification dropped",
					"session_id", snap.ID, "conversation", conv.ID, "error", err)
				continue
			}
			notified++
		}
	}
	return captured, notified
}

// newMessages returns the messages of conv not yet present in the store.
func (m *Manager) newMessages(ctx context.Context, conv models.Conversation) []models.Message {
	existing, err := m.store.GetConversation(ctx, conv.ID)
	if err != nil {
		// Unknown conversation: everything is new.
		return conv.Messages
	}
	seen := make(map[string]bool, len(existing.Messages))
	for _, msg := range existing.Messages {
		seen[msg.DedupeIdentity()] = true
	}
	var fresh []models.Message
	for _, msg := range conv.Messages {
		if !seen[msg.DedupeIdentity()] {
			fresh = append(fresh, msg)
		}
	}
	return fresh
}

// recordFailure books a failed poll and decides whether the session
// survives. Backoff doubles per consecutive failure, never dropping below
// the polling interval.
func (m *Manager) recordFailure(sess *session, pollStart time.Time, err error) bool {
	sess.mu.Lock()
	// A stop that landed mid-poll wins; the late failure is discarded.
	if sess.data.State.Terminal() {
		sess.mu.Unlock()
		return false
	}
	sess.data.ConsecutiveFailures++
	sess.data.LastError = err.Error()
	failures := sess.data.ConsecutiveFailures

	if failures >= m.maxFailures {
		sess.data.State = models.SessionError
		t := m.now().UTC()
		sess.data.StoppedAt = &t
		snap := sess.data
		sess.mu.Unlock()

		sess.cancel()
		m.release(snap)
		m.logger.Error("session errored out",
			"session_id", snap.ID, "failures", failures, "error", err)
		m.notify(snap)
		return false
	}

	backoff := sess.data.PollingInterval << failures
	if backoff < sess.data.PollingInterval {
		backoff = sess.data.PollingInterval
	}
	if ceiling := m.maxBackoff(sess.data.Provider, sess.data.PollingInterval); backoff > ceiling {
		backoff = ceiling
	}
	next := pollStart.Add(backoff)
	sess.data.NextPollAt = &next
	snap := sess.data
	sess.mu.Unlock()

	m.logger.Warn("poll failed",
		"session_id", snap.ID,
		"failures", failures,
		"next_poll", next,
		"error", err)
	m.notify(snap)
	return true
}

// maxBackoff bounds failure backoff at the provider's polling ceiling, or
// eight intervals when the provider declares none.
func (m *Manager) maxBackoff(providerID string, interval time.Duration) time.Duration {
	if bounds, err := m.bounds(providerID); err == nil && bounds.Max > interval {
		return bounds.Max
	}
	return 8 * interval
}

// release frees the slot held by a terminal session.
func (m *Manager) release(snap models.MonitoringSession) {
	key := slotKey(snap.Provider, snap.Fingerprint)
	m.mu.Lock()
	if m.slots[key] == snap.ID {
		delete(m.slots, key)
	}
	m.mu.Unlock()
}

func (m *Manager) notify(snap models.MonitoringSession) {
	if m.onTransition == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("transition observer panicked", "session_id", snap.ID, "panic", r)
		}
	}()
	m.onTransition(snap)
}
