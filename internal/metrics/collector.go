// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Volume metrics (only for extraction-shaped operations)
	TotalConversations int64
	TotalMessages      int64
	MinConversations   int64
	MaxConversations   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Volume stats (nil if not applicable)
	TotalConversations *int64   `json:"total_conversations,omitempty"`
	TotalMessages      *int64   `json:"total_messages,omitempty"`
	AvgConversations   *float64 `json:"avg_conversations,omitempty"`
	MinConversations   *int64   `json:"min_conversations,omitempty"`
	MaxConversations   *int64   `json:"max_conversations,omitempty"`
}

// Counters are monotonically increasing outcome totals.
type Counters struct {
	JobsSucceeded       int64 `json:"jobs_succeeded"`
	JobsFailed          int64 `json:"jobs_failed"`
	JobsCancelled       int64 `json:"jobs_cancelled"`
	SessionsStopped     int64 `json:"sessions_stopped"`
	SessionsErrored     int64 `json:"sessions_errored"`
	ConversationsStored int64 `json:"conversations_stored"`
	MessagesStored      int64 `json:"messages_stored"`
	WebhooksDelivered   int64 `json:"webhooks_delivered"`
	WebhooksDropped     int64 `json:"webhooks_dropped"`
}

// Snapshot represents the full orchestrator statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Validate      *OperationSnapshot `json:"validate,omitempty"`
	Invoke        *OperationSnapshot `json:"invoke,omitempty"`
	Extraction    *OperationSnapshot `json:"extraction,omitempty"`
	Poll          *OperationSnapshot `json:"poll,omitempty"`
	Webhook       *OperationSnapshot `json:"webhook,omitempty"`
	Counters      Counters           `json:"counters"`
}

// Operation names for the collector.
const (
	OpValidate   = "validate"
	OpInvoke     = "invoke"
	OpExtraction = "extraction"
	OpPoll       = "poll"
	OpWebhook    = "webhook"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	counters  Counters
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime:          time.Duration(math.MaxInt64),
			MinConversations: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordExtraction records timing and volume for an extraction-shaped
// operation (one-shot job or poll).
func (c *Collector) RecordExtraction(op string, duration time.Duration, conversations, messages int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	m.TotalConversations += conversations
	m.TotalMessages += messages

	if conversations < m.MinConversations {
		m.MinConversations = conversations
	}
	if conversations > m.MaxConversations {
		m.MaxConversations = conversations
	}
}

// CountJob books a terminal job outcome.
func (c *Collector) CountJob(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch state {
	case "succeeded":
		c.counters.JobsSucceeded++
	case "failed":
		c.counters.JobsFailed++
	case "cancelled":
		c.counters.JobsCancelled++
	}
}

// CountSession books a terminal session outcome.
func (c *Collector) CountSession(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch state {
	case "stopped":
		c.counters.SessionsStopped++
	case "error":
		c.counters.SessionsErrored++
	}
}

// CountStored books conversations and messages written to the store.
func (c *Collector) CountStored(conversations, messages int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.ConversationsStored += conversations
	c.counters.MessagesStored += messages
}

// CountWebhook books a webhook delivery outcome.
func (c *Collector) CountWebhook(delivered bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if delivered {
		c.counters.WebhooksDelivered++
	} else {
		c.counters.WebhooksDropped++
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeVolume bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeVolume && (m.TotalConversations > 0 || m.TotalMessages > 0) {
		totalConvs := m.TotalConversations
		totalMsgs := m.TotalMessages
		avgConvs := float64(m.TotalConversations) / float64(m.Count)
		minConvs := m.MinConversations
		maxConvs := m.MaxConversations

		// Reset sentinel values for display
		if minConvs == math.MaxInt64 {
			minConvs = 0
		}

		snap.TotalConversations = &totalConvs
		snap.TotalMessages = &totalMsgs
		snap.AvgConversations = &avgConvs
		snap.MinConversations = &minConvs
		snap.MaxConversations = &maxConvs
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Validate:      snapshotOp(c.ops[OpValidate], false),
		Invoke:        snapshotOp(c.ops[OpInvoke], false),
		Extraction:    snapshotOp(c.ops[OpExtraction], true),
		Poll:          snapshotOp(c.ops[OpPoll], true),
		Webhook:       snapshotOp(c.ops[OpWebhook], false),
		Counters:      c.counters,
	}
}
