package models

import (
	"fmt"
	"time"
)

// SessionState is the lifecycle state of a monitoring session.
type SessionState string

const (
	SessionStarting SessionState = "starting"
	SessionActive   SessionState = "active"
	SessionPaused   SessionState = "paused"
	SessionStopped  SessionState = "stopped"
	SessionError    SessionState = "error"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s SessionState) Terminal() bool {
	return s == SessionStopped || s == SessionError
}

var sessionTransitions = map[SessionState][]SessionState{
	SessionStarting: {SessionActive, SessionStopped, SessionError},
	SessionActive:   {SessionPaused, SessionStopped, SessionError},
	SessionPaused:   {SessionActive, SessionStopped},
	SessionStopped:  {},
	SessionError:    {},
}

// ValidSessionTransition checks whether from -> to is a legal transition.
func ValidSessionTransition(from, to SessionState) error {
	allowed, ok := sessionTransitions[from]
	if !ok {
		return fmt.Errorf("unknown session state: %s", from)
	}
	for _, a := range allowed {
		if a == to {
			return nil
		}
	}
	return fmt.Errorf("invalid session transition from %s to %s", from, to)
}

// MonitoringSession is a long-lived polling loop against one provider
// account. Only the monitor loop mutates the live record; getStatus returns
// snapshots.
type MonitoringSession struct {
	ID              string        `json:"id"`
	Provider        string        `json:"provider"`
	Fingerprint     string        `json:"fingerprint"`
	Tool            string        `json:"tool"`
	WebhookURL      string        `json:"webhook_url"`
	PollingInterval time.Duration `json:"polling_interval"`
	State           SessionState  `json:"state"`
	LastPollAt      *time.Time    `json:"last_poll_at,omitempty"`
	NextPollAt      *time.Time    `json:"next_poll_at,omitempty"`
	// ConversationsCaptured counts conversations that produced new data.
	ConversationsCaptured int        `json:"conversations_captured"`
	ConsecutiveFailures   int        `json:"consecutive_failures"`
	StartedAt             time.Time  `json:"started_at"`
	StoppedAt             *time.Time `json:"stopped_at,omitempty"`
	LastError             string     `json:"last_error,omitempty"`
}
