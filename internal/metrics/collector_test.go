package metrics

import (
	"testing"
	"time"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpValidate, 10*time.Millisecond)
	c.RecordTiming(OpValidate, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap.Validate == nil {
		t.Fatal("expected validate metrics")
	}
	if snap.Validate.Count != 2 {
		t.Errorf("expected count 2, got %d", snap.Validate.Count)
	}
	if snap.Validate.MinTimeMs != 10 || snap.Validate.MaxTimeMs != 30 {
		t.Errorf("min/max mismatch: %d/%d", snap.Validate.MinTimeMs, snap.Validate.MaxTimeMs)
	}
	if snap.Validate.AvgTimeMs != 20 {
		t.Errorf("expected avg 20ms, got %f", snap.Validate.AvgTimeMs)
	}
	if snap.Invoke != nil {
		t.Error("operations without data should snapshot as nil")
	}
}

func TestRecordExtractionVolume(t *testing.T) {
	c := NewCollector()
	c.RecordExtraction(OpExtraction, 100*time.Millisecond, 2, 4)
	c.RecordExtraction(OpExtraction, 200*time.Millisecond, 4, 8)

	snap := c.Snapshot()
	if snap.Extraction == nil {
		t.Fatal("expected extraction metrics")
	}
	if snap.Extraction.TotalConversations == nil || *snap.Extraction.TotalConversations != 6 {
		t.Errorf("expected 6 total conversations, got %v", snap.Extraction.TotalConversations)
	}
	if snap.Extraction.TotalMessages == nil || *snap.Extraction.TotalMessages != 12 {
		t.Errorf("expected 12 total messages, got %v", snap.Extraction.TotalMessages)
	}
	if snap.Extraction.MinConversations == nil || *snap.Extraction.MinConversations != 2 {
		t.Errorf("expected min 2 conversations, got %v", snap.Extraction.MinConversations)
	}
	if snap.Extraction.MaxConversations == nil || *snap.Extraction.MaxConversations != 4 {
		t.Errorf("expected max 4 conversations, got %v", snap.Extraction.MaxConversations)
	}
}

func TestCounters(t *testing.T) {
	c := NewCollector()
	c.CountJob("succeeded")
	c.CountJob("succeeded")
	c.CountJob("failed")
	c.CountJob("cancelled")
	c.CountSession("stopped")
	c.CountSession("error")
	c.CountStored(3, 10)
	c.CountWebhook(true)
	c.CountWebhook(false)

	snap := c.Snapshot()
	if snap.Counters.JobsSucceeded != 2 || snap.Counters.JobsFailed != 1 || snap.Counters.JobsCancelled != 1 {
		t.Errorf("job counters mismatch: %+v", snap.Counters)
	}
	if snap.Counters.SessionsStopped != 1 || snap.Counters.SessionsErrored != 1 {
		t.Errorf("session counters mismatch: %+v", snap.Counters)
	}
	if snap.Counters.ConversationsStored != 3 || snap.Counters.MessagesStored != 10 {
		t.Errorf("store counters mismatch: %+v", snap.Counters)
	}
	if snap.Counters.WebhooksDelivered != 1 || snap.Counters.WebhooksDropped != 1 {
		t.Errorf("webhook counters mismatch: %+v", snap.Counters)
	}
}
