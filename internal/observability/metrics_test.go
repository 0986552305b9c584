package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/auth/login", "POST", 200, 10*time.Millisecond)
	m.RecordRequest("/auth/login", "POST", 200, 30*time.Millisecond)
	m.RecordError("/auth/me", "GET", "EXPIRED")
	m.RecordDecision("ALLOW")
	m.RecordDecision("REVOKED")
	m.RecordDecision("REVOKED")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/auth/login|POST|200"])
	assert.Equal(t, int64(20), snap.AvgLatencyMilli["/auth/login|POST|200"])
	assert.Equal(t, int64(1), snap.Errors["/auth/me|GET|EXPIRED"])
	assert.Equal(t, int64(2), snap.Decisions["REVOKED"])
	assert.Equal(t, int64(1), snap.Decisions["ALLOW"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "X")
	m.RecordDecision("ALLOW")
	assert.Empty(t, m.Snapshot().Requests)
}
