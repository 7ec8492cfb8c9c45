package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// activityCap bounds the in-memory activity ring.
const activityCap = 500

// Activity is one recorded agent action, kept for the status surface.
// Activities are ephemeral; they are not part of the durable state.
type Activity struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Target  string    `json:"target,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Score   float64   `json:"score,omitempty"`
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
}

// activityLog is a fixed-capacity ring of recent activities.
type activityLog struct {
	mu      sync.Mutex
	entries []Activity
}

func (l *activityLog) add(a Activity) {
	a.ID = uuid.NewString()
	a.At = time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, a)
	if len(l.entries) > activityCap {
		l.entries = l.entries[len(l.entries)-activityCap:]
	}
}

// recent returns up to n most recent activities, newest first.
func (l *activityLog) recent(n int) []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Activity, n)
	for i := 0; i < n; i++ {
		out[i] = l.entries[len(l.entries)-1-i]
	}
	return out
}
