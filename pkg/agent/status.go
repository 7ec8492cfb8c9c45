package agent

import "time"

// Status is a point-in-time snapshot of one agent for the control
// surface. It never exposes internal pointers.
type Status struct {
	Name     string   `json:"name"`
	RunState RunState `json:"run_state"`

	Karma           int `json:"karma"`
	Followers       int `json:"followers"`
	PostsCreated    int `json:"posts_created"`
	CommentsCreated int `json:"comments_created"`
	RepliesCreated  int `json:"replies_created"`
	UpvotesGiven    int `json:"upvotes_given"`
	CyclesCompleted int `json:"cycles_completed"`

	LastPost    time.Time `json:"last_post,omitempty"`
	LastComment time.Time `json:"last_comment,omitempty"`
	LastReply   time.Time `json:"last_reply,omitempty"`

	LastCycle      CycleReport     `json:"last_cycle"`
	CycleDurations []time.Duration `json:"cycle_durations"`
	Recent         []Activity      `json:"recent_activity"`
}

// Status returns the agent's current snapshot.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Status{
		Name:            a.identity.Name,
		RunState:        a.runState,
		Karma:           a.state.LastKarma,
		Followers:       a.state.LastFollowers,
		PostsCreated:    a.state.PostsCreated,
		CommentsCreated: a.state.CommentsCreated,
		RepliesCreated:  a.state.RepliesCreated,
		UpvotesGiven:    a.state.UpvotesGiven,
		CyclesCompleted: a.state.CyclesCompleted,
		LastPost:        a.state.LastPost,
		LastComment:     a.state.LastComment,
		LastReply:       a.state.LastReply,
		LastCycle:       a.lastReport,
		CycleDurations:  append([]time.Duration(nil), a.durations...),
		Recent:          a.activities.recent(20),
	}
}

// RunStateNow returns just the lifecycle state.
func (a *Agent) RunStateNow() RunState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runState
}
