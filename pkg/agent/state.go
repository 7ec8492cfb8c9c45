package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// State is the durable per-agent record. It carries everything an agent
// must remember across restarts: cooldown timestamps, identifiers of
// content already acted on, per-author comment history, and counters.
// Cooldown intervals live in configuration, never here.
type State struct {
	// Cooldown clocks: last completion time per action kind.
	LastPost    time.Time `json:"last_post"`
	LastComment time.Time `json:"last_comment"`
	LastReply   time.Time `json:"last_reply"`

	// RateLimitedUntil is adopted from platform 429 responses. All
	// publishing waits until it passes.
	RateLimitedUntil time.Time `json:"rate_limited_until,omitempty"`

	// Seen sets. Membership means the action already happened and must
	// never be repeated for that ID.
	CommentedPosts map[string]bool `json:"commented_posts"`
	OwnPosts       map[string]bool `json:"own_posts"`
	RepliedTo      map[string]bool `json:"replied_to"`
	Upvoted        map[string]bool `json:"upvoted"`

	// CommenterHistory tracks the peers who comment on this agent's
	// posts, used to recognize regulars when replying.
	CommenterHistory map[string]*CommenterRecord `json:"commenter_history"`

	// Counters for reporting.
	PostsCreated    int `json:"posts_created"`
	CommentsCreated int `json:"comments_created"`
	RepliesCreated  int `json:"replies_created"`
	UpvotesGiven    int `json:"upvotes_given"`
	CyclesCompleted int `json:"cycles_completed"`
	LastKarma       int `json:"last_karma"`
	LastFollowers   int `json:"last_followers"`

	SavedAt time.Time `json:"saved_at"`
}

// CommenterRecord is one peer's interaction history with this agent.
type CommenterRecord struct {
	// Replies counts the replies this agent has sent them.
	Replies int `json:"replies"`
	// UpvotesGiven counts upvotes this agent gave their comments.
	UpvotesGiven int       `json:"upvotes_given"`
	FirstSeen    time.Time `json:"first_seen,omitempty"`
	LastSeen     time.Time `json:"last_seen,omitempty"`
}

// commenter returns the record for a peer, allocating it on first use.
// Callers must hold the agent mutex.
func (s *State) commenter(name string) *CommenterRecord {
	rec := s.CommenterHistory[name]
	if rec == nil {
		rec = &CommenterRecord{}
		s.CommenterHistory[name] = rec
	}
	return rec
}

// NewState returns an empty state with all sets allocated.
func NewState() *State {
	return &State{
		CommentedPosts:   map[string]bool{},
		OwnPosts:         map[string]bool{},
		RepliedTo:        map[string]bool{},
		Upvoted:          map[string]bool{},
		CommenterHistory: map[string]*CommenterRecord{},
	}
}

// normalize allocates any nil maps after decoding an older state file.
func (s *State) normalize() {
	if s.CommentedPosts == nil {
		s.CommentedPosts = map[string]bool{}
	}
	if s.OwnPosts == nil {
		s.OwnPosts = map[string]bool{}
	}
	if s.RepliedTo == nil {
		s.RepliedTo = map[string]bool{}
	}
	if s.Upvoted == nil {
		s.Upvoted = map[string]bool{}
	}
	if s.CommenterHistory == nil {
		s.CommenterHistory = map[string]*CommenterRecord{}
	}
	for name, rec := range s.CommenterHistory {
		if rec == nil {
			s.CommenterHistory[name] = &CommenterRecord{}
		}
	}
}

// CorruptStateError reports an unreadable state file. The file is left
// in place for inspection; the owning agent must not start.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// StatePath returns the checkpoint location for an agent name.
func StatePath(dir, name string) string {
	return filepath.Join(dir, safeName(name)+"_state.json")
}

// CredentialsPath returns where a freshly issued platform credential
// for an agent is stored.
func CredentialsPath(dir, name string) string {
	return filepath.Join(dir, safeName(name)+"_credentials.json")
}

func safeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// LoadState reads a checkpoint. A missing file yields a fresh state; an
// unreadable or unparsable file yields CorruptStateError.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	if err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}

	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	state.normalize()
	return state, nil
}

// SaveState checkpoints atomically: write a temp file in the same
// directory, then rename over the target. A crash mid-save leaves the
// previous checkpoint intact.
func SaveState(path string, s *State) error {
	s.SavedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
