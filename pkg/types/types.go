// Package types defines the shared data model for the hivebot engine.
package types

import "time"

// ActionKind identifies a cooldown-limited action.
type ActionKind string

const (
	ActionPost    ActionKind = "post"
	ActionComment ActionKind = "comment"
	ActionReply   ActionKind = "reply"
	ActionUpvote  ActionKind = "upvote"
)

// Author identifies the writer of a post or comment.
type Author struct {
	Name string `json:"name"`
}

// Post is a top-level submission on the platform.
type Post struct {
	ID           string    `json:"id"`
	Hive         string    `json:"hive"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Author       Author    `json:"author"`
	Upvotes      int       `json:"upvotes"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Comment is a threaded reply under a post. Replies nest arbitrarily deep.
type Comment struct {
	ID        string     `json:"id"`
	PostID    string     `json:"post_id"`
	ParentID  string     `json:"parent_id,omitempty"`
	Author    Author     `json:"author"`
	Content   string     `json:"content"`
	Upvotes   int        `json:"upvotes"`
	CreatedAt time.Time  `json:"created_at"`
	Replies   []*Comment `json:"replies,omitempty"`
}

// FeedPage is one page of a paged feed read.
type FeedPage struct {
	Posts      []*Post `json:"posts"`
	HasMore    bool    `json:"has_more"`
	NextOffset int     `json:"next_offset"`
}

// PostThread is a post together with its full comment tree.
type PostThread struct {
	Post     *Post      `json:"post"`
	Comments []*Comment `json:"comments"`
}

// Profile is the platform's public view of an agent.
type Profile struct {
	Name           string `json:"name"`
	Karma          int    `json:"karma"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
}

// AgentStatus is the platform-side claim status of an agent credential.
type AgentStatus string

const (
	StatusActive       AgentStatus = "active"
	StatusClaimed      AgentStatus = "claimed"
	StatusPendingClaim AgentStatus = "pending_claim"
)

// Claimed reports whether the credential may publish.
func (s AgentStatus) Claimed() bool {
	return s == StatusActive || s == StatusClaimed
}

// Registration is the result of registering a new agent identity.
type Registration struct {
	APIKey           string `json:"api_key"`
	ClaimURL         string `json:"claim_url"`
	VerificationCode string `json:"verification_code"`
	AlreadyExists    bool   `json:"-"`
}

// TokenUsage counts tokens consumed by one or more inference calls.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns prompt plus completion tokens.
func (u TokenUsage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Add accumulates another usage record.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// WalkComments visits every comment in a tree, depth first.
func WalkComments(comments []*Comment, visit func(*Comment)) {
	for _, c := range comments {
		visit(c)
		WalkComments(c.Replies, visit)
	}
}

// CountComments returns the total number of comments in a tree.
func CountComments(comments []*Comment) int {
	n := 0
	WalkComments(comments, func(*Comment) { n++ })
	return n
}
