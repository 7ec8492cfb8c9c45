package platform

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/molthive/hivebot/pkg/types"
)

// Memory is an in-process platform used by tests and dry runs. It keeps
// posts and comment trees in memory and assigns UUIDs on publish.
type Memory struct {
	mu       sync.Mutex
	self     string
	posts    []*types.Post
	comments map[string][]*types.Comment // postID -> top-level comments
	byID     map[string]*types.Comment
	upvoted  map[string]int
	karma    map[string]int
	now      func() time.Time
}

// NewMemory creates an empty in-memory platform acting as the given
// agent name.
func NewMemory(self string) *Memory {
	return &Memory{
		self:     self,
		comments: map[string][]*types.Comment{},
		byID:     map[string]*types.Comment{},
		upvoted:  map[string]int{},
		karma:    map[string]int{},
		now:      time.Now,
	}
}

// View returns an API over the same world acting as a different agent.
// All views share posts, comments and votes.
func (m *Memory) View(name string) API {
	return &memoryView{world: m, self: name}
}

// memoryView delegates to the shared world with its own author name.
type memoryView struct {
	world *Memory
	self  string
}

func (v *memoryView) GetStatus(ctx context.Context) (types.AgentStatus, error) {
	return types.StatusActive, nil
}

func (v *memoryView) GetProfile(ctx context.Context) (*types.Profile, error) {
	v.world.mu.Lock()
	defer v.world.mu.Unlock()
	return &types.Profile{Name: v.self, Karma: v.world.karma[v.self]}, nil
}

func (v *memoryView) GetFeed(ctx context.Context, hive, sortBy string, limit, offset int) (*types.FeedPage, error) {
	return v.world.GetFeed(ctx, hive, sortBy, limit, offset)
}

func (v *memoryView) GetPostThread(ctx context.Context, postID string) (*types.PostThread, error) {
	return v.world.GetPostThread(ctx, postID)
}

func (v *memoryView) CreatePost(ctx context.Context, hive, title, content string) (*types.Post, error) {
	return v.world.createPostAs(v.self, hive, title, content)
}

func (v *memoryView) CreateComment(ctx context.Context, postID, content, parentID string) (*types.Comment, error) {
	return v.world.createCommentAs(v.self, postID, content, parentID)
}

func (v *memoryView) UpvotePost(ctx context.Context, postID string) error {
	return v.world.UpvotePost(ctx, postID)
}

func (v *memoryView) UpvoteComment(ctx context.Context, commentID string) error {
	return v.world.UpvoteComment(ctx, commentID)
}

// SetClock overrides the timestamp source, for tests.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

// Seed inserts a post authored by someone else.
func (m *Memory) Seed(hive, title, content, author string) *types.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &types.Post{
		ID:        uuid.NewString(),
		Hive:      hive,
		Title:     title,
		Content:   content,
		Author:    types.Author{Name: author},
		CreatedAt: m.now(),
	}
	m.posts = append(m.posts, p)
	return p
}

// SeedComment inserts a comment by another author under a post or, when
// parentID is non-empty, under another comment.
func (m *Memory) SeedComment(postID, parentID, content, author string) *types.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertComment(postID, parentID, content, author)
}

func (m *Memory) insertComment(postID, parentID, content, author string) *types.Comment {
	c := &types.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		ParentID:  parentID,
		Author:    types.Author{Name: author},
		Content:   content,
		CreatedAt: m.now(),
	}
	m.byID[c.ID] = c
	if parentID == "" {
		m.comments[postID] = append(m.comments[postID], c)
	} else if parent, ok := m.byID[parentID]; ok {
		parent.Replies = append(parent.Replies, c)
	}
	for _, p := range m.posts {
		if p.ID == postID {
			p.CommentCount++
		}
	}
	return c
}

// GetStatus implements API. A Memory credential is always claimed.
func (m *Memory) GetStatus(ctx context.Context) (types.AgentStatus, error) {
	return types.StatusActive, nil
}

// GetProfile implements API.
func (m *Memory) GetProfile(ctx context.Context) (*types.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &types.Profile{Name: m.self, Karma: m.karma[m.self]}, nil
}

// AddKarma adjusts an agent's karma, for tests.
func (m *Memory) AddKarma(name string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.karma[name] += delta
}

// GetFeed implements API.
func (m *Memory) GetFeed(ctx context.Context, hive, sortBy string, limit, offset int) (*types.FeedPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]*types.Post, 0, len(m.posts))
	for _, p := range m.posts {
		if hive == "" || p.Hive == hive {
			matched = append(matched, p)
		}
	}
	if sortBy == "hot" {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Upvotes+matched[i].CommentCount > matched[j].Upvotes+matched[j].CommentCount
		})
	} else {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		})
	}

	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}

	page := make([]*types.Post, end-offset)
	for i, p := range matched[offset:end] {
		clone := *p
		page[i] = &clone
	}
	return &types.FeedPage{
		Posts:      page,
		HasMore:    end < len(matched),
		NextOffset: end,
	}, nil
}

// GetPostThread implements API.
func (m *Memory) GetPostThread(ctx context.Context, postID string) (*types.PostThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.ID == postID {
			clone := *p
			return &types.PostThread{Post: &clone, Comments: m.comments[postID]}, nil
		}
	}
	return nil, &APIError{StatusCode: 404, Endpoint: "/posts/" + postID, Body: "not found"}
}

// CreatePost implements API.
func (m *Memory) CreatePost(ctx context.Context, hive, title, content string) (*types.Post, error) {
	return m.createPostAs(m.self, hive, title, content)
}

func (m *Memory) createPostAs(author, hive, title, content string) (*types.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &types.Post{
		ID:        uuid.NewString(),
		Hive:      hive,
		Title:     title,
		Content:   content,
		Author:    types.Author{Name: author},
		CreatedAt: m.now(),
	}
	m.posts = append(m.posts, p)
	return p, nil
}

// CreateComment implements API.
func (m *Memory) CreateComment(ctx context.Context, postID, content, parentID string) (*types.Comment, error) {
	return m.createCommentAs(m.self, postID, content, parentID)
}

func (m *Memory) createCommentAs(author, postID, content, parentID string) (*types.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if parentID != "" {
		if _, ok := m.byID[parentID]; !ok {
			return nil, &APIError{StatusCode: 404, Endpoint: "/posts/" + postID + "/comments", Body: "parent not found"}
		}
	}
	return m.insertComment(postID, parentID, content, author), nil
}

// UpvotePost implements API.
func (m *Memory) UpvotePost(ctx context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.ID == postID {
			p.Upvotes++
			m.upvoted[postID]++
			return nil
		}
	}
	return &APIError{StatusCode: 404, Endpoint: "/posts/" + postID + "/upvote", Body: "not found"}
}

// UpvoteComment implements API.
func (m *Memory) UpvoteComment(ctx context.Context, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[commentID]
	if !ok {
		return &APIError{StatusCode: 404, Endpoint: "/comments/" + commentID + "/upvote", Body: "not found"}
	}
	c.Upvotes++
	m.upvoted[commentID]++
	return nil
}

// Posts returns a snapshot of all posts, for assertions.
func (m *Memory) Posts() []*types.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Post, len(m.posts))
	for i, p := range m.posts {
		clone := *p
		out[i] = &clone
	}
	return out
}

// Upvotes returns how many times the given ID was upvoted, for
// assertions.
func (m *Memory) Upvotes(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upvoted[id]
}
