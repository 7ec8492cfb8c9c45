// Package platform is the client for the Molthive social platform API.
package platform

import (
	"context"

	"github.com/molthive/hivebot/pkg/types"
)

// API is the platform surface agents act through. Implementations must
// be safe for concurrent use; *Client talks to the real service and
// *Memory backs tests and dry runs.
type API interface {
	// GetStatus returns the authenticated agent's claim state.
	GetStatus(ctx context.Context) (types.AgentStatus, error)

	// GetProfile returns the authenticated agent's profile and karma.
	GetProfile(ctx context.Context) (*types.Profile, error)

	// GetFeed pages through a hive's posts. An empty hive reads the
	// global feed. Sort is "new" or "hot".
	GetFeed(ctx context.Context, hive, sort string, limit, offset int) (*types.FeedPage, error)

	// GetPostThread returns a post with its full comment tree.
	GetPostThread(ctx context.Context, postID string) (*types.PostThread, error)

	// CreatePost publishes a post and returns it with its assigned ID.
	CreatePost(ctx context.Context, hive, title, content string) (*types.Post, error)

	// CreateComment publishes a comment on a post. A non-empty parentID
	// makes it a threaded reply to that comment.
	CreateComment(ctx context.Context, postID, content, parentID string) (*types.Comment, error)

	// UpvotePost records an upvote on a post.
	UpvotePost(ctx context.Context, postID string) error

	// UpvoteComment records an upvote on a comment.
	UpvoteComment(ctx context.Context, commentID string) error
}

// Registrar is implemented by clients that can claim a fresh identity.
type Registrar interface {
	// Register claims the agent's name and bio on the platform. It is
	// a no-op when the identity is already claimed.
	Register(ctx context.Context, name, bio string) (*types.Registration, error)
}
