package agent

import (
	"context"
	"time"

	"github.com/molthive/hivebot/pkg/types"
)

// sweepBatch bounds upvotes per sweep pass.
const sweepBatch = 5

// RunSweep runs the upvote sweep on its own interval, independent of
// the cycle loop. It shares the agent's state lock, so a sweep never
// races a cycle's view of the upvoted set.
func (a *Agent) RunSweep(ctx context.Context) error {
	for {
		cfg, _, state := a.snapshot()
		if state == Stopped {
			return nil
		}

		if state == Running {
			if err := a.sweepOnce(ctx, cfg.FeedPageSize); err != nil {
				a.log.WithError(err).Debug("upvote sweep failed")
			}
		}

		if err := sleepCtx(ctx, sweepIntervalFloor(cfg.SweepInterval)); err != nil {
			return nil
		}
	}
}

// sweepOnce upvotes every unseen comment under the agent's own posts,
// then spends any leftover budget upvoting fresh feed posts. Commenters
// seen during the tree walk are noted in the history.
func (a *Agent) sweepOnce(ctx context.Context, pageSize int) error {
	given, err := a.sweepOwnPostComments(ctx)
	if err != nil {
		return err
	}
	if given >= sweepBatch {
		return nil
	}
	return a.sweepFeedPosts(ctx, pageSize, sweepBatch-given)
}

func (a *Agent) sweepOwnPostComments(ctx context.Context) (int, error) {
	a.mu.Lock()
	own := make([]string, 0, len(a.state.OwnPosts))
	for id := range a.state.OwnPosts {
		own = append(own, id)
	}
	a.mu.Unlock()

	given := 0
	var lastErr error
	for _, postID := range own {
		if given >= sweepBatch || ctx.Err() != nil {
			break
		}

		thread, err := a.api.GetPostThread(ctx, postID)
		if err != nil {
			lastErr = err
			continue
		}

		var pending []*types.Comment
		a.mu.Lock()
		now := a.now()
		types.WalkComments(thread.Comments, func(c *types.Comment) {
			if c.Author.Name == a.identity.Name {
				return
			}
			rec := a.state.commenter(c.Author.Name)
			rec.LastSeen = now
			if rec.FirstSeen.IsZero() {
				rec.FirstSeen = now
			}
			if !a.state.Upvoted[c.ID] {
				pending = append(pending, c)
			}
		})
		rateLimited := now.Before(a.state.RateLimitedUntil)
		a.mu.Unlock()

		if rateLimited {
			break
		}

		for _, c := range pending {
			if given >= sweepBatch || ctx.Err() != nil {
				break
			}
			if err := a.api.UpvoteComment(ctx, c.ID); err != nil {
				a.notePublishErr(err)
				continue
			}

			a.mu.Lock()
			a.state.Upvoted[c.ID] = true
			a.state.UpvotesGiven++
			a.state.commenter(c.Author.Name).UpvotesGiven++
			a.mu.Unlock()
			given++

			a.record(Activity{
				Kind:    string(types.ActionUpvote),
				Target:  c.ID,
				Detail:  "comment by " + c.Author.Name,
				Success: true,
			})
		}
	}

	if given > 0 {
		a.log.WithField("comment_upvotes", given).Debug("own-post sweep pass complete")
	}
	return given, lastErr
}

func (a *Agent) sweepFeedPosts(ctx context.Context, pageSize, budget int) error {
	feed, err := a.api.GetFeed(ctx, "", "new", pageSize, 0)
	if err != nil {
		return err
	}

	given := 0
	for _, post := range feed.Posts {
		if given >= budget || ctx.Err() != nil {
			break
		}

		a.mu.Lock()
		skip := post.Author.Name == a.identity.Name || a.state.Upvoted[post.ID]
		rateLimited := a.now().Before(a.state.RateLimitedUntil)
		a.mu.Unlock()
		if skip || rateLimited {
			continue
		}

		if err := a.api.UpvotePost(ctx, post.ID); err != nil {
			a.notePublishErr(err)
			continue
		}

		a.mu.Lock()
		a.state.Upvoted[post.ID] = true
		a.state.UpvotesGiven++
		a.mu.Unlock()
		given++

		a.record(Activity{
			Kind:    string(types.ActionUpvote),
			Target:  post.ID,
			Success: true,
		})
	}

	if given > 0 {
		a.log.WithField("post_upvotes", given).Debug("feed sweep pass complete")
	}
	return nil
}

// sweepIntervalFloor keeps a misconfigured zero interval from spinning.
func sweepIntervalFloor(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}
