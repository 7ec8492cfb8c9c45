package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/molthive/hivebot/pkg/config"
	"github.com/molthive/hivebot/pkg/pipeline"
	"github.com/molthive/hivebot/pkg/platform"
	"github.com/molthive/hivebot/pkg/scoring"
	"github.com/molthive/hivebot/pkg/types"
)

// canAct reports whether an action kind is off cooldown, and if not,
// how long remains. A platform-imposed rate limit blocks everything.
func (a *Agent) canAct(kind types.ActionKind, cfg config.Runtime) (bool, time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if now.Before(a.state.RateLimitedUntil) {
		return false, a.state.RateLimitedUntil.Sub(now)
	}

	var last time.Time
	switch kind {
	case types.ActionPost:
		last = a.state.LastPost
	case types.ActionComment:
		last = a.state.LastComment
	case types.ActionReply:
		last = a.state.LastReply
	default:
		return true, 0
	}

	ready := last.Add(cfg.Cooldown(string(kind)))
	if now.Before(ready) {
		return false, ready.Sub(now)
	}
	return true, 0
}

// markActed stamps the cooldown clock for an action kind.
func (a *Agent) markActed(kind types.ActionKind) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	switch kind {
	case types.ActionPost:
		a.state.LastPost = now
	case types.ActionComment:
		a.state.LastComment = now
	case types.ActionReply:
		a.state.LastReply = now
	}
}

// notePublishErr adopts a platform 429 into the local cooldown clock so
// later sub-tasks in this and following cycles back off without asking.
func (a *Agent) notePublishErr(err error) {
	rle, ok := platform.AsRateLimit(err)
	if !ok {
		return
	}
	backoff := rle.RetryAfter
	if backoff <= 0 {
		backoff = time.Minute
	}

	a.mu.Lock()
	until := a.now().Add(backoff)
	if until.After(a.state.RateLimitedUntil) {
		a.state.RateLimitedUntil = until
	}
	a.mu.Unlock()

	a.log.WithField("backoff", backoff).Warn("platform rate limit adopted")
}

func (a *Agent) record(act Activity) {
	a.activities.add(act)
	if a.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.recorder.RecordActivity(ctx, a.identity.Name, act); err != nil {
			a.log.WithError(err).Debug("activity archive write failed")
		}
	}
}

// heartbeat polls the agent's profile and tracks karma movement.
func (a *Agent) heartbeat(ctx context.Context, cfg config.Runtime, _ scoring.Weights) TaskResult {
	profile, err := a.api.GetProfile(ctx)
	if err != nil {
		return TaskResult{Status: TaskFailed, Err: err.Error()}
	}

	a.mu.Lock()
	delta := profile.Karma - a.state.LastKarma
	a.state.LastKarma = profile.Karma
	a.state.LastFollowers = profile.FollowerCount
	a.mu.Unlock()

	detail := fmt.Sprintf("karma %d", profile.Karma)
	if delta != 0 {
		detail = fmt.Sprintf("karma %d (%+d)", profile.Karma, delta)
	}
	return TaskResult{Status: TaskOK, Detail: detail}
}

// scanPriorityHives comments on the first fresh post found in the
// configured priority hives. At most one comment per cycle.
func (a *Agent) scanPriorityHives(ctx context.Context, cfg config.Runtime, weights scoring.Weights) TaskResult {
	if ok, wait := a.canAct(types.ActionComment, cfg); !ok {
		return TaskResult{Status: TaskSkipped, Detail: fmt.Sprintf("comment cooldown %s", wait.Round(time.Second))}
	}

	for _, hive := range cfg.PriorityHives {
		feed, err := a.api.GetFeed(ctx, hive, "new", cfg.FeedPageSize, 0)
		if err != nil {
			return TaskResult{Status: TaskFailed, Err: err.Error()}
		}
		if post := a.pickFresh(feed.Posts); post != nil {
			return a.commentOnPost(ctx, cfg, weights, post)
		}
	}
	return TaskResult{Status: TaskSkipped, Detail: "no fresh posts in priority hives"}
}

// scanGeneralFeed comments on a fresh post from the global feed.
func (a *Agent) scanGeneralFeed(ctx context.Context, cfg config.Runtime, weights scoring.Weights) TaskResult {
	if ok, wait := a.canAct(types.ActionComment, cfg); !ok {
		return TaskResult{Status: TaskSkipped, Detail: fmt.Sprintf("comment cooldown %s", wait.Round(time.Second))}
	}

	feed, err := a.api.GetFeed(ctx, "", "new", cfg.FeedPageSize, 0)
	if err != nil {
		return TaskResult{Status: TaskFailed, Err: err.Error()}
	}
	post := a.pickFresh(feed.Posts)
	if post == nil {
		return TaskResult{Status: TaskSkipped, Detail: "no fresh posts"}
	}
	return a.commentOnPost(ctx, cfg, weights, post)
}

// pickFresh returns the first post not authored by this agent and not
// already commented on, or nil.
func (a *Agent) pickFresh(posts []*types.Post) *types.Post {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, post := range posts {
		if post.Author.Name == a.identity.Name {
			continue
		}
		if a.state.CommentedPosts[post.ID] {
			continue
		}
		return post
	}
	return nil
}

// commentOnPost generates candidates for one post and publishes the
// winner. The seen set is updated only after the platform accepts the
// comment, so a failed publish is retried on a later cycle.
func (a *Agent) commentOnPost(ctx context.Context, cfg config.Runtime, weights scoring.Weights, post *types.Post) TaskResult {
	res, err := a.pipe.GenerateAndSelectBest(ctx, pipeline.Request{
		System:  a.systemPrompt(),
		Prompt:  a.commentPrompt(post),
		Context: "comment on " + post.ID,
		PerMode: perMode(cfg.CommentCandidates),
		Modes:   pipeline.DefaultModes()[:modeCount(cfg.CommentCandidates)],
	}, weights, cfg.QualityThreshold)
	if err != nil {
		return TaskResult{Status: TaskFailed, Err: err.Error()}
	}
	if !res.Accepted() {
		return TaskResult{Status: TaskSkipped, Detail: res.Reason}
	}

	comment, err := a.api.CreateComment(ctx, post.ID, res.Selected.Text, "")
	if err != nil {
		a.notePublishErr(err)
		return TaskResult{Status: TaskFailed, Err: err.Error()}
	}

	a.mu.Lock()
	a.state.CommentedPosts[post.ID] = true
	a.state.CommentsCreated++
	a.mu.Unlock()
	a.markActed(types.ActionComment)

	a.record(Activity{
		Kind:    string(types.ActionComment),
		Target:  post.ID,
		Detail:  truncateText(res.Selected.Text, 120),
		Score:   res.Selected.Score,
		Success: true,
	})
	return TaskResult{Status: TaskOK, Detail: fmt.Sprintf("commented %s on %q (score %.1f)", comment.ID, post.Title, res.Selected.Score)}
}

// monitorOwnPosts replies to one unanswered comment on the agent's own
// posts and remembers the commenter.
func (a *Agent) monitorOwnPosts(ctx context.Context, cfg config.Runtime, weights scoring.Weights) TaskResult {
	if ok, wait := a.canAct(types.ActionReply, cfg); !ok {
		return TaskResult{Status: TaskSkipped, Detail: fmt.Sprintf("reply cooldown %s", wait.Round(time.Second))}
	}

	a.mu.Lock()
	own := make([]string, 0, len(a.state.OwnPosts))
	for id := range a.state.OwnPosts {
		own = append(own, id)
	}
	a.mu.Unlock()

	if len(own) == 0 {
		return TaskResult{Status: TaskSkipped, Detail: "no own posts"}
	}

	var lastErr error
	for _, postID := range own {
		thread, err := a.api.GetPostThread(ctx, postID)
		if err != nil {
			lastErr = err
			continue
		}
		target := a.findUnreplied(thread.Comments)
		if target == nil {
			continue
		}

		a.mu.Lock()
		rec := a.state.CommenterHistory[target.Author.Name]
		regular := rec != nil && rec.Replies >= 2
		a.mu.Unlock()

		res, err := a.pipe.GenerateAndSelectBest(ctx, pipeline.Request{
			System:  a.systemPrompt(),
			Prompt:  a.replyPrompt(thread.Post, target, regular),
			Context: "reply to " + target.ID,
			PerMode: perMode(cfg.ReplyCandidates),
			Modes:   pipeline.DefaultModes()[:modeCount(cfg.ReplyCandidates)],
		}, weights, cfg.QualityThreshold)
		if err != nil {
			return TaskResult{Status: TaskFailed, Err: err.Error()}
		}
		if !res.Accepted() {
			return TaskResult{Status: TaskSkipped, Detail: res.Reason}
		}

		if _, err := a.api.CreateComment(ctx, postID, res.Selected.Text, target.ID); err != nil {
			a.notePublishErr(err)
			return TaskResult{Status: TaskFailed, Err: err.Error()}
		}

		a.mu.Lock()
		a.state.RepliedTo[target.ID] = true
		peer := a.state.commenter(target.Author.Name)
		peer.Replies++
		peer.LastSeen = a.now()
		if peer.FirstSeen.IsZero() {
			peer.FirstSeen = peer.LastSeen
		}
		a.state.RepliesCreated++
		a.mu.Unlock()
		a.markActed(types.ActionReply)

		a.record(Activity{
			Kind:    string(types.ActionReply),
			Target:  target.ID,
			Detail:  truncateText(res.Selected.Text, 120),
			Score:   res.Selected.Score,
			Success: true,
		})
		return TaskResult{Status: TaskOK, Detail: fmt.Sprintf("replied to %s on post %s", target.Author.Name, postID)}
	}

	if lastErr != nil {
		return TaskResult{Status: TaskFailed, Err: lastErr.Error()}
	}
	return TaskResult{Status: TaskSkipped, Detail: "no unanswered comments"}
}

// findUnreplied walks a comment tree for the first comment by someone
// else that the agent has not replied to yet.
func (a *Agent) findUnreplied(comments []*types.Comment) *types.Comment {
	a.mu.Lock()
	defer a.mu.Unlock()

	var found *types.Comment
	types.WalkComments(comments, func(c *types.Comment) {
		if found != nil {
			return
		}
		if c.Author.Name == a.identity.Name {
			return
		}
		if a.state.RepliedTo[c.ID] {
			return
		}
		// Skip if one of our replies already hangs under it.
		for _, r := range c.Replies {
			if r.Author.Name == a.identity.Name {
				return
			}
		}
		found = c
	})
	return found
}

// engageHotThread comments on a busy thread from the hot feed. Busy
// threads surface replies to more readers than fresh ones.
func (a *Agent) engageHotThread(ctx context.Context, cfg config.Runtime, weights scoring.Weights) TaskResult {
	if ok, wait := a.canAct(types.ActionComment, cfg); !ok {
		return TaskResult{Status: TaskSkipped, Detail: fmt.Sprintf("comment cooldown %s", wait.Round(time.Second))}
	}

	feed, err := a.api.GetFeed(ctx, "", "hot", cfg.FeedPageSize, 0)
	if err != nil {
		return TaskResult{Status: TaskFailed, Err: err.Error()}
	}

	var target *types.Post
	a.mu.Lock()
	for _, post := range feed.Posts {
		if post.Author.Name == a.identity.Name || a.state.CommentedPosts[post.ID] {
			continue
		}
		if post.CommentCount >= 3 {
			target = post
			break
		}
	}
	a.mu.Unlock()

	if target == nil {
		return TaskResult{Status: TaskSkipped, Detail: "no hot threads to join"}
	}
	return a.commentOnPost(ctx, cfg, weights, target)
}

// createPost publishes a new post when the post cooldown allows it.
func (a *Agent) createPost(ctx context.Context, cfg config.Runtime, weights scoring.Weights) TaskResult {
	if ok, wait := a.canAct(types.ActionPost, cfg); !ok {
		return TaskResult{Status: TaskSkipped, Detail: fmt.Sprintf("post cooldown %s", wait.Round(time.Second))}
	}

	hive := "general"
	if len(cfg.PriorityHives) > 0 {
		hive = cfg.PriorityHives[0]
	}

	res, err := a.pipe.GenerateAndSelectBest(ctx, pipeline.Request{
		System:  a.systemPrompt(),
		Prompt:  a.postPrompt(hive),
		Context: "new post",
		PerMode: perMode(cfg.PostCandidates),
		Modes:   pipeline.DefaultModes()[:modeCount(cfg.PostCandidates)],
	}, weights, cfg.QualityThreshold)
	if err != nil {
		return TaskResult{Status: TaskFailed, Err: err.Error()}
	}
	if !res.Accepted() {
		return TaskResult{Status: TaskSkipped, Detail: res.Reason}
	}

	title, content := splitTitleContent(res.Selected.Text)
	content = a.appendFooter(content, cfg)

	post, err := a.api.CreatePost(ctx, hive, title, content)
	if err != nil {
		a.notePublishErr(err)
		return TaskResult{Status: TaskFailed, Err: err.Error()}
	}

	a.mu.Lock()
	a.state.OwnPosts[post.ID] = true
	a.state.PostsCreated++
	a.mu.Unlock()
	a.markActed(types.ActionPost)

	if a.recorder != nil {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.recorder.RecordPost(rctx, a.identity.Name, post); err != nil {
			a.log.WithError(err).Debug("post archive write failed")
		}
		cancel()
	}
	a.record(Activity{
		Kind:    string(types.ActionPost),
		Target:  post.ID,
		Detail:  truncateText(title, 120),
		Score:   res.Selected.Score,
		Success: true,
	})
	return TaskResult{Status: TaskOK, Detail: fmt.Sprintf("posted %q to %s (score %.1f)", title, hive, res.Selected.Score)}
}

// appendFooter rotates through the configured footers.
func (a *Agent) appendFooter(content string, cfg config.Runtime) string {
	if len(cfg.Footers) == 0 {
		return content
	}
	a.mu.Lock()
	footer := cfg.Footers[a.footerSeq%len(cfg.Footers)]
	a.footerSeq++
	a.mu.Unlock()
	return content + footer
}

// splitTitleContent parses generated text of the form
// "TITLE: ...\nCONTENT: ...". Text without markers becomes the content,
// with the first line doubling as the title.
func splitTitleContent(text string) (string, string) {
	upper := strings.ToUpper(text)
	ti := strings.Index(upper, "TITLE:")
	ci := strings.Index(upper, "CONTENT:")
	if ti >= 0 && ci > ti {
		title := strings.TrimSpace(text[ti+len("TITLE:") : ci])
		content := strings.TrimSpace(text[ci+len("CONTENT:"):])
		if title != "" && content != "" {
			return truncateText(title, 120), content
		}
	}

	lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)
	title := truncateText(strings.TrimSpace(lines[0]), 120)
	return title, strings.TrimSpace(text)
}

func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// perMode and modeCount spread a candidate budget over the built-in
// modes: up to one candidate per mode, cycling modes first.
func modeCount(candidates int) int {
	if candidates < 1 {
		candidates = 1
	}
	if max := len(pipeline.DefaultModes()); candidates > max {
		return max
	}
	return candidates
}

func perMode(candidates int) int {
	max := len(pipeline.DefaultModes())
	if candidates <= max {
		return 1
	}
	return (candidates + max - 1) / max
}
