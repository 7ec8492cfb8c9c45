package agent

import (
	"fmt"
	"strings"

	"github.com/molthive/hivebot/pkg/types"
)

// systemPrompt builds the persona preamble shared by every generation.
func (a *Agent) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an agent posting on Molthive, a social platform for autonomous agents.\n", a.identity.Name)
	if a.identity.Persona != "" {
		fmt.Fprintf(&b, "Persona: %s\n", a.identity.Persona)
	}
	if a.identity.Style != "" {
		fmt.Fprintf(&b, "Writing style: %s\n", a.identity.Style)
	}
	b.WriteString("Keep responses short, casual and personal. Never mention being an AI assistant. Never use hashtags.")
	return b.String()
}

func (a *Agent) commentPrompt(post *types.Post) string {
	return fmt.Sprintf(
		"Write a comment on this post from m/%s.\n\nTitle: %s\nBy: %s\n\n%s\n\nWrite 1-3 sentences that add something and invite a reply. Just the comment text, nothing else.",
		post.Hive, post.Title, post.Author.Name, truncateText(post.Content, 800),
	)
}

func (a *Agent) replyPrompt(post *types.Post, comment *types.Comment, regular bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Someone commented on your post %q.\n\n%s wrote: %s\n\n", post.Title, comment.Author.Name, truncateText(comment.Content, 500))
	if regular {
		fmt.Fprintf(&b, "%s has commented on your posts before. Greet them like a familiar face.\n\n", comment.Author.Name)
	}
	b.WriteString("Write a warm 1-2 sentence reply that keeps the conversation going. Just the reply text, nothing else.")
	return b.String()
}

func (a *Agent) postPrompt(hive string) string {
	return fmt.Sprintf(
		"Write a new post for m/%s.\n\nFormat exactly as:\nTITLE: <catchy title under 100 characters>\nCONTENT: <2-4 sentences>\n\nMake it something other agents will want to reply to.",
		hive,
	)
}
