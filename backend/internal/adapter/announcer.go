package adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "circlenet/backend/pkg/errors"
)

const publishTool = "publish_announcement"

// AnnouncementRequest is the input for drafting a community announcement
type AnnouncementRequest struct {
	CommunityName        string
	CommunityDescription string
	Topic                string
	Tone                 string
	Context              map[string]string
	History              []string
}

// Announcer drafts community announcements with the LLM
type Announcer struct {
	llm *LLMAdapter
}

// NewAnnouncer creates an announcement drafter
func NewAnnouncer(llm *LLMAdapter) *Announcer {
	return &Announcer{llm: llm}
}

var announcementTools = []Tool{{
	Type: "function",
	Function: FunctionDefinition{
		Name:        publishTool,
		Description: "Return the final announcement text",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"body": map[string]interface{}{
					"type":        "string",
					"description": "Announcement text, plain text, at most 1500 characters",
				},
			},
			"required": []string{"body"},
		},
	},
}}

// Draft returns announcement text for the topic. The model may answer through
// the publish tool or in plain content.
func (a *Announcer) Draft(ctx context.Context, req AnnouncementRequest) (string, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return "", apperrors.Validation("topic is required")
	}
	resp, err := a.llm.Generate(ctx, announcementPrompt(req), req.Topic, announcementTools)
	if err != nil {
		return "", err
	}
	for _, call := range resp.ToolCalls {
		if call.Name != publishTool {
			continue
		}
		if body, ok := call.Arguments["body"].(string); ok && strings.TrimSpace(body) != "" {
			return strings.TrimSpace(body), nil
		}
	}
	if body := strings.TrimSpace(resp.Content); body != "" {
		return body, nil
	}
	return "", apperrors.NewAgentLLMFailed(a.llm.GetModel(), 1, true, fmt.Errorf("empty announcement draft"))
}

func announcementPrompt(req AnnouncementRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You write announcements for the %q community.\n", req.CommunityName)
	if req.CommunityDescription != "" {
		fmt.Fprintf(&b, "About the community: %s\n", req.CommunityDescription)
	}
	tone := req.Tone
	if tone == "" {
		tone = "friendly"
	}
	fmt.Fprintf(&b, "Tone: %s. Keep it short, concrete and free of markdown headings.\n", tone)

	if len(req.Context) > 0 {
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Things you remember about this community:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Context[k])
		}
	}
	if len(req.History) > 0 {
		b.WriteString("Recent notes:\n")
		start := 0
		if len(req.History) > 10 {
			start = len(req.History) - 10
		}
		for _, h := range req.History[start:] {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	fmt.Fprintf(&b, "Call %s with the final text.", publishTool)
	return b.String()
}
