package notify

import "context"

const (
	teamsContentType = "application/vnd.microsoft.teams.card.o365connector"
	adaptiveSchema   = "http://adaptivecards.io/schemas/adaptive-card.json"
	schemaContext    = "http://schema.org/extensions"
)

type teamsPayload struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string    `json:"contentType"`
	Content     teamsCard `json:"content"`
}

type teamsCard struct {
	Schema  string `json:"$schema"`
	Context string `json:"@context"`
	Version string `json:"version"`
	Content string `json:"content"`
}

// Teams posts a connector card to a Microsoft Teams incoming webhook or workflow.
type Teams struct {
	hook hook
}

func (t *Teams) Name() string { return "teams" }

func (t *Teams) Send(ctx context.Context, message string) error {
	return t.hook.postJSON(ctx, newTeamsPayload(message))
}

func newTeamsPayload(message string) teamsPayload {
	return teamsPayload{
		Type: "message",
		Attachments: []teamsAttachment{{
			ContentType: teamsContentType,
			Content: teamsCard{
				Schema:  adaptiveSchema,
				Context: schemaContext,
				Version: "1.2",
				Content: message,
			},
		}},
	}
}

// Webhook posts {"text": message}, the shape Slack and Mattermost incoming hooks accept.
type Webhook struct {
	hook hook
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, message string) error {
	return w.hook.postJSON(ctx, map[string]string{"text": message})
}
