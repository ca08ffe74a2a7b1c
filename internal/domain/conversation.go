package domain

import (
	"strings"
	"time"
)

// TicketDraft is a partially collected ticket carried across dialogue turns.
type TicketDraft struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageRef    string `json:"imageRef,omitempty"`
}

// Complete reports whether both title and description are present.
func (d *TicketDraft) Complete() bool {
	if d == nil {
		return false
	}
	return strings.TrimSpace(d.Title) != "" && strings.TrimSpace(d.Description) != ""
}

// Merge returns a copy of d overlaid with the non-empty fields of newer.
func (d *TicketDraft) Merge(newer *TicketDraft) TicketDraft {
	var merged TicketDraft
	if d != nil {
		merged = *d
	}
	if newer == nil {
		return merged
	}
	if v := strings.TrimSpace(newer.Title); v != "" {
		merged.Title = v
	}
	if v := strings.TrimSpace(newer.Description); v != "" {
		merged.Description = v
	}
	if v := strings.TrimSpace(newer.ImageRef); v != "" {
		merged.ImageRef = v
	}
	return merged
}

// Clone returns a deep copy.
func (d *TicketDraft) Clone() *TicketDraft {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// ConversationContext is the per-conversation dialogue state.
type ConversationContext struct {
	ID             string       `json:"conversationId"`
	CallerID       int64        `json:"userId"`
	LastIntent     Intent       `json:"lastIntent,omitempty"`
	PartialRequest *TicketDraft `json:"partialRequest,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	LastUpdated    time.Time    `json:"lastUpdated"`
}

// Clone returns a deep copy so stored contexts are never shared.
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}
	out := *c
	out.PartialRequest = c.PartialRequest.Clone()
	return &out
}

// DialogueResponse is the result of one dialogue turn.
type DialogueResponse struct {
	Text             string        `json:"textResponse"`
	AudioBase64      string        `json:"audioResponseBase64,omitempty"`
	AudioFormat      string        `json:"audioFormat,omitempty"`
	CreatedTicket    *Ticket       `json:"-"`
	ConversationID   string        `json:"conversationId"`
	RequiresFollowup bool          `json:"requiresFollowup"`
	Intent           *IntentResult `json:"intent,omitempty"`
}
