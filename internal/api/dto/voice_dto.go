package dto

import (
	"time"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

// InteractTextRequest is the body of the text turn endpoint.
type InteractTextRequest struct {
	TranscribedText string `json:"transcribedText"`
	ConversationID  string `json:"conversationId"`
}

// VoiceResponse is the wire form of a dialogue turn result.
type VoiceResponse struct {
	TextResponse        string               `json:"textResponse"`
	AudioResponseBase64 string               `json:"audioResponseBase64,omitempty"`
	AudioFormat         string               `json:"audioFormat,omitempty"`
	ConversationID      string               `json:"conversationId"`
	RequiresFollowup    bool                 `json:"requiresFollowup"`
	Intent              *domain.IntentResult `json:"intent,omitempty"`
	CreatedTicket       *TicketResponse      `json:"createdTicket,omitempty"`
}

func NewVoiceResponse(r domain.DialogueResponse) VoiceResponse {
	out := VoiceResponse{
		TextResponse:        r.Text,
		AudioResponseBase64: r.AudioBase64,
		AudioFormat:         r.AudioFormat,
		ConversationID:      r.ConversationID,
		RequiresFollowup:    r.RequiresFollowup,
		Intent:              r.Intent,
	}
	if r.CreatedTicket != nil {
		ticket := NewTicketResponse(r.CreatedTicket)
		out.CreatedTicket = &ticket
	}
	return out
}

// ConversationResponse exposes a stored conversation context.
type ConversationResponse struct {
	ConversationID string              `json:"conversationId"`
	UserID         int64               `json:"userId"`
	LastIntent     domain.Intent       `json:"lastIntent,omitempty"`
	PartialRequest *domain.TicketDraft `json:"partialRequest,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	LastUpdated    time.Time           `json:"lastUpdated"`
}

func NewConversationResponse(c *domain.ConversationContext) ConversationResponse {
	return ConversationResponse{
		ConversationID: c.ID,
		UserID:         c.CallerID,
		LastIntent:     c.LastIntent,
		PartialRequest: c.PartialRequest,
		CreatedAt:      c.CreatedAt,
		LastUpdated:    c.LastUpdated,
	}
}
