package dto

import (
	"time"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	ImageURL    string                `json:"imageUrl"`
	Priority    domain.TicketPriority `json:"priority"`
}

// UpdateTicketRequest payload for staff changes. Omitted fields are kept.
type UpdateTicketRequest struct {
	Status     *domain.TicketStatus `json:"status"`
	AssignedTo *int64               `json:"assignedTo"`
}

// TicketResponse is the caller-facing view of a ticket.
type TicketResponse struct {
	ID          int64                 `json:"id"`
	UserID      int64                 `json:"userId"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Status      domain.TicketStatus   `json:"status"`
	ImageURL    string                `json:"imageUrl,omitempty"`
	AssignedTo  *int64                `json:"assignedTo,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          t.ID,
		UserID:      t.CallerID,
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
		Priority:    t.Priority,
		Status:      t.Status,
		ImageURL:    t.ImageRef,
		AssignedTo:  t.AssigneeID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// ValidPriority reports whether p is empty or a known tier.
func ValidPriority(p domain.TicketPriority) bool {
	switch p {
	case "", domain.TicketPriorityLow, domain.TicketPriorityModerate, domain.TicketPriorityHigh, domain.TicketPriorityCritical:
		return true
	}
	return false
}
