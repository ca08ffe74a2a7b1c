package events

import (
	"time"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated        EventType = "ticket_created"
	EventCriticalTicketOpened EventType = "critical_ticket_opened"
	EventTicketAssigned       EventType = "ticket_assigned"
	EventTicketStatusChanged  EventType = "ticket_status_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  int64     `json:"ticket_id"`
	CallerID  int64     `json:"caller_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload carries the fields of a NEW_REQUEST notification.
type TicketCreatedPayload struct {
	Title    string                `json:"title"`
	Category domain.TicketCategory `json:"category"`
	Priority domain.TicketPriority `json:"priority"`
	ImageRef string                `json:"image_ref,omitempty"`
}

// TicketAssignedPayload describes a technician assignment.
type TicketAssignedPayload struct {
	Title         string                `json:"title"`
	Category      domain.TicketCategory `json:"category"`
	Priority      domain.TicketPriority `json:"priority"`
	OldAssigneeID *int64                `json:"old_assignee_id,omitempty"`
	AssigneeID    int64                 `json:"assignee_id"`
}

// TicketStatusChangedPayload describes a status transition.
type TicketStatusChangedPayload struct {
	Title     string              `json:"title"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}
