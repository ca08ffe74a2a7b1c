package domain

import (
	"errors"
	"time"
)

// ErrTicketNotFound is returned when a maintenance ticket does not exist.
var ErrTicketNotFound = errors.New("ticket not found")

// TicketStatus enumerates lifecycle states for maintenance tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// TicketPriority enumerates urgency tiers, lowest first.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityModerate TicketPriority = "MODERATE"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// HighestPriority is the tier emergencies are forced to.
const HighestPriority = TicketPriorityCritical

// TicketCategory is the trade a ticket is routed to.
type TicketCategory string

const (
	TicketCategoryPlumbing   TicketCategory = "PLUMBING"
	TicketCategoryElectrical TicketCategory = "ELECTRICAL"
	TicketCategoryCleaning   TicketCategory = "CLEANING"
	TicketCategorySecurity   TicketCategory = "SECURITY"
	TicketCategoryCarpentry  TicketCategory = "CARPENTRY"
	TicketCategoryPainting   TicketCategory = "PAINTING"
	TicketCategoryHVAC       TicketCategory = "HVAC"
	TicketCategoryOthers     TicketCategory = "OTHERS"
)

// Ticket is the aggregate for maintenance requests.
type Ticket struct {
	ID          int64
	CallerID    int64
	Title       string
	Description string
	Category    TicketCategory
	Priority    TicketPriority
	Status      TicketStatus
	ImageRef    string
	AssigneeID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAssigned reports whether a technician has been assigned.
func (t *Ticket) IsAssigned() bool {
	return t.AssigneeID != nil
}

// TicketInput describes the data needed to open a ticket.
// An empty Priority lets the ticketing service derive one.
type TicketInput struct {
	Title       string
	Description string
	ImageRef    string
	Priority    TicketPriority
}

// ErrInvalidStatusTransition is returned when a ticket cannot move to the requested status.
var ErrInvalidStatusTransition = errors.New("invalid status transition")

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusPending, TicketStatusInProgress, TicketStatusCompleted, TicketStatusCancelled:
		return true
	}
	return false
}

// Closed reports whether no further work happens on a ticket in status s.
func (s TicketStatus) Closed() bool {
	return s == TicketStatusCompleted || s == TicketStatusCancelled
}

// TicketUpdate carries a staff change to a ticket. Nil fields are left as they are.
type TicketUpdate struct {
	Status     *TicketStatus
	AssigneeID *int64
}
