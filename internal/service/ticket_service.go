package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-voice/internal/domain"
	"github.com/spec-kit/maintenance-voice/internal/events"
	"github.com/spec-kit/maintenance-voice/internal/observability"
	"github.com/spec-kit/maintenance-voice/internal/repository"
	"github.com/spec-kit/maintenance-voice/pkg/util"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// TicketCallerFilter describes caller listing filters.
type TicketCallerFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Categories []domain.TicketCategory
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Create opens a ticket for a caller. Category is always derived from the
// wording; an explicit priority overrides the derived one.
func (s *TicketService) Create(ctx context.Context, callerID int64, input domain.TicketInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, util.NewValidationError("title and description are required", nil)
	}
	if callerID <= 0 {
		return nil, util.NewValidationError("caller id is required", nil)
	}

	triage := Categorize(title, description)
	ticket := &domain.Ticket{
		CallerID:    callerID,
		Title:       title,
		Description: description,
		Category:    triage.Category,
		Priority:    triage.Priority,
		Status:      domain.TicketStatusPending,
		ImageRef:    strings.TrimSpace(input.ImageRef),
	}
	if input.Priority != "" {
		ticket.Priority = input.Priority
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.metrics.RecordTicketCreated(string(ticket.Priority))
	s.logger.Info("ticket created",
		zap.Int64("ticket_id", ticket.ID),
		zap.Int64("caller_id", callerID),
		zap.String("category", string(ticket.Category)),
		zap.String("priority", string(ticket.Priority)))

	payload := events.TicketCreatedPayload{
		Title:    ticket.Title,
		Category: ticket.Category,
		Priority: ticket.Priority,
		ImageRef: ticket.ImageRef,
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		CallerID: callerID,
		Payload:  payload,
	})
	if ticket.Priority == domain.TicketPriorityCritical {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventCriticalTicketOpened,
			TicketID: ticket.ID,
			CallerID: callerID,
			Payload:  payload,
		})
	}
	return ticket, nil
}

// GetByID loads a ticket by id.
func (s *TicketService) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// GetForCaller loads a ticket the caller owns; tickets of other callers are
// reported as missing.
func (s *TicketService) GetForCaller(ctx context.Context, callerID, id int64) (*domain.Ticket, error) {
	ticket, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.CallerID != callerID {
		return nil, domain.ErrTicketNotFound
	}
	return ticket, nil
}

// ListByCaller returns the caller's tickets, newest first.
func (s *TicketService) ListByCaller(ctx context.Context, callerID int64) ([]domain.Ticket, error) {
	return s.tickets.ListByCaller(ctx, callerID, 0, 0)
}

// ListForCaller returns the caller's tickets narrowed by filter.
func (s *TicketService) ListForCaller(ctx context.Context, callerID int64, filter TicketCallerFilter) ([]domain.Ticket, error) {
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		CallerID:   &callerID,
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Categories: filter.Categories,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Update applies a staff change to a ticket. Assigning a technician to a
// pending ticket starts the work unless a status is given explicitly.
// Closed tickets accept no further changes.
func (s *TicketService) Update(ctx context.Context, id int64, update domain.TicketUpdate) (*domain.Ticket, error) {
	if update.Status == nil && update.AssigneeID == nil {
		return nil, util.NewValidationError("status or assignedTo is required", nil)
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, util.NewValidationError("unknown status", map[string]any{"status": *update.Status})
	}
	if update.AssigneeID != nil && *update.AssigneeID <= 0 {
		return nil, util.NewValidationError("assignedTo must be a positive id", nil)
	}

	ticket, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status.Closed() {
		return nil, util.NewConflict(domain.ErrInvalidStatusTransition.Error(), map[string]any{
			"ticket_id": id,
			"status":    ticket.Status,
		})
	}

	oldStatus, oldAssignee := ticket.Status, ticket.AssigneeID
	reassigned := update.AssigneeID != nil && (oldAssignee == nil || *oldAssignee != *update.AssigneeID)
	if reassigned {
		assignee := *update.AssigneeID
		ticket.AssigneeID = &assignee
		if ticket.Status == domain.TicketStatusPending {
			ticket.Status = domain.TicketStatusInProgress
		}
	}
	if update.Status != nil {
		ticket.Status = *update.Status
	}
	if !reassigned && ticket.Status == oldStatus {
		return ticket, nil
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	s.logger.Info("ticket updated",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("old_status", string(oldStatus)),
		zap.String("status", string(ticket.Status)),
		zap.Bool("reassigned", reassigned))

	if reassigned {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			CallerID: ticket.CallerID,
			Payload: events.TicketAssignedPayload{
				Title:         ticket.Title,
				Category:      ticket.Category,
				Priority:      ticket.Priority,
				OldAssigneeID: oldAssignee,
				AssigneeID:    *ticket.AssigneeID,
			},
		})
	}
	if ticket.Status != oldStatus {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			CallerID: ticket.CallerID,
			Payload: events.TicketStatusChangedPayload{
				Title:     ticket.Title,
				OldStatus: oldStatus,
				NewStatus: ticket.Status,
			},
		})
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
