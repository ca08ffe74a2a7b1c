package dialogue

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

// Ticketing is the ticket collaborator the dispatcher drives.
type Ticketing interface {
	Create(ctx context.Context, callerID int64, in domain.TicketInput) (*domain.Ticket, error)
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	ListByCaller(ctx context.Context, callerID int64) ([]domain.Ticket, error)
}

// Turn is the input of one dispatch.
type Turn struct {
	ConversationID string
	CallerID       int64
	Intent         domain.IntentResult
	// Prior is the stored context, nil for a new conversation.
	Prior *domain.ConversationContext
}

// Outcome is the dispatch result.
type Outcome struct {
	Response domain.DialogueResponse
	// Context is non-nil when the conversation state changed and must be stored.
	Context *domain.ConversationContext
	// Route is the intent whose handler produced the response.
	Route domain.Intent
}

type handler func(ctx context.Context, turn Turn) (Outcome, error)

// Dispatcher maps a classified intent to its business action.
type Dispatcher struct {
	ticketing Ticketing
	handlers  map[domain.Intent]handler
	logger    *zap.Logger
}

// NewDispatcher builds the dispatch table. It fails if any intent lacks a handler.
func NewDispatcher(ticketing Ticketing, logger *zap.Logger) (*Dispatcher, error) {
	if ticketing == nil {
		return nil, errors.New("dialogue: ticketing collaborator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		ticketing: ticketing,
		logger:    logger.With(zap.String("component", "action_dispatcher")),
	}
	d.handlers = map[domain.Intent]handler{
		domain.IntentCreateRequest:  d.createRequest,
		domain.IntentEmergency:      d.emergency,
		domain.IntentQueryStatus:    d.queryStatus,
		domain.IntentListRequests:   d.listRequests,
		domain.IntentGeneralInquiry: d.generalInquiry,
		domain.IntentUnknown:        d.unknown,
	}
	for _, intent := range domain.Intents {
		if _, ok := d.handlers[intent]; !ok {
			return nil, fmt.Errorf("dialogue: no handler for intent %s", intent)
		}
	}
	return d, nil
}

// Dispatch runs the handler for the turn's intent. Errors are downstream
// failures from the ticketing collaborator.
func (d *Dispatcher) Dispatch(ctx context.Context, turn Turn) (Outcome, error) {
	route := d.route(turn)
	h, ok := d.handlers[route]
	if !ok {
		route, h = domain.IntentUnknown, d.unknown
	}

	out, err := h(ctx, turn)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", route, err)
	}
	out.Route = route
	out.Response.ConversationID = turn.ConversationID
	intent := turn.Intent
	out.Response.Intent = &intent
	return out, nil
}

// route sends emergency-flagged creations to the emergency handler. An
// emergency draft still being collected stays an emergency on later turns.
func (d *Dispatcher) route(turn Turn) domain.Intent {
	intent := turn.Intent.Intent
	if intent != domain.IntentCreateRequest {
		return intent
	}
	if turn.Intent.IsEmergency {
		return domain.IntentEmergency
	}
	if continuesEmergency(turn.Prior) {
		return domain.IntentEmergency
	}
	return intent
}

// continuesEmergency reports whether prior holds an emergency draft that is
// still being collected.
func continuesEmergency(prior *domain.ConversationContext) bool {
	return prior != nil && prior.LastIntent == domain.IntentEmergency && prior.PartialRequest != nil
}

func (d *Dispatcher) createRequest(ctx context.Context, turn Turn) (Outcome, error) {
	return d.fillAndCreate(ctx, turn, domain.IntentCreateRequest)
}

func (d *Dispatcher) emergency(ctx context.Context, turn Turn) (Outcome, error) {
	return d.fillAndCreate(ctx, turn, domain.IntentEmergency)
}

// fillAndCreate merges the extraction into the pending draft and opens a
// ticket once title and description are both known.
func (d *Dispatcher) fillAndCreate(ctx context.Context, turn Turn, route domain.Intent) (Outcome, error) {
	var pending *domain.TicketDraft
	if turn.Prior != nil {
		pending = turn.Prior.PartialRequest
	}
	draft := pending.Merge(turn.Intent.ExtractedDraft)
	emergency := route == domain.IntentEmergency

	if !draft.Complete() {
		next := d.nextContext(turn, route)
		next.PartialRequest = &draft

		text := followupQuestion(draft)
		if emergency {
			text = emergencyFollowupReply
		}
		return Outcome{
			Response: domain.DialogueResponse{Text: text, RequiresFollowup: true},
			Context:  next,
		}, nil
	}

	in := domain.TicketInput{Title: draft.Title, Description: draft.Description, ImageRef: draft.ImageRef}
	if emergency {
		in.Priority = domain.HighestPriority
	}
	ticket, err := d.ticketing.Create(ctx, turn.CallerID, in)
	if err != nil {
		return Outcome{}, fmt.Errorf("create ticket: %w", err)
	}
	d.logger.Info("ticket created from dialogue",
		zap.String("conversation_id", turn.ConversationID),
		zap.Int64("ticket_id", ticket.ID),
		zap.Bool("emergency", emergency))

	text := createdReply(ticket)
	if emergency {
		text = emergencyCreatedReply(ticket)
	}
	out := Outcome{Response: domain.DialogueResponse{Text: text, CreatedTicket: ticket}}
	if pending != nil {
		next := d.nextContext(turn, route)
		next.PartialRequest = nil
		out.Context = next
	}
	return out, nil
}

func (d *Dispatcher) queryStatus(ctx context.Context, turn Turn) (Outcome, error) {
	ref := turn.Intent.ReferencedTicketID
	if ref == nil {
		return d.listRequests(ctx, turn)
	}

	ticket, err := d.ticketing.GetByID(ctx, *ref)
	switch {
	case errors.Is(err, domain.ErrTicketNotFound):
		return textOutcome(ticketNotFoundReply), nil
	case err != nil:
		return Outcome{}, fmt.Errorf("get ticket %d: %w", *ref, err)
	case ticket.CallerID != turn.CallerID:
		d.logger.Warn("status query for a ticket owned by another caller",
			zap.Int64("caller_id", turn.CallerID),
			zap.Int64("ticket_id", ticket.ID))
		return textOutcome(ticketNotFoundReply), nil
	}
	return textOutcome(statusReply(ticket)), nil
}

func (d *Dispatcher) listRequests(ctx context.Context, turn Turn) (Outcome, error) {
	tickets, err := d.ticketing.ListByCaller(ctx, turn.CallerID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list tickets: %w", err)
	}
	return textOutcome(listReply(tickets)), nil
}

func (d *Dispatcher) generalInquiry(context.Context, Turn) (Outcome, error) {
	return textOutcome(generalInquiryReply), nil
}

func (d *Dispatcher) unknown(context.Context, Turn) (Outcome, error) {
	return textOutcome(unknownIntentReply), nil
}

func (d *Dispatcher) nextContext(turn Turn, route domain.Intent) *domain.ConversationContext {
	next := turn.Prior.Clone()
	if next == nil {
		next = &domain.ConversationContext{ID: turn.ConversationID, CallerID: turn.CallerID}
	}
	next.LastIntent = route
	return next
}

func textOutcome(text string) Outcome {
	return Outcome{Response: domain.DialogueResponse{Text: text}}
}
