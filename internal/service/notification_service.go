package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-voice/internal/events"
	"github.com/spec-kit/maintenance-voice/internal/messaging"
)

const (
	newRequestNotification   = "NEW_REQUEST"
	assignmentNotification   = "ASSIGNMENT"
	statusChangeNotification = "STATUS_CHANGE"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  messaging.Publisher
	logger     *zap.Logger
}

// NewNotificationService creates the service. A nil publisher only logs.
func NewNotificationService(dispatcher events.Dispatcher, publisher messaging.Publisher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventCriticalTicketOpened, n.handleCriticalTicketOpened)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleStatusChanged)
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleCriticalTicketOpened(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("critical_ticket_opened: unexpected payload %T", event.Payload)
	}
	if n.publisher == nil {
		n.logger.Warn("critical ticket opened without a notification topic", zap.Int64("ticket_id", event.TicketID))
		return nil
	}
	requestID := strconv.FormatInt(event.TicketID, 10)
	return n.send(ctx, event, messaging.Notification{
		Type:    newRequestNotification,
		Subject: "New Maintenance Request #" + requestID,
		Data: map[string]string{
			"title":     payload.Title,
			"category":  string(payload.Category),
			"priority":  string(payload.Priority),
			"requestId": requestID,
			"callerId":  strconv.FormatInt(event.CallerID, 10),
		},
	})
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("ticket_assigned: unexpected payload %T", event.Payload)
	}
	return n.send(ctx, event, messaging.Notification{
		Type:    assignmentNotification,
		Subject: "New Assignment: " + payload.Title,
		Data: map[string]string{
			"technicianId": strconv.FormatInt(payload.AssigneeID, 10),
			"title":        payload.Title,
			"category":     string(payload.Category),
			"priority":     string(payload.Priority),
			"requestId":    strconv.FormatInt(event.TicketID, 10),
		},
	})
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("ticket_status_changed: unexpected payload %T", event.Payload)
	}
	requestID := strconv.FormatInt(event.TicketID, 10)
	return n.send(ctx, event, messaging.Notification{
		Type:    statusChangeNotification,
		Subject: "Request #" + requestID + " Status Updated",
		Data: map[string]string{
			"callerId":  strconv.FormatInt(event.CallerID, 10),
			"title":     payload.Title,
			"oldStatus": string(payload.OldStatus),
			"newStatus": string(payload.NewStatus),
			"requestId": requestID,
		},
	})
}

func (n *NotificationService) send(ctx context.Context, event events.Event, notification messaging.Notification) error {
	if n.publisher == nil {
		n.logger.Debug("no notification topic configured",
			zap.String("type", notification.Type),
			zap.Int64("ticket_id", event.TicketID))
		return nil
	}
	if err := n.publisher.Publish(ctx, notification); err != nil {
		n.logger.Error("notification failed",
			zap.String("type", notification.Type),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
		return err
	}
	return nil
}
