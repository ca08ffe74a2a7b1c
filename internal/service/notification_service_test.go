package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/maintenance-voice/internal/domain"
	"github.com/spec-kit/maintenance-voice/internal/events"
	"github.com/spec-kit/maintenance-voice/internal/messaging"
)

type capturePublisher struct {
	sent []messaging.Notification
	err  error
}

func (c *capturePublisher) Publish(_ context.Context, n messaging.Notification) error {
	c.sent = append(c.sent, n)
	return c.err
}

func TestNotificationService_ForwardsCriticalTickets(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	publisher := &capturePublisher{}
	NewNotificationService(dispatcher, publisher, zaptest.NewLogger(t)).RegisterHandlers()

	svc := NewTicketService(TicketDependencies{TicketRepo: newMemoryTicketRepo(), Dispatcher: dispatcher})
	_, err := svc.Create(context.Background(), 7, domain.TicketInput{Title: "Lamp", Description: "Lamp is dim"})
	require.NoError(t, err)
	assert.Empty(t, publisher.sent)

	ticket, err := svc.Create(context.Background(), 7, domain.TicketInput{
		Title:       "Gas",
		Description: "Urgent gas smell in the kitchen",
	})
	require.NoError(t, err)
	require.Equal(t, domain.TicketPriorityCritical, ticket.Priority)

	require.Len(t, publisher.sent, 1)
	sent := publisher.sent[0]
	assert.Equal(t, "NEW_REQUEST", sent.Type)
	assert.Equal(t, "New Maintenance Request #2", sent.Subject)
	assert.Equal(t, "CRITICAL", sent.Data["priority"])
	assert.Equal(t, "PLUMBING", sent.Data["category"])
	assert.Equal(t, "7", sent.Data["callerId"])
}

func TestNotificationService_PublisherFailureDoesNotFailTicket(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	publisher := &capturePublisher{err: errors.New("sns down")}
	NewNotificationService(dispatcher, publisher, zaptest.NewLogger(t)).RegisterHandlers()

	svc := NewTicketService(TicketDependencies{TicketRepo: newMemoryTicketRepo(), Dispatcher: dispatcher, Logger: zaptest.NewLogger(t)})
	ticket, err := svc.Create(context.Background(), 7, domain.TicketInput{
		Title:       "Fire",
		Description: "Fire alarm, dangerous smoke",
		Priority:    domain.HighestPriority,
	})
	require.NoError(t, err)
	assert.NotZero(t, ticket.ID)
	assert.Len(t, publisher.sent, 1)
}

func TestNotificationService_NoPublisherOnlyLogs(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, nil, zaptest.NewLogger(t)).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventCriticalTicketOpened,
		Payload: events.TicketCreatedPayload{Priority: domain.TicketPriorityCritical},
	})
	assert.NoError(t, err)
}

func TestNotificationService_AssignmentAndStatusChange(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	publisher := &capturePublisher{}
	NewNotificationService(dispatcher, publisher, zaptest.NewLogger(t)).RegisterHandlers()

	svc := NewTicketService(TicketDependencies{TicketRepo: newMemoryTicketRepo(), Dispatcher: dispatcher})
	ticket, err := svc.Create(context.Background(), 7, domain.TicketInput{Title: "Lamp", Description: "Lamp is dim"})
	require.NoError(t, err)

	technician := int64(31)
	_, err = svc.Update(context.Background(), ticket.ID, domain.TicketUpdate{AssigneeID: &technician})
	require.NoError(t, err)

	require.Len(t, publisher.sent, 2)
	assignment := publisher.sent[0]
	assert.Equal(t, "ASSIGNMENT", assignment.Type)
	assert.Equal(t, "New Assignment: Lamp", assignment.Subject)
	assert.Equal(t, "31", assignment.Data["technicianId"])

	status := publisher.sent[1]
	assert.Equal(t, "STATUS_CHANGE", status.Type)
	assert.Equal(t, "Request #1 Status Updated", status.Subject)
	assert.Equal(t, "PENDING", status.Data["oldStatus"])
	assert.Equal(t, "IN_PROGRESS", status.Data["newStatus"])
	assert.Equal(t, "7", status.Data["callerId"])
}
