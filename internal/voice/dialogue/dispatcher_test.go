package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/maintenance-voice/internal/domain"
)

func newTestDispatcher(t *testing.T, ticketing *fakeTicketing) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(ticketing, zaptest.NewLogger(t))
	require.NoError(t, err)
	return d
}

func TestNewDispatcher_CoversEveryIntent(t *testing.T) {
	d := newTestDispatcher(t, newFakeTicketing())
	for _, i := range domain.Intents {
		assert.Contains(t, d.handlers, i)
	}

	_, err := NewDispatcher(nil, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestDispatch_CreateIncompleteAsksForDescription(t *testing.T) {
	ticketing := newFakeTicketing()
	d := newTestDispatcher(t, ticketing)

	out, err := d.Dispatch(context.Background(), Turn{
		ConversationID: "7_1",
		CallerID:       7,
		Intent:         domain.IntentResult{Intent: domain.IntentCreateRequest, ExtractedDraft: draft("Leak", "")},
	})
	require.NoError(t, err)

	assert.True(t, out.Response.RequiresFollowup)
	assert.Equal(t, askDescriptionReply, out.Response.Text)
	assert.Equal(t, "7_1", out.Response.ConversationID)
	require.NotNil(t, out.Context)
	assert.Equal(t, domain.IntentCreateRequest, out.Context.LastIntent)
	assert.Equal(t, &domain.TicketDraft{Title: "Leak"}, out.Context.PartialRequest)
	assert.Zero(t, ticketing.callCount())
}

func TestDispatch_CreateMissingTitleAsksForTitle(t *testing.T) {
	d := newTestDispatcher(t, newFakeTicketing())

	out, err := d.Dispatch(context.Background(), Turn{
		ConversationID: "7_1",
		CallerID:       7,
		Intent:         domain.IntentResult{Intent: domain.IntentCreateRequest, ExtractedDraft: draft("", "Water everywhere")},
	})
	require.NoError(t, err)
	assert.Equal(t, askTitleReply, out.Response.Text)
}

func TestDispatch_CreateMergesPriorPartial(t *testing.T) {
	ticketing := newFakeTicketing()
	d := newTestDispatcher(t, ticketing)
	prior := &domain.ConversationContext{
		ID:             "7_1",
		CallerID:       7,
		LastIntent:     domain.IntentCreateRequest,
		PartialRequest: &domain.TicketDraft{Title: "Leak", ImageRef: "s3://img"},
	}

	out, err := d.Dispatch(context.Background(), Turn{
		ConversationID: "7_1",
		CallerID:       7,
		Intent:         domain.IntentResult{Intent: domain.IntentCreateRequest, ExtractedDraft: draft("", "Kitchen sink")},
		Prior:          prior,
	})
	require.NoError(t, err)

	require.NotNil(t, out.Response.CreatedTicket)
	assert.False(t, out.Response.RequiresFollowup)
	assert.Equal(t, domain.TicketInput{Title: "Leak", Description: "Kitchen sink", ImageRef: "s3://img"}, ticketing.inputs[0])
	assert.Contains(t, out.Response.Text, fmt.Sprintf("Ticket number %d for plumbing", out.Response.CreatedTicket.ID))
	assert.Contains(t, out.Response.Text, "moderate priority")

	require.NotNil(t, out.Context, "consumed partial must be cleared")
	assert.Nil(t, out.Context.PartialRequest)
	assert.NotNil(t, prior.PartialRequest, "prior context must not be mutated")
}

func TestDispatch_CreateWithoutPriorLeavesNoContext(t *testing.T) {
	d := newTestDispatcher(t, newFakeTicketing())

	out, err := d.Dispatch(context.Background(), Turn{
		ConversationID: "7_1",
		CallerID:       7,
		Intent:         domain.IntentResult{Intent: domain.IntentCreateRequest, ExtractedDraft: draft("Leak", "Sink")},
	})
	require.NoError(t, err)
	assert.NotNil(t, out.Response.CreatedTicket)
	assert.Nil(t, out.Context)
}

func TestDispatch_CreateFailurePropagates(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.createErr = errors.New("db down")
	d := newTestDispatcher(t, ticketing)

	_, err := d.Dispatch(context.Background(), Turn{
		ConversationID: "7_1",
		CallerID:       7,
		Intent:         domain.IntentResult{Intent: domain.IntentCreateRequest, ExtractedDraft: draft("Leak", "Sink")},
	})
	assert.ErrorContains(t, err, "db down")
}

func TestDispatch_EmergencyForcesHighestPriority(t *testing.T) {
	tests := []struct {
		name   string
		result domain.IntentResult
	}{
		{name: "emergency intent", result: domain.IntentResult{Intent: domain.IntentEmergency, ExtractedDraft: draft("Gas leak", "Smell of gas in hallway")}},
		{name: "create flagged as emergency", result: domain.IntentResult{Intent: domain.IntentCreateRequest, IsEmergency: true, ExtractedDraft: draft("Gas leak", "Smell of gas in hallway")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticketing := newFakeTicketing()
			d := newTestDispatcher(t, ticketing)

			out, err := d.Dispatch(context.Background(), Turn{ConversationID: "7_1", CallerID: 7, Intent: tt.result})
			require.NoError(t, err)

			assert.Equal(t, domain.IntentEmergency, out.Route)
			require.NotNil(t, out.Response.CreatedTicket)
			assert.Equal(t, domain.HighestPriority, out.Response.CreatedTicket.Priority)
			assert.Equal(t, domain.HighestPriority, ticketing.inputs[0].Priority)
			assert.Contains(t, out.Response.Text, "critical priority")
			assert.Contains(t, out.Response.Text, "please call 911")
		})
	}
}

func TestDispatch_EmergencyFollowupStaysEmergency(t *testing.T) {
	ticketing := newFakeTicketing()
	d := newTestDispatcher(t, ticketing)

	first, err := d.Dispatch(context.Background(), Turn{
		ConversationID: "7_1",
		CallerID:       7,
		Intent:         domain.IntentResult{Intent: domain.IntentEmergency, IsEmergency: true},
	})
	require.NoError(t, err)
	assert.Equal(t, emergencyFollowupReply, first.Response.Text)
	assert.True(t, first.Response.RequiresFollowup)
	require.NotNil(t, first.Context)

	second, err := d.Dispatch(context.Background(), Turn{
		ConversationID: "7_1",
		CallerID:       7,
		Intent:         domain.IntentResult{Intent: domain.IntentCreateRequest, ExtractedDraft: draft("Flood", "Water pouring from ceiling")},
		Prior:          first.Context,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentEmergency, second.Route)
	assert.Equal(t, domain.HighestPriority, second.Response.CreatedTicket.Priority)
}

func TestDispatch_QueryStatus(t *testing.T) {
	ticketing := newFakeTicketing()
	assignee := int64(55)
	ticketing.tickets = []domain.Ticket{
		{ID: 12, CallerID: 7, Title: "Broken heater", Status: domain.TicketStatusInProgress, AssigneeID: &assignee, CreatedAt: created},
		{ID: 13, CallerID: 8, Title: "Door lock", Status: domain.TicketStatusPending, CreatedAt: created},
		{ID: 14, CallerID: 7, Title: "Light bulb", Status: domain.TicketStatusPending, CreatedAt: created},
	}
	d := newTestDispatcher(t, ticketing)

	tests := []struct {
		name string
		ref  *int64
		want string
	}{
		{
			name: "assigned ticket",
			ref:  ticketID(12),
			want: "Your request #12 for Broken heater is currently in progress. It was created on April 2, 2025. A technician has been assigned and will contact you soon.",
		},
		{
			name: "unassigned ticket",
			ref:  ticketID(14),
			want: "Your request #14 for Light bulb is currently pending. It was created on April 2, 2025. We're working on assigning a technician.",
		},
		{name: "ticket of another caller", ref: ticketID(13), want: ticketNotFoundReply},
		{name: "missing ticket", ref: ticketID(99), want: ticketNotFoundReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := d.Dispatch(context.Background(), Turn{
				ConversationID: "7_1",
				CallerID:       7,
				Intent:         domain.IntentResult{Intent: domain.IntentQueryStatus, ReferencedTicketID: tt.ref},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Response.Text)
			assert.Nil(t, out.Context)
		})
	}
}

func TestDispatch_QueryStatusWithoutReferenceLists(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.tickets = []domain.Ticket{{ID: 1, CallerID: 7, Title: "Leak", Status: domain.TicketStatusPending}}
	d := newTestDispatcher(t, ticketing)

	out, err := d.Dispatch(context.Background(), Turn{ConversationID: "7_1", CallerID: 7, Intent: domain.IntentResult{Intent: domain.IntentQueryStatus}})
	require.NoError(t, err)
	assert.Equal(t, "You have 1 maintenance request. Request #1 for Leak is pending. Would you like details on any specific request?", out.Response.Text)
}

func TestDispatch_QueryStatusLookupErrorPropagates(t *testing.T) {
	ticketing := newFakeTicketing()
	ticketing.getErr = errors.New("timeout")
	d := newTestDispatcher(t, ticketing)

	_, err := d.Dispatch(context.Background(), Turn{CallerID: 7, Intent: domain.IntentResult{Intent: domain.IntentQueryStatus, ReferencedTicketID: ticketID(1)}})
	assert.Error(t, err)
}

func TestDispatch_ListRequests(t *testing.T) {
	tickets := func(n int) []domain.Ticket {
		out := make([]domain.Ticket, 0, n)
		for i := n; i >= 1; i-- {
			out = append(out, domain.Ticket{
				ID:        int64(i),
				CallerID:  7,
				Title:     fmt.Sprintf("Issue %d", i),
				Status:    domain.TicketStatusPending,
				CreatedAt: created.Add(time.Duration(i) * time.Hour),
			})
		}
		return out
	}

	t.Run("none", func(t *testing.T) {
		d := newTestDispatcher(t, newFakeTicketing())
		out, err := d.Dispatch(context.Background(), Turn{CallerID: 7, Intent: domain.IntentResult{Intent: domain.IntentListRequests}})
		require.NoError(t, err)
		assert.Equal(t, noTicketsReply, out.Response.Text)
	})

	t.Run("five tickets name three", func(t *testing.T) {
		ticketing := newFakeTicketing()
		ticketing.tickets = tickets(5)
		d := newTestDispatcher(t, ticketing)

		out, err := d.Dispatch(context.Background(), Turn{CallerID: 7, Intent: domain.IntentResult{Intent: domain.IntentListRequests}})
		require.NoError(t, err)

		text := out.Response.Text
		assert.True(t, strings.HasPrefix(text, "You have 5 maintenance requests. "))
		assert.Equal(t, 3, strings.Count(text, "Request #"))
		assert.Contains(t, text, "Request #5 for Issue 5 is pending.")
		assert.NotContains(t, text, "Request #2 ")
		assert.True(t, strings.HasSuffix(text, "And 2 more."))
	})

	t.Run("three tickets", func(t *testing.T) {
		ticketing := newFakeTicketing()
		ticketing.tickets = tickets(3)
		d := newTestDispatcher(t, ticketing)

		out, err := d.Dispatch(context.Background(), Turn{CallerID: 7, Intent: domain.IntentResult{Intent: domain.IntentListRequests}})
		require.NoError(t, err)
		assert.Equal(t, 3, strings.Count(out.Response.Text, "Request #"))
		assert.NotContains(t, out.Response.Text, "more.")
	})
}

func TestDispatch_StaticRepliesSkipTicketing(t *testing.T) {
	ticketing := newFakeTicketing()
	d := newTestDispatcher(t, ticketing)

	general, err := d.Dispatch(context.Background(), Turn{CallerID: 7, Intent: domain.IntentResult{Intent: domain.IntentGeneralInquiry}})
	require.NoError(t, err)
	assert.Equal(t, generalInquiryReply, general.Response.Text)

	unknown, err := d.Dispatch(context.Background(), Turn{CallerID: 7, Intent: domain.UnknownIntent()})
	require.NoError(t, err)
	assert.Equal(t, unknownIntentReply, unknown.Response.Text)

	assert.Zero(t, ticketing.callCount())
}

func TestSummarize(t *testing.T) {
	assert.Empty(t, Summarize(nil))

	got := Summarize(&domain.ConversationContext{
		LastIntent:     domain.IntentCreateRequest,
		PartialRequest: &domain.TicketDraft{Title: "Leak"},
	})
	assert.Equal(t, "Previous conversation context:\nLast intent: CREATE_MAINTENANCE_REQUEST\nPartial request details:\n- Title: Leak\n", got)
}
