package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/maintenance-voice/internal/api/http/handlers"
	"github.com/spec-kit/maintenance-voice/internal/auth"
	"github.com/spec-kit/maintenance-voice/internal/domain"
	"github.com/spec-kit/maintenance-voice/internal/observability"
	"github.com/spec-kit/maintenance-voice/internal/service"
	"github.com/spec-kit/maintenance-voice/internal/voice/conversation"
	"github.com/spec-kit/maintenance-voice/internal/voice/speech"
)

type stubVoice struct {
	audio    speech.Audio
	text     string
	callerID int64
	convID   string
	stored   map[string]*domain.ConversationContext
}

func (s *stubVoice) Interact(_ context.Context, audio speech.Audio, callerID int64, conversationID string) domain.DialogueResponse {
	s.audio, s.callerID, s.convID = audio, callerID, conversationID
	return domain.DialogueResponse{Text: "heard you", ConversationID: "7_1", AudioBase64: "AAAA", AudioFormat: "mp3"}
}

func (s *stubVoice) InteractText(_ context.Context, text string, callerID int64, conversationID string) domain.DialogueResponse {
	s.text, s.callerID, s.convID = text, callerID, conversationID
	return domain.DialogueResponse{
		Text:             "Could you describe the problem?",
		ConversationID:   conversationID,
		RequiresFollowup: true,
		Intent:           &domain.IntentResult{Intent: domain.IntentCreateRequest, Confidence: 0.9},
	}
}

func (s *stubVoice) Conversation(_ context.Context, id string) (*domain.ConversationContext, error) {
	c, ok := s.stored[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	return c, nil
}

type stubTickets struct {
	input  domain.TicketInput
	filter service.TicketCallerFilter
	update *domain.TicketUpdate
	err    error
}

func (s *stubTickets) Create(_ context.Context, callerID int64, input domain.TicketInput) (*domain.Ticket, error) {
	s.input = input
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Ticket{ID: 11, CallerID: callerID, Title: input.Title, Priority: domain.TicketPriorityLow, Status: domain.TicketStatusPending}, nil
}

func (s *stubTickets) GetForCaller(_ context.Context, callerID, id int64) (*domain.Ticket, error) {
	if id != 11 || callerID != 7 {
		return nil, domain.ErrTicketNotFound
	}
	return &domain.Ticket{ID: 11, CallerID: 7, Title: "Leak"}, nil
}

func (s *stubTickets) ListForCaller(_ context.Context, callerID int64, filter service.TicketCallerFilter) ([]domain.Ticket, error) {
	s.filter = filter
	return []domain.Ticket{{ID: 2, CallerID: callerID}, {ID: 1, CallerID: callerID}}, nil
}

func (s *stubTickets) Update(_ context.Context, id int64, update domain.TicketUpdate) (*domain.Ticket, error) {
	s.update = &update
	if id != 11 {
		return nil, domain.ErrTicketNotFound
	}
	ticket := &domain.Ticket{ID: 11, CallerID: 7, Title: "Leak", Status: domain.TicketStatusPending, AssigneeID: update.AssigneeID}
	if update.Status != nil {
		ticket.Status = *update.Status
	}
	return ticket, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestApp(t *testing.T, voice *stubVoice, tickets *stubTickets, deps map[string]handlers.Pinger) *fiber.App {
	t.Helper()
	logger := zaptest.NewLogger(t)
	metrics := observability.NewMetrics(nil)
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("maintenance-voice", "test", deps),
		Voice:          handlers.NewVoiceHandler(voice),
		Tickets:        handlers.NewTicketsHandler(tickets),
		AuthMiddleware: auth.NewAuthMiddleware(nil),
		Metrics:        metrics,
	})
	return app
}

func send(t *testing.T, app *fiber.App, req *stdhttp.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp.StatusCode, body
}

func jsonRequest(method, target, body string) *stdhttp.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(auth.CallerIDHeader, "7")
	return req
}

func TestVoice_InteractMultipart(t *testing.T) {
	voice := &stubVoice{}
	app := newTestApp(t, voice, &stubTickets{}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", "turn.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("RIFFdata"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(stdhttp.MethodPost, "/api/maintenance/voice/interact?conversationId=7_1", &buf)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(auth.CallerIDHeader, "7")

	status, body := send(t, app, req)
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Equal(t, "heard you", body["textResponse"])
	assert.Equal(t, "AAAA", body["audioResponseBase64"])
	assert.Equal(t, "7_1", body["conversationId"])

	assert.Equal(t, []byte("RIFFdata"), voice.audio.Data)
	assert.Equal(t, "turn.wav", voice.audio.FileName)
	assert.Equal(t, int64(7), voice.callerID)
	assert.Equal(t, "7_1", voice.convID)
}

func TestVoice_InteractWithoutAudioStillAnswers(t *testing.T) {
	voice := &stubVoice{}
	app := newTestApp(t, voice, &stubTickets{}, nil)

	req := httptest.NewRequest(stdhttp.MethodPost, "/api/maintenance/voice/interact", nil)
	req.Header.Set(auth.CallerIDHeader, "7")

	status, _ := send(t, app, req)
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Empty(t, voice.audio.Data)
}

func TestVoice_InteractText(t *testing.T) {
	voice := &stubVoice{}
	app := newTestApp(t, voice, &stubTickets{}, nil)

	status, body := send(t, app, jsonRequest(stdhttp.MethodPost, "/api/maintenance/voice/interact-text",
		`{"transcribedText":"I want to report a leak","conversationId":"7_99"}`))
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Equal(t, true, body["requiresFollowup"])
	assert.Equal(t, "7_99", body["conversationId"])
	assert.Equal(t, "CREATE_MAINTENANCE_REQUEST", body["intent"].(map[string]any)["intent"])
	assert.Equal(t, "I want to report a leak", voice.text)
}

func TestVoice_InteractTextRejectsMalformedBody(t *testing.T) {
	app := newTestApp(t, &stubVoice{}, &stubTickets{}, nil)

	status, body := send(t, app, jsonRequest(stdhttp.MethodPost, "/api/maintenance/voice/interact-text", `{"transcribedText":`))
	assert.Equal(t, stdhttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body["error"].(map[string]any)["code"])
}

func TestVoice_RequiresCaller(t *testing.T) {
	app := newTestApp(t, &stubVoice{}, &stubTickets{}, nil)

	req := httptest.NewRequest(stdhttp.MethodPost, "/api/maintenance/voice/interact-text", strings.NewReader(`{}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	status, body := send(t, app, req)
	assert.Equal(t, stdhttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])
}

func TestVoice_Conversation(t *testing.T) {
	voice := &stubVoice{stored: map[string]*domain.ConversationContext{
		"7_1": {ID: "7_1", CallerID: 7, LastIntent: domain.IntentCreateRequest, PartialRequest: &domain.TicketDraft{Title: "Leak"}},
		"8_1": {ID: "8_1", CallerID: 8},
	}}
	app := newTestApp(t, voice, &stubTickets{}, nil)

	status, body := send(t, app, jsonRequest(stdhttp.MethodGet, "/api/maintenance/voice/conversation/7_1", ""))
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Equal(t, "Leak", body["partialRequest"].(map[string]any)["title"])

	status, _ = send(t, app, jsonRequest(stdhttp.MethodGet, "/api/maintenance/voice/conversation/8_1", ""))
	assert.Equal(t, stdhttp.StatusNotFound, status)

	status, _ = send(t, app, jsonRequest(stdhttp.MethodGet, "/api/maintenance/voice/conversation/missing", ""))
	assert.Equal(t, stdhttp.StatusNotFound, status)
}

func TestTickets_Create(t *testing.T) {
	tickets := &stubTickets{}
	app := newTestApp(t, &stubVoice{}, tickets, nil)

	status, body := send(t, app, jsonRequest(stdhttp.MethodPost, "/api/maintenance",
		`{"title":"Leak","description":"Sink leaking","priority":"high","imageUrl":"https://img/x.jpg"}`))
	assert.Equal(t, stdhttp.StatusCreated, status)
	assert.Equal(t, float64(11), body["data"].(map[string]any)["id"])
	assert.Equal(t, domain.TicketPriorityHigh, tickets.input.Priority)
	assert.Equal(t, "https://img/x.jpg", tickets.input.ImageRef)
}

func TestTickets_CreateValidation(t *testing.T) {
	app := newTestApp(t, &stubVoice{}, &stubTickets{}, nil)

	status, _ := send(t, app, jsonRequest(stdhttp.MethodPost, "/api/maintenance", `{"title":"Leak"}`))
	assert.Equal(t, stdhttp.StatusBadRequest, status)

	status, _ = send(t, app, jsonRequest(stdhttp.MethodPost, "/api/maintenance", `{"title":"Leak","description":"x","priority":"SEVERE"}`))
	assert.Equal(t, stdhttp.StatusBadRequest, status)
}

func TestTickets_CreateStorageFailureIsInternal(t *testing.T) {
	app := newTestApp(t, &stubVoice{}, &stubTickets{err: errors.New("db down")}, nil)

	status, body := send(t, app, jsonRequest(stdhttp.MethodPost, "/api/maintenance", `{"title":"Leak","description":"Sink"}`))
	assert.Equal(t, stdhttp.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", body["error"].(map[string]any)["code"])
}

func TestTickets_ListMine(t *testing.T) {
	tickets := &stubTickets{}
	app := newTestApp(t, &stubVoice{}, tickets, nil)

	status, body := send(t, app, jsonRequest(stdhttp.MethodGet, "/api/maintenance/my?status=pending,in_progress&page=2&page_size=5", ""))
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Len(t, body["data"], 2)
	assert.Equal(t, []domain.TicketStatus{domain.TicketStatusPending, domain.TicketStatusInProgress}, tickets.filter.Statuses)
	assert.Equal(t, 5, tickets.filter.Offset)
	assert.Equal(t, 5, tickets.filter.Limit)
}

func TestTickets_Get(t *testing.T) {
	app := newTestApp(t, &stubVoice{}, &stubTickets{}, nil)

	status, _ := send(t, app, jsonRequest(stdhttp.MethodGet, "/api/maintenance/11", ""))
	assert.Equal(t, stdhttp.StatusOK, status)

	status, body := send(t, app, jsonRequest(stdhttp.MethodGet, "/api/maintenance/12", ""))
	assert.Equal(t, stdhttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])

	status, _ = send(t, app, jsonRequest(stdhttp.MethodGet, "/api/maintenance/abc", ""))
	assert.Equal(t, stdhttp.StatusBadRequest, status)
}

func TestTickets_UpdateByStaff(t *testing.T) {
	tickets := &stubTickets{}
	app := newTestApp(t, &stubVoice{}, tickets, nil)

	req := jsonRequest(stdhttp.MethodPut, "/api/maintenance/11", `{"status":"in_progress","assignedTo":31}`)
	req.Header.Set(auth.RoleHeader, auth.RoleTechnician)
	status, body := send(t, app, req)

	require.Equal(t, stdhttp.StatusOK, status)
	require.NotNil(t, tickets.update)
	assert.Equal(t, domain.TicketStatusInProgress, *tickets.update.Status)
	assert.Equal(t, int64(31), *tickets.update.AssigneeID)
	data := body["data"].(map[string]any)
	assert.Equal(t, "IN_PROGRESS", data["status"])
	assert.Equal(t, float64(31), data["assignedTo"])

	req = jsonRequest(stdhttp.MethodPut, "/api/maintenance/12", `{"status":"COMPLETED"}`)
	req.Header.Set(auth.RoleHeader, auth.RoleAdmin)
	status, _ = send(t, app, req)
	assert.Equal(t, stdhttp.StatusNotFound, status)
}

func TestTickets_UpdateRequiresStaffRole(t *testing.T) {
	tickets := &stubTickets{}
	app := newTestApp(t, &stubVoice{}, tickets, nil)

	req := jsonRequest(stdhttp.MethodPut, "/api/maintenance/11", `{"status":"COMPLETED"}`)
	req.Header.Set(auth.RoleHeader, auth.RoleResident)
	status, body := send(t, app, req)

	assert.Equal(t, stdhttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["error"].(map[string]any)["code"])
	assert.Nil(t, tickets.update)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, &stubVoice{}, &stubTickets{}, map[string]handlers.Pinger{"redis": failingPinger{}, "postgres": nil})

	status, body := send(t, app, httptest.NewRequest(stdhttp.MethodGet, "/health/live", nil))
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = send(t, app, httptest.NewRequest(stdhttp.MethodGet, "/health/ready", nil))
	assert.Equal(t, stdhttp.StatusServiceUnavailable, status)
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "connection refused", details["redis"])
	assert.NotContains(t, details, "postgres")
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, &stubVoice{}, &stubTickets{}, nil)
	send(t, app, httptest.NewRequest(stdhttp.MethodGet, "/health/live", nil))

	resp, err := app.Test(httptest.NewRequest(stdhttp.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `http_requests_total{method="GET"`)
}
