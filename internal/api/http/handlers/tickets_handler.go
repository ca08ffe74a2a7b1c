package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-voice/internal/api/dto"
	"github.com/spec-kit/maintenance-voice/internal/auth"
	"github.com/spec-kit/maintenance-voice/internal/domain"
	"github.com/spec-kit/maintenance-voice/internal/service"
	apperrors "github.com/spec-kit/maintenance-voice/pkg/util"
)

// TicketService is what the ticket endpoints need from the ticket workflow.
type TicketService interface {
	Create(ctx context.Context, callerID int64, input domain.TicketInput) (*domain.Ticket, error)
	GetForCaller(ctx context.Context, callerID, id int64) (*domain.Ticket, error)
	ListForCaller(ctx context.Context, callerID int64, filter service.TicketCallerFilter) ([]domain.Ticket, error)
	Update(ctx context.Context, id int64, update domain.TicketUpdate) (*domain.Ticket, error)
}

// TicketsHandler manages caller ticket endpoints.
type TicketsHandler struct {
	service TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /api/maintenance.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("caller required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		return apperrors.NewValidationError("title, description required", nil)
	}
	req.Priority = domain.TicketPriority(strings.ToUpper(strings.TrimSpace(string(req.Priority))))
	if !dto.ValidPriority(req.Priority) {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": req.Priority})
	}

	ticket, err := h.service.Create(c.UserContext(), principal.CallerID, domain.TicketInput{
		Title:       req.Title,
		Description: req.Description,
		ImageRef:    req.ImageURL,
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListMyTickets GET /api/maintenance/my.
func (h *TicketsHandler) ListMyTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("caller required")
	}
	tickets, err := h.service.ListForCaller(c.UserContext(), principal.CallerID, parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/maintenance/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("caller required")
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("invalid ticket id", nil)
	}
	ticket, err := h.service.GetForCaller(c.UserContext(), principal.CallerID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PUT /api/maintenance/:id, for technicians and admins.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("invalid ticket id", nil)
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	update := domain.TicketUpdate{AssigneeID: req.AssignedTo}
	if req.Status != nil {
		status := domain.TicketStatus(strings.ToUpper(strings.TrimSpace(string(*req.Status))))
		update.Status = &status
	}

	ticket, err := h.service.Update(c.UserContext(), id, update)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

func parseTicketQuery(c *fiber.Ctx) service.TicketCallerFilter {
	filter := service.TicketCallerFilter{}
	for _, part := range splitQuery(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(part))
	}
	for _, part := range splitQuery(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(part))
	}
	for _, part := range splitQuery(c.Query("category")) {
		filter.Categories = append(filter.Categories, domain.TicketCategory(part))
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func splitQuery(val string) []string {
	if val == "" {
		return nil
	}
	out := []string{}
	for _, part := range strings.Split(val, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
