package handlers

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-voice/internal/api/dto"
	"github.com/spec-kit/maintenance-voice/internal/auth"
	"github.com/spec-kit/maintenance-voice/internal/domain"
	"github.com/spec-kit/maintenance-voice/internal/voice/conversation"
	"github.com/spec-kit/maintenance-voice/internal/voice/speech"
	apperrors "github.com/spec-kit/maintenance-voice/pkg/util"
)

const audioFormField = "audio"

// VoiceService runs dialogue turns.
type VoiceService interface {
	Interact(ctx context.Context, audio speech.Audio, callerID int64, conversationID string) domain.DialogueResponse
	InteractText(ctx context.Context, text string, callerID int64, conversationID string) domain.DialogueResponse
	Conversation(ctx context.Context, id string) (*domain.ConversationContext, error)
}

// VoiceHandler serves the voice assistant endpoints. Turn endpoints answer
// 200 with a dialogue response whenever the request itself is well formed.
type VoiceHandler struct {
	voice VoiceService
}

func NewVoiceHandler(voice VoiceService) *VoiceHandler {
	return &VoiceHandler{voice: voice}
}

// Interact POST /api/maintenance/voice/interact.
func (h *VoiceHandler) Interact(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("caller required")
	}

	audio, err := readAudio(c)
	if err != nil {
		return err
	}
	resp := h.voice.Interact(c.UserContext(), audio, principal.CallerID, strings.TrimSpace(c.Query("conversationId")))
	return c.JSON(dto.NewVoiceResponse(resp))
}

// InteractText POST /api/maintenance/voice/interact-text.
func (h *VoiceHandler) InteractText(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("caller required")
	}

	var req dto.InteractTextRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	resp := h.voice.InteractText(c.UserContext(), req.TranscribedText, principal.CallerID, strings.TrimSpace(req.ConversationID))
	return c.JSON(dto.NewVoiceResponse(resp))
}

// Conversation GET /api/maintenance/voice/conversation/:conversationId.
func (h *VoiceHandler) Conversation(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("caller required")
	}

	conv, err := h.voice.Conversation(c.UserContext(), c.Params("conversationId"))
	if errors.Is(err, conversation.ErrNotFound) {
		return apperrors.NewNotFound("conversation", nil)
	}
	if err != nil {
		return err
	}
	if conv.CallerID != principal.CallerID {
		return apperrors.NewNotFound("conversation", nil)
	}
	return c.JSON(dto.NewConversationResponse(conv))
}

// readAudio returns the uploaded audio part. A request without the part
// yields empty audio, which the turn answers with the transcription fallback.
func readAudio(c *fiber.Ctx) (speech.Audio, error) {
	fh, err := c.FormFile(audioFormField)
	if err != nil {
		return speech.Audio{}, nil
	}
	f, err := fh.Open()
	if err != nil {
		return speech.Audio{}, apperrors.NewValidationError("unreadable audio upload", nil)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return speech.Audio{}, apperrors.NewValidationError("unreadable audio upload", nil)
	}
	return speech.Audio{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}
