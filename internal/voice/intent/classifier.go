package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-voice/internal/domain"
	"github.com/spec-kit/maintenance-voice/internal/observability"
	"github.com/spec-kit/maintenance-voice/internal/resilience"
)

const (
	backendName = "intent"
	opClassify  = "recognize_intent"

	defaultConfidence = 0.5
	maxResponseBytes  = 1 << 20
)

// responseSchema is the contract of the recognition backend. Nullable fields
// are what the backend emits when the model left them out.
const responseSchema = `{
  "type": "object",
  "required": ["intent", "success"],
  "properties": {
    "response": {"type": ["string", "null"]},
    "success":  {"type": "boolean"},
    "error":    {"type": ["string", "null"]},
    "intent": {
      "type": "object",
      "required": ["intent"],
      "properties": {
        "intent":         {"type": "string"},
        "confidence":     {"type": ["number", "null"]},
        "ticketId":       {"type": ["integer", "null"]},
        "isEmergency":    {"type": ["boolean", "null"]},
        "additionalInfo": {"type": ["string", "null"]},
        "extractedData": {
          "type": ["object", "null"],
          "properties": {
            "title":       {"type": ["string", "null"]},
            "description": {"type": ["string", "null"]},
            "category":    {"type": ["string", "null"]},
            "imageUrl":    {"type": ["string", "null"]}
          }
        }
      }
    }
  }
}`

var compiledSchema = mustCompile(responseSchema)

func mustCompile(schema string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("intent response schema: %v", err))
	}
	return s
}

// Classification is the tagged result of Classify. Result is always usable:
// on failure it is the UNKNOWN intent with zero confidence.
type Classification struct {
	Result        domain.IntentResult
	Success       bool
	FailureReason resilience.FailureReason
}

// Config points the classifier at the recognition backend.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Breaker resilience.BreakerConfig
}

// Classifier wraps the intent-recognition backend.
type Classifier struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *resilience.Breaker
	logger  *zap.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewClassifier builds a Classifier. A nil client uses http.DefaultClient.
func NewClassifier(cfg Config, client *http.Client, logger *zap.Logger, metrics *observability.Metrics) *Classifier {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger = logger.With(zap.String("component", "intent_classifier"))

	return &Classifier{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  client,
		breaker: resilience.NewBreaker(opClassify, cfg.Breaker, func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
			metrics.BreakerStateChanged(name, from, to)
		}),
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("github.com/spec-kit/maintenance-voice/internal/voice/intent"),
	}
}

// Timeout is the per-call bound.
func (c *Classifier) Timeout() time.Duration {
	return c.timeout
}

type request struct {
	Query   string `json:"query"`
	UserID  int64  `json:"userId"`
	Context string `json:"context,omitempty"`
}

type extractedData struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	ImageURL    *string `json:"imageUrl"`
}

type intentPayload struct {
	Intent         string         `json:"intent"`
	Confidence     *float64       `json:"confidence"`
	ExtractedData  *extractedData `json:"extractedData"`
	TicketID       *int64         `json:"ticketId"`
	IsEmergency    *bool          `json:"isEmergency"`
	AdditionalInfo *string        `json:"additionalInfo"`
}

type response struct {
	Response *string       `json:"response"`
	Intent   intentPayload `json:"intent"`
	Success  bool          `json:"success"`
	Error    *string       `json:"error"`
}

// Classify recognizes the intent of utterance. contextSummary may be empty.
func (c *Classifier) Classify(ctx context.Context, utterance string, callerID int64, contextSummary string) Classification {
	ctx, span := c.tracer.Start(ctx, "intent.Classify", trace.WithAttributes(
		attribute.Int64("caller.id", callerID),
		attribute.Bool("context.present", contextSummary != ""),
	))
	defer span.End()

	start := time.Now()
	result, err := resilience.Call(ctx, c.breaker, c.timeout, func(ctx context.Context) (domain.IntentResult, error) {
		return c.recognize(ctx, request{Query: utterance, UserID: callerID, Context: contextSummary})
	})
	reason := resilience.Reason(err)
	c.metrics.RecordExternalCall(backendName, opClassify, reason, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reason))
		c.logger.Warn("intent recognition failed",
			zap.Int64("caller_id", callerID),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return Classification{Result: domain.UnknownIntent(), FailureReason: reason}
	}

	span.SetAttributes(
		attribute.String("intent", string(result.Intent)),
		attribute.Float64("intent.confidence", result.Confidence),
	)
	c.logger.Info("intent recognized",
		zap.Int64("caller_id", callerID),
		zap.String("intent", string(result.Intent)),
		zap.Float64("confidence", result.Confidence))
	return Classification{Result: result, Success: true}
}

func (c *Classifier) recognize(ctx context.Context, body request) (domain.IntentResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("encode intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/recognize-intent", bytes.NewReader(payload))
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("failed to read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		// the backend is up and refused this utterance; the breaker stays closed
		return domain.IntentResult{}, fmt.Errorf("%w: status %d: %s", resilience.ErrRejected, resp.StatusCode, truncate(string(raw), 256))
	default:
		return domain.IntentResult{}, fmt.Errorf("intent backend returned status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}

	return decode(raw)
}

// decode validates raw against the backend contract and normalizes it.
func decode(raw []byte) (domain.IntentResult, error) {
	validation, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("malformed intent response: %w", err)
	}
	if !validation.Valid() {
		problems := make([]string, 0, len(validation.Errors()))
		for _, e := range validation.Errors() {
			problems = append(problems, e.String())
		}
		return domain.IntentResult{}, fmt.Errorf("intent response violates contract: %s", strings.Join(problems, "; "))
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.IntentResult{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Success {
		msg := "unsuccessful"
		if out.Error != nil && *out.Error != "" {
			msg = *out.Error
		}
		return domain.IntentResult{}, fmt.Errorf("intent backend reported failure: %s", msg)
	}

	p := out.Intent
	result := domain.IntentResult{
		Intent:             domain.ParseIntent(p.Intent),
		Confidence:         defaultConfidence,
		ReferencedTicketID: p.TicketID,
	}
	if p.Confidence != nil {
		result.Confidence = clamp01(*p.Confidence)
	}
	if p.IsEmergency != nil {
		result.IsEmergency = *p.IsEmergency
	}
	if p.AdditionalInfo != nil {
		result.AdditionalInfo = *p.AdditionalInfo
	}
	if d := p.ExtractedData; d != nil {
		draft := &domain.TicketDraft{
			Title:       strings.TrimSpace(deref(d.Title)),
			Description: strings.TrimSpace(deref(d.Description)),
			ImageRef:    strings.TrimSpace(deref(d.ImageURL)),
		}
		if *draft != (domain.TicketDraft{}) {
			result.ExtractedDraft = draft
		}
	}
	return result, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
