package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-voice/internal/observability"
	"github.com/spec-kit/maintenance-voice/internal/resilience"
)

const (
	backendName = "voice"

	opSpeechToText = "speech_to_text"
	opTextToSpeech = "text_to_speech"

	// TranscriptionFallback is spoken back when audio could not be transcribed.
	TranscriptionFallback = "I couldn't understand the audio. Please try again."
	// SynthesisFallback describes a failed synthesis.
	SynthesisFallback = "Text-to-speech service unavailable"

	defaultAudioFormat = "mp3"
	maxResponseBytes   = 32 << 20
)

// Audio is an uploaded utterance.
type Audio struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Transcription is the tagged result of SpeechToText.
type Transcription struct {
	Text          string
	Confidence    float64
	Success       bool
	FailureReason resilience.FailureReason
	Message       string
}

// Synthesis is the tagged result of TextToSpeech.
type Synthesis struct {
	AudioBase64   string
	Format        string
	Success       bool
	FailureReason resilience.FailureReason
	Message       string
}

// Config points the gateway at the voice backend.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Breaker resilience.BreakerConfig
}

// Gateway wraps the speech backend. Its methods never return errors; every
// failure is folded into the result.
type Gateway struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	stt     *resilience.Breaker
	tts     *resilience.Breaker
	logger  *zap.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewGateway builds a Gateway. A nil client uses http.DefaultClient.
func NewGateway(cfg Config, client *http.Client, logger *zap.Logger, metrics *observability.Metrics) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger = logger.With(zap.String("component", "speech_gateway"))
	onChange := func(name string, from, to resilience.State) {
		logger.Warn("circuit breaker state changed",
			zap.String("breaker", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		metrics.BreakerStateChanged(name, from, to)
	}

	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  client,
		stt:     resilience.NewBreaker(opSpeechToText, cfg.Breaker, onChange),
		tts:     resilience.NewBreaker(opTextToSpeech, cfg.Breaker, onChange),
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("github.com/spec-kit/maintenance-voice/internal/voice/speech"),
	}
}

// Timeout is the per-call bound applied to each operation.
func (g *Gateway) Timeout() time.Duration {
	return g.timeout
}

type sttResponse struct {
	Text       string  `json:"text"`
	Success    bool    `json:"success"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

type ttsRequest struct {
	Text string `json:"text"`
}

type ttsResponse struct {
	AudioBase64 string `json:"audioBase64"`
	Success     bool   `json:"success"`
	Error       string `json:"error"`
	Format      string `json:"format"`
}

// SpeechToText transcribes audio.
func (g *Gateway) SpeechToText(ctx context.Context, audio Audio) Transcription {
	ctx, span := g.tracer.Start(ctx, "speech.SpeechToText",
		trace.WithAttributes(attribute.Int("audio.bytes", len(audio.Data))))
	defer span.End()

	if len(audio.Data) == 0 {
		span.SetStatus(codes.Error, "empty audio")
		return Transcription{FailureReason: resilience.ReasonRejected, Message: TranscriptionFallback}
	}

	start := time.Now()
	resp, err := resilience.Call(ctx, g.stt, g.timeout, func(ctx context.Context) (sttResponse, error) {
		return g.postAudio(ctx, audio)
	})
	reason := resilience.Reason(err)
	g.metrics.RecordExternalCall(backendName, opSpeechToText, reason, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reason))
		g.logger.Warn("speech to text failed", zap.String("reason", string(reason)), zap.Error(err))
		return Transcription{FailureReason: reason, Message: TranscriptionFallback}
	}

	g.logger.Debug("speech to text succeeded", zap.Int("chars", len(resp.Text)))
	return Transcription{
		Text:       strings.TrimSpace(resp.Text),
		Confidence: clamp01(resp.Confidence),
		Success:    true,
	}
}

// TextToSpeech synthesizes text.
func (g *Gateway) TextToSpeech(ctx context.Context, text string) Synthesis {
	ctx, span := g.tracer.Start(ctx, "speech.TextToSpeech",
		trace.WithAttributes(attribute.Int("text.chars", len(text))))
	defer span.End()

	if strings.TrimSpace(text) == "" {
		span.SetStatus(codes.Error, "empty text")
		return Synthesis{FailureReason: resilience.ReasonRejected, Message: SynthesisFallback}
	}

	start := time.Now()
	resp, err := resilience.Call(ctx, g.tts, g.timeout, func(ctx context.Context) (ttsResponse, error) {
		return g.postText(ctx, text)
	})
	reason := resilience.Reason(err)
	g.metrics.RecordExternalCall(backendName, opTextToSpeech, reason, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reason))
		g.logger.Warn("text to speech failed", zap.String("reason", string(reason)), zap.Error(err))
		return Synthesis{FailureReason: reason, Message: SynthesisFallback}
	}

	format := resp.Format
	if format == "" {
		format = defaultAudioFormat
	}
	return Synthesis{AudioBase64: resp.AudioBase64, Format: format, Success: true}
}

func (g *Gateway) postAudio(ctx context.Context, audio Audio) (sttResponse, error) {
	var out sttResponse

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	fileName := audio.FileName
	if fileName == "" {
		fileName = "audio.webm"
	}
	contentType := audio.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, fileName))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return out, fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return out, fmt.Errorf("write audio part: %w", err)
	}
	if err := form.Close(); err != nil {
		return out, fmt.Errorf("close multipart body: %w", err)
	}

	if err := g.do(ctx, "/api/speech-to-text", form.FormDataContentType(), body, &out); err != nil {
		return out, err
	}
	if !out.Success || strings.TrimSpace(out.Text) == "" {
		return out, fmt.Errorf("%w: %s", resilience.ErrRejected, backendError(out.Error, "no speech recognised"))
	}
	return out, nil
}

func (g *Gateway) postText(ctx context.Context, text string) (ttsResponse, error) {
	var out ttsResponse

	payload, err := json.Marshal(ttsRequest{Text: text})
	if err != nil {
		return out, fmt.Errorf("encode tts request: %w", err)
	}
	if err := g.do(ctx, "/api/text-to-speech", "application/json", bytes.NewReader(payload), &out); err != nil {
		return out, err
	}
	if !out.Success || out.AudioBase64 == "" {
		return out, fmt.Errorf("%w: %s", resilience.ErrRejected, backendError(out.Error, "no audio produced"))
	}
	return out, nil
}

// do posts body and decodes a JSON answer into out. 5xx answers are backend
// failures; 4xx answers are the backend declining the input.
func (g *Gateway) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode >= http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(limited, 512))
		return fmt.Errorf("voice backend returned status %d: %s", resp.StatusCode, string(msg))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(limited, 512))
		return fmt.Errorf("%w: status %d: %s", resilience.ErrRejected, resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(limited).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func backendError(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
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
