package dialogue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-voice/internal/domain"
	"github.com/spec-kit/maintenance-voice/internal/observability"
	"github.com/spec-kit/maintenance-voice/internal/voice/conversation"
	"github.com/spec-kit/maintenance-voice/internal/voice/intent"
	"github.com/spec-kit/maintenance-voice/internal/voice/speech"
)

// Turn outcomes, as reported on metrics and logs.
const (
	OutcomeCompleted                 = "completed"
	OutcomeIncompleteSlots           = "incomplete_slots"
	OutcomeTranscriptionFailure      = "transcription_failure"
	OutcomeSynthesisFailure          = "synthesis_failure"
	OutcomeClassificationUnavailable = "classification_unavailable"
	OutcomeDownstreamActionFailure   = "downstream_action_failure"
	OutcomeDeadlineExceeded          = "deadline_exceeded"
	OutcomeEmptyUtterance            = "empty_utterance"
)

// deadlineSlack is added to the summed sub-call timeouts when no explicit turn
// timeout is configured.
const deadlineSlack = 2 * time.Second

// Speech is the speech backend used by the orchestrator.
type Speech interface {
	SpeechToText(ctx context.Context, audio speech.Audio) speech.Transcription
	TextToSpeech(ctx context.Context, text string) speech.Synthesis
}

// Classifier recognizes utterance intents.
type Classifier interface {
	Classify(ctx context.Context, utterance string, callerID int64, contextSummary string) intent.Classification
}

// Dependencies bundles the collaborators of an Orchestrator.
type Dependencies struct {
	Store      conversation.Store
	Speech     Speech
	Classifier Classifier
	Dispatcher *Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	// TurnTimeout bounds a whole turn. Zero derives it from SubTimeouts.
	TurnTimeout time.Duration
	// SubTimeouts are the per-call bounds of speech-to-text, classification
	// and text-to-speech.
	SubTimeouts []time.Duration
}

// Orchestrator runs dialogue turns.
type Orchestrator struct {
	store       conversation.Store
	speech      Speech
	classifier  Classifier
	dispatcher  *Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	turnTimeout time.Duration
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("dialogue: conversation store is required")
	case deps.Speech == nil:
		return nil, errors.New("dialogue: speech gateway is required")
	case deps.Classifier == nil:
		return nil, errors.New("dialogue: intent classifier is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("dialogue: dispatcher is required")
	}

	timeout := deps.TurnTimeout
	if timeout <= 0 {
		timeout = deadlineSlack
		for _, d := range deps.SubTimeouts {
			timeout += d
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		store:       deps.Store,
		speech:      deps.Speech,
		classifier:  deps.Classifier,
		dispatcher:  deps.Dispatcher,
		logger:      logger.With(zap.String("component", "dialogue_orchestrator")),
		metrics:     deps.Metrics,
		turnTimeout: timeout,
	}, nil
}

// TurnTimeout is the end-to-end bound of one turn.
func (o *Orchestrator) TurnTimeout() time.Duration {
	return o.turnTimeout
}

// turnState is shared between a running pipeline and the deadline watcher.
type turnState struct {
	id       atomic.Pointer[string]
	callerID int64
	start    time.Time
	intent   atomic.Value // domain.Intent
	drafted  atomic.Pointer[domain.DialogueResponse]
}

func newTurnState(id string, callerID int64) *turnState {
	st := &turnState{callerID: callerID, start: time.Now()}
	st.id.Store(&id)
	st.intent.Store(domain.Intent(""))
	return st
}

// conversationID is the id the turn answers under. It changes when the
// supplied id turns out to belong to another caller.
func (st *turnState) conversationID() string {
	return *st.id.Load()
}

func (st *turnState) rebind(id string) {
	st.id.Store(&id)
}

type turnResult struct {
	response domain.DialogueResponse
	outcome  string
}

// Interact transcribes audio and runs a turn on the transcript.
func (o *Orchestrator) Interact(ctx context.Context, audio speech.Audio, callerID int64, conversationID string) domain.DialogueResponse {
	return o.run(ctx, callerID, conversationID, func(ctx context.Context, st *turnState) turnResult {
		transcript := o.speech.SpeechToText(ctx, audio)
		if !transcript.Success {
			o.logger.Info("transcription failed",
				zap.String("conversation_id", st.conversationID()),
				zap.String("reason", string(transcript.FailureReason)))
			return turnResult{
				response: domain.DialogueResponse{Text: transcript.Message, ConversationID: st.conversationID()},
				outcome:  OutcomeTranscriptionFailure,
			}
		}
		return o.respond(ctx, st, transcript.Text)
	})
}

// InteractText runs a turn on an already transcribed utterance.
func (o *Orchestrator) InteractText(ctx context.Context, text string, callerID int64, conversationID string) domain.DialogueResponse {
	return o.run(ctx, callerID, conversationID, func(ctx context.Context, st *turnState) turnResult {
		return o.respond(ctx, st, text)
	})
}

// Conversation returns the stored context or conversation.ErrNotFound.
func (o *Orchestrator) Conversation(ctx context.Context, id string) (*domain.ConversationContext, error) {
	return o.store.Get(ctx, id)
}

// run executes pipeline under the turn deadline. The pipeline keeps running
// after the deadline; its late result is dropped.
func (o *Orchestrator) run(ctx context.Context, callerID int64, conversationID string, pipeline func(context.Context, *turnState) turnResult) domain.DialogueResponse {
	st := newTurnState(o.resolveID(callerID, conversationID), callerID)

	deadline := time.NewTimer(o.turnTimeout)
	defer deadline.Stop()

	work := context.WithoutCancel(ctx)
	done := make(chan turnResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("dialogue turn panicked",
					zap.String("conversation_id", st.conversationID()),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				done <- turnResult{
					response: domain.DialogueResponse{Text: ApologyReply, ConversationID: st.conversationID()},
					outcome:  OutcomeDownstreamActionFailure,
				}
			}
		}()
		done <- pipeline(work, st)
	}()

	var res turnResult
	select {
	case res = <-done:
	case <-deadline.C:
		res = o.degraded(st)
	case <-ctx.Done():
		res = o.degraded(st)
	}

	o.metrics.RecordTurn(intentLabel(st.intent.Load().(domain.Intent)), res.outcome, time.Since(st.start))
	o.logger.Info("dialogue turn finished",
		zap.String("conversation_id", st.conversationID()),
		zap.Int64("caller_id", callerID),
		zap.String("outcome", res.outcome),
		zap.Bool("requires_followup", res.response.RequiresFollowup),
		zap.Duration("elapsed", time.Since(st.start)))
	return res.response
}

// degraded is the text-only reply used when the deadline fires. A reply that
// was already drafted is kept, without audio.
func (o *Orchestrator) degraded(st *turnState) turnResult {
	o.logger.Warn("dialogue turn deadline exceeded",
		zap.String("conversation_id", st.conversationID()),
		zap.Duration("timeout", o.turnTimeout))

	if drafted := st.drafted.Load(); drafted != nil {
		resp := *drafted
		resp.AudioBase64, resp.AudioFormat = "", ""
		return turnResult{response: resp, outcome: OutcomeDeadlineExceeded}
	}
	return turnResult{
		response: domain.DialogueResponse{Text: DeadlineReply, ConversationID: st.conversationID()},
		outcome:  OutcomeDeadlineExceeded,
	}
}

// respond classifies, dispatches, persists and synthesizes one utterance.
func (o *Orchestrator) respond(ctx context.Context, st *turnState, utterance string) turnResult {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return turnResult{
			response: domain.DialogueResponse{Text: EmptyUtteranceReply, ConversationID: st.conversationID()},
			outcome:  OutcomeEmptyUtterance,
		}
	}

	prior := o.load(ctx, st.conversationID())
	if prior != nil && prior.CallerID != st.callerID {
		fresh := o.store.NewID(st.callerID)
		o.logger.Warn("conversation id belongs to another caller; starting a new conversation",
			zap.String("conversation_id", st.conversationID()),
			zap.String("new_conversation_id", fresh),
			zap.Int64("caller_id", st.callerID))
		st.rebind(fresh)
		prior = nil
	}

	classification := o.classifier.Classify(ctx, utterance, st.callerID, Summarize(prior))
	st.intent.Store(classification.Result.Intent)

	outcome, err := o.dispatch(ctx, Turn{
		ConversationID: st.conversationID(),
		CallerID:       st.callerID,
		Intent:         classification.Result,
		Prior:          prior,
	})
	if err != nil {
		o.logger.Error("dialogue action failed",
			zap.String("conversation_id", st.conversationID()),
			zap.String("intent", string(classification.Result.Intent)),
			zap.Error(err))
		return turnResult{
			response: domain.DialogueResponse{Text: ApologyReply, ConversationID: st.conversationID()},
			outcome:  OutcomeDownstreamActionFailure,
		}
	}

	if outcome.Route == domain.IntentEmergency && !continuesEmergency(prior) {
		o.metrics.RecordEmergency()
	}
	if outcome.Context != nil {
		if err := o.store.Put(ctx, st.conversationID(), *outcome.Context); err != nil {
			o.logger.Error("failed to store conversation context",
				zap.String("conversation_id", st.conversationID()),
				zap.Error(err))
		}
	}

	response := outcome.Response
	drafted := response
	st.drafted.Store(&drafted)

	synthesis := o.speech.TextToSpeech(ctx, response.Text)
	if synthesis.Success {
		response.AudioBase64 = synthesis.AudioBase64
		response.AudioFormat = synthesis.Format
	}

	result := turnResult{response: response, outcome: OutcomeCompleted}
	switch {
	case !classification.Success:
		result.outcome = OutcomeClassificationUnavailable
	case response.RequiresFollowup:
		result.outcome = OutcomeIncompleteSlots
	case !synthesis.Success:
		result.outcome = OutcomeSynthesisFailure
	}
	return result
}

func (o *Orchestrator) dispatch(ctx context.Context, turn Turn) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("dispatcher panicked",
				zap.String("conversation_id", turn.ConversationID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()
	return o.dispatcher.Dispatch(ctx, turn)
}

// load returns the stored context; a miss or a store failure both read as
// no prior context.
func (o *Orchestrator) load(ctx context.Context, id string) *domain.ConversationContext {
	prior, err := o.store.Get(ctx, id)
	switch {
	case err == nil:
		return prior
	case errors.Is(err, conversation.ErrNotFound):
		return nil
	default:
		o.logger.Warn("failed to load conversation context",
			zap.String("conversation_id", id),
			zap.Error(err))
		return nil
	}
}

func (o *Orchestrator) resolveID(callerID int64, conversationID string) string {
	if id := strings.TrimSpace(conversationID); id != "" {
		return id
	}
	return o.store.NewID(callerID)
}

func intentLabel(i domain.Intent) string {
	if i == "" {
		return "none"
	}
	return string(i)
}
