package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/maintenance-voice/internal/domain"
	"github.com/spec-kit/maintenance-voice/internal/resilience"
	"github.com/spec-kit/maintenance-voice/internal/voice/intent"
	"github.com/spec-kit/maintenance-voice/internal/voice/speech"
)

var created = time.Date(2025, 4, 2, 10, 30, 0, 0, time.UTC)

type fakeTicketing struct {
	mu        sync.Mutex
	nextID    int64
	tickets   []domain.Ticket
	inputs    []domain.TicketInput
	createErr error
	listErr   error
	getErr    error
	panicMsg  string
	calls     int
}

func newFakeTicketing() *fakeTicketing {
	return &fakeTicketing{nextID: 100}
}

func (f *fakeTicketing) Create(_ context.Context, callerID int64, in domain.TicketInput) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.inputs = append(f.inputs, in)
	f.nextID++
	priority := in.Priority
	if priority == "" {
		priority = domain.TicketPriorityModerate
	}
	t := domain.Ticket{
		ID:          f.nextID,
		CallerID:    callerID,
		Title:       in.Title,
		Description: in.Description,
		Category:    domain.TicketCategoryPlumbing,
		Priority:    priority,
		Status:      domain.TicketStatusPending,
		ImageRef:    in.ImageRef,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	f.tickets = append([]domain.Ticket{t}, f.tickets...)
	return &t, nil
}

func (f *fakeTicketing) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, t := range f.tickets {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	return nil, domain.ErrTicketNotFound
}

func (f *fakeTicketing) ListByCaller(_ context.Context, callerID int64) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Ticket
	for _, t := range f.tickets {
		if t.CallerID == callerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTicketing) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type classifyCall struct {
	utterance string
	callerID  int64
	summary   string
}

type fakeClassifier struct {
	mu     sync.Mutex
	calls  []classifyCall
	answer func(call classifyCall) intent.Classification
	block  chan struct{}
}

func (f *fakeClassifier) Classify(_ context.Context, utterance string, callerID int64, summary string) intent.Classification {
	call := classifyCall{utterance: utterance, callerID: callerID, summary: summary}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.answer(call)
}

func (f *fakeClassifier) lastCall() classifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func classified(result domain.IntentResult) func(classifyCall) intent.Classification {
	return func(classifyCall) intent.Classification {
		return intent.Classification{Result: result, Success: true}
	}
}

type fakeSpeech struct {
	transcription speech.Transcription
	synthesis     speech.Synthesis
	ttsBlock      chan struct{}
	ttsCalls      int
	mu            sync.Mutex
}

func newFakeSpeech() *fakeSpeech {
	return &fakeSpeech{
		transcription: speech.Transcription{Text: "my sink is leaking", Confidence: 0.9, Success: true},
		synthesis:     speech.Synthesis{AudioBase64: "SUQz", Format: "mp3", Success: true},
	}
}

func (f *fakeSpeech) SpeechToText(context.Context, speech.Audio) speech.Transcription {
	return f.transcription
}

func (f *fakeSpeech) TextToSpeech(context.Context, string) speech.Synthesis {
	f.mu.Lock()
	f.ttsCalls++
	block := f.ttsBlock
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.synthesis
}

func failedTranscription(reason resilience.FailureReason) speech.Transcription {
	return speech.Transcription{FailureReason: reason, Message: speech.TranscriptionFallback}
}

func draft(title, description string) *domain.TicketDraft {
	return &domain.TicketDraft{Title: title, Description: description}
}

func ticketID(id int64) *int64 {
	return &id
}
