package agent

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/neurotasker/internal/observability"
	"github.com/rahul/neurotasker/internal/privacy"
	"github.com/rahul/neurotasker/internal/store"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// DefaultTimeout bounds one decomposition when the coach has no explicit timeout.
const DefaultTimeout = 2 * time.Minute

// UpdateFunc receives the complete list of confirmed steps every time it grows.
// It runs on the streaming goroutine and must not block for long.
type UpdateFunc func(steps []store.MicroStep)

// Profile carries what the coach needs to know about the user.
type Profile struct {
	Name      string
	NeuroType string
}

// Coach breaks a task down into micro-steps.
type Coach interface {
	Decompose(ctx context.Context, taskText string, profile Profile, onUpdate UpdateFunc) ([]store.MicroStep, error)
}

// StreamCoach decomposes tasks with a streaming local model, publishing steps as soon
// as each one is complete in the stream.
type StreamCoach struct {
	Model     llms.Model
	ModelName string
	Prompts   *PromptManager
	Scrubber  *privacy.Scrubber
	Logger    *observability.Logger
	Timeout   time.Duration
}

func NewStreamCoach(model llms.Model, modelName string, prompts *PromptManager, logger *observability.Logger) *StreamCoach {
	if prompts == nil {
		prompts = NewPromptManager("")
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &StreamCoach{
		Model:     model,
		ModelName: modelName,
		Prompts:   prompts,
		Scrubber:  privacy.DefaultScrubber(),
		Logger:    logger,
		Timeout:   DefaultTimeout,
	}
}

// session is the state of one decomposition request. Nothing in it is shared.
type session struct {
	id        string
	buf       strings.Builder
	extractor *Extractor
	steps     []store.MicroStep
}

func newSession(pii privacy.Map) *session {
	return &session{
		id:        uuid.NewString(),
		extractor: NewExtractor(pii),
	}
}

// feed appends a fragment and returns the steps it completed.
func (s *session) feed(fragment string) []store.MicroStep {
	s.buf.WriteString(fragment)
	fresh := s.extractor.Scan(s.buf.String())
	s.steps = append(s.steps, fresh...)
	return fresh
}

func (s *session) snapshot() []store.MicroStep {
	return slices.Clone(s.steps)
}

// connectionFailureStep is what the user sees when the local model cannot be reached.
func connectionFailureStep() store.MicroStep {
	return store.MicroStep{
		ID:             1,
		Text:           "I couldn't reach your local AI coach. Make sure Ollama is running ('ollama serve') and try again.",
		Duration:       "0m",
		EnergyRequired: store.EnergyLow,
	}
}

// IsConnectionFailure reports whether steps is the diagnostic produced when the model
// could not be reached. Such a result is shown to the user but never saved.
func IsConnectionFailure(steps []store.MicroStep) bool {
	return len(steps) == 1 && steps[0] == connectionFailureStep()
}

// Decompose streams a decomposition of taskText. Transport failures and timeouts
// produce a single diagnostic step instead of an error; a malformed response produces
// an empty list. The only error returned is ctx's own, when the caller gives up, and
// in that case steps confirmed so far are dropped.
func (c *StreamCoach) Decompose(ctx context.Context, taskText string, profile Profile, onUpdate UpdateFunc) ([]store.MicroStep, error) {
	if onUpdate == nil {
		onUpdate = func([]store.MicroStep) {}
	}
	neuroType := NormalizeNeuroType(profile.NeuroType)
	done := observability.BeginDecomposition(neuroType)
	defer done()

	scrubbed, pii := c.Scrubber.Scrub(taskText)
	s := newSession(pii)
	c.Logger.LogDecompose(s.id, neuroType, len(taskText))

	prompt := c.Prompts.BuildPrompt(scrubbed, neuroType)
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	publish := func(fragment string) {
		fresh := s.feed(fragment)
		if len(fresh) == 0 {
			return
		}
		for _, st := range fresh {
			c.Logger.LogStep(s.id, st.ID, len(s.steps))
		}
		onUpdate(s.snapshot())
	}

	streamed := false
	resp, err := c.Model.GenerateContent(callCtx, messages,
		llms.WithJSONMode(),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			streamed = true
			publish(string(chunk))
			return nil
		}),
	)
	if err == nil && !streamed && resp != nil && len(resp.Choices) > 0 {
		// providers that ignore the streaming option hand back everything at once
		publish(resp.Choices[0].Content)
	}
	c.Logger.LogLLM(s.id, c.ModelName, prompt, s.buf.String())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.Logger.LogTransportFailure(s.id, err)
		return []store.MicroStep{connectionFailureStep()}, nil
	}

	if len(s.steps) > 0 {
		return s.snapshot(), nil
	}

	recovered, err := s.extractor.Recover(s.buf.String())
	c.Logger.LogSafetyNet(s.id, len(recovered), err)
	if err != nil {
		return []store.MicroStep{}, nil
	}
	return recovered, nil
}

// DecomposeTask is Decompose with the General profile and no live updates.
func (c *StreamCoach) DecomposeTask(ctx context.Context, taskText string) ([]store.MicroStep, error) {
	return c.Decompose(ctx, taskText, Profile{NeuroType: NeuroGeneral}, nil)
}
