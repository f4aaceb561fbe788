package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rahul/neurotasker/internal/agent"
	"github.com/rahul/neurotasker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// failingModel never reaches a server.
type failingModel struct{}

func (failingModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
}

func (failingModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
}

type fakeCoach struct {
	steps   []store.MicroStep
	calls   int
	gotTask string
	gotType string
}

func (f *fakeCoach) Decompose(_ context.Context, taskText string, profile agent.Profile, onUpdate agent.UpdateFunc) ([]store.MicroStep, error) {
	f.calls++
	f.gotTask, f.gotType = taskText, profile.NeuroType
	for i := range f.steps {
		if onUpdate != nil {
			onUpdate(f.steps[:i+1])
		}
	}
	return f.steps, nil
}

func newTestGateway(t *testing.T, coach agent.Coach) (*HTTPGateway, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewHTTPGateway("127.0.0.1:0", coach, st, nil), st
}

func do(g *HTTPGateway, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	g.Echo.ServeHTTP(rec, req)
	return rec
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, raw string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(raw), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		events = append(events, ev)
	}
	return events
}

func TestHTTPGateway_Health(t *testing.T) {
	g, _ := newTestGateway(t, &fakeCoach{})

	rec := do(g, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "phase")
}

func TestHTTPGateway_Profiles(t *testing.T) {
	g, _ := newTestGateway(t, &fakeCoach{})

	rec := do(g, http.MethodPost, "/api/profiles", `{"name":"<b>Sam</b>","neuro_type":"adhd"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p store.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Sam", p.Name)
	assert.Equal(t, agent.NeuroADHD, p.NeuroType)

	rec = do(g, http.MethodPost, "/api/profiles", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(g, http.MethodGet, "/api/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []store.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 1)

	rec = do(g, http.MethodPost, fmt.Sprintf("/api/profiles/%d/font", p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dyslexic_font":true`)

	rec = do(g, http.MethodGet, fmt.Sprintf("/api/profiles/%d", p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"xp_next":100`)

	rec = do(g, http.MethodDelete, fmt.Sprintf("/api/profiles/%d", p.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(g, http.MethodGet, fmt.Sprintf("/api/profiles/%d", p.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)

	rec = do(g, http.MethodGet, "/api/profiles/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPGateway_DecomposeStreams(t *testing.T) {
	coach := &fakeCoach{steps: []store.MicroStep{
		{ID: 1, Text: "Open the doc", Duration: "2m", EnergyRequired: store.EnergyLow},
		{ID: 2, Text: "Write one line", Duration: "5m", EnergyRequired: store.EnergyMedium},
	}}
	g, st := newTestGateway(t, coach)
	p, err := st.CreateProfile("Sam", agent.NeuroDyslexia)
	require.NoError(t, err)

	rec := do(g, http.MethodPost, fmt.Sprintf("/api/profiles/%d/decompose", p.ID), `{"task":"Write <i>the</i> essay"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Write the essay", coach.gotTask)
	assert.Equal(t, agent.NeuroDyslexia, coach.gotType)

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "steps", events[0].name)
	assert.Equal(t, "steps", events[1].name)
	assert.Equal(t, "done", events[2].name)

	var partial []store.MicroStep
	require.NoError(t, json.Unmarshal([]byte(events[0].data), &partial))
	assert.Len(t, partial, 1)

	var done decomposeResult
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &done))
	require.NotNil(t, done.Task)
	assert.Equal(t, "Write the essay", done.Task.Title)
	assert.Len(t, done.Steps, 2)
	assert.Equal(t, store.XPTaskDecomposed, done.Profile.XP)

	tasks, err := st.ListTasks(p.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestHTTPGateway_DecomposeRejectsEmptyTask(t *testing.T) {
	coach := &fakeCoach{}
	g, st := newTestGateway(t, coach)
	p, err := st.CreateProfile("Sam", "")
	require.NoError(t, err)

	rec := do(g, http.MethodPost, fmt.Sprintf("/api/profiles/%d/decompose", p.ID), `{"task":"  <br>  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, coach.calls)

	rec = do(g, http.MethodPost, "/api/profiles/99/decompose", `{"task":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, coach.calls)
}

func TestHTTPGateway_DecomposeConnectionFailureIsNotSaved(t *testing.T) {
	failed, err := agent.NewStreamCoach(failingModel{}, "fake", nil, nil).DecomposeTask(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, agent.IsConnectionFailure(failed))

	g, st := newTestGateway(t, &fakeCoach{steps: failed})
	p, err := st.CreateProfile("Sam", "")
	require.NoError(t, err)

	rec := do(g, http.MethodPost, fmt.Sprintf("/api/profiles/%d/decompose", p.ID), `{"task":"Clean room"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := parseSSE(t, rec.Body.String())
	last := events[len(events)-1]
	assert.Equal(t, "done", last.name)

	var done decomposeResult
	require.NoError(t, json.Unmarshal([]byte(last.data), &done))
	assert.Nil(t, done.Task)
	assert.Len(t, done.Steps, 1)
	assert.Zero(t, done.Profile.XP)

	tasks, err := st.ListTasks(p.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestHTTPGateway_CompleteStepAwardsXP(t *testing.T) {
	g, st := newTestGateway(t, &fakeCoach{})
	p, err := st.CreateProfile("Sam", "")
	require.NoError(t, err)
	task, err := st.AddTask(p.ID, "Tidy desk", []store.MicroStep{
		{ID: 1, Text: "Clear cups", Duration: "2m", EnergyRequired: store.EnergyLow},
		{ID: 2, Text: "Wipe surface", Duration: "3m", EnergyRequired: store.EnergyLow},
	})
	require.NoError(t, err)

	rec := do(g, http.MethodPost, fmt.Sprintf("/api/tasks/%d/steps/1/complete", task.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res completeStepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Finished)
	assert.Equal(t, store.XPStepCompleted, res.Profile.XP)

	rec = do(g, http.MethodPost, fmt.Sprintf("/api/tasks/%d/steps/2/complete", task.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Finished)
	assert.True(t, res.Task.Completed)
	assert.Equal(t, 2*store.XPStepCompleted+store.XPTaskFinished, res.Profile.XP)

	rec = do(g, http.MethodPost, fmt.Sprintf("/api/tasks/%d/steps/2/complete", task.ID), "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(g, http.MethodPost, fmt.Sprintf("/api/tasks/%d/steps/9/complete", task.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(g, http.MethodGet, fmt.Sprintf("/api/profiles/%d/tasks", p.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tidy desk")

	rec = do(g, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", task.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(g, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", task.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
