package observability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LLMEventsGoToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "llm.jsonl")
	l, err := NewLogger(Config{Level: "error", LLMLogPath: path})
	require.NoError(t, err)

	l.LogLLM("req-1", "neuro-coach", "Break down: __EMAIL_0__", `[{"id":1}]`)
	l.LogStep("req-1", 1, 1)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var evt Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &evt))
		lines = append(lines, evt)
	}
	require.Len(t, lines, 1, "only llm events are persisted")
	assert.Equal(t, EventTypeLLM, lines[0].Type)
	assert.Equal(t, "req-1", lines[0].RequestID)
	assert.False(t, lines[0].Timestamp.IsZero())
}

func TestLogger_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.jsonl")
	l := NewNopLogger()
	l.llmLogPath = path
	l.maxSize = 10

	l.LogLLM("a", "m", "p", "first")
	l.LogLLM("b", "m", "p", "second")

	old, err := os.ReadFile(path + ".old")
	require.NoError(t, err)
	assert.Contains(t, string(old), "first")

	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(cur), "second")
	assert.NotContains(t, string(cur), "first")
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := NewLogger(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestStatus_BeginDecomposition(t *testing.T) {
	done1 := BeginDecomposition("ADHD")
	done2 := BeginDecomposition("General")

	phase, active, _ := GetStatus()
	assert.Equal(t, PhaseDecomposing, phase)
	assert.GreaterOrEqual(t, active, 2)

	done1()
	done1()
	done2()

	phase, active, _ = GetStatus()
	assert.Equal(t, PhaseIdle, phase)
	assert.Equal(t, 0, active)
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "one tiny step at a time")
}
