package agent

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rahul/neurotasker/internal/privacy"
	"github.com/rahul/neurotasker/internal/store"
)

const defaultDuration = "5m"

// A flat object with no nested braces that mentions an "id" key. There is no string
// escape awareness: a literal } inside a value ends the match early.
var candidatePattern = regexp.MustCompile(`\{[^{}]*"id"[^{}]*\}`)

// scanCandidateObjects returns every step-shaped substring of buffer, in buffer order.
func scanCandidateObjects(buffer string) []string {
	return candidatePattern.FindAllString(buffer, -1)
}

// Extractor turns a growing model response into confirmed micro-steps.
// It is scoped to one request and is not safe for concurrent use.
type Extractor struct {
	pii  privacy.Map
	seen map[int]struct{}
}

func NewExtractor(pii privacy.Map) *Extractor {
	return &Extractor{
		pii:  pii,
		seen: make(map[int]struct{}),
	}
}

// Scan looks at the whole buffer and returns only the steps it has not confirmed before.
// Calling it again on an unchanged buffer returns nothing.
func (e *Extractor) Scan(buffer string) []store.MicroStep {
	var fresh []store.MicroStep
	for _, candidate := range scanCandidateObjects(buffer) {
		var record map[string]any
		if err := json.Unmarshal([]byte(candidate), &record); err != nil {
			// most likely an object the model has not finished streaming
			continue
		}
		if step, ok := e.accept(record); ok {
			fresh = append(fresh, step)
		}
	}
	return fresh
}

var fenceReplacer = strings.NewReplacer("```json", "", "```", "")

// Recover parses the whole buffer as one JSON document: either an array of step
// records or an object with a "steps" array. Records go through the same checks as Scan.
func (e *Extractor) Recover(buffer string) ([]store.MicroStep, error) {
	clean := strings.TrimSpace(fenceReplacer.Replace(buffer))

	var doc any
	if err := json.Unmarshal([]byte(clean), &doc); err != nil {
		return nil, err
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		items, _ = v["steps"].([]any)
	}

	steps := []store.MicroStep{}
	for _, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if step, ok := e.accept(record); ok {
			steps = append(steps, step)
		}
	}
	return steps, nil
}

// accept validates, restores, applies defaults and deduplicates. First occurrence wins.
func (e *Extractor) accept(record map[string]any) (store.MicroStep, bool) {
	id, ok := parseID(record["id"])
	if !ok {
		return store.MicroStep{}, false
	}
	text, ok := record["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return store.MicroStep{}, false
	}

	step := store.MicroStep{
		ID:             id,
		Text:           e.pii.Restore(text),
		Duration:       parseDuration(record["duration"]),
		EnergyRequired: parseEnergy(record["energy_required"]),
	}

	if _, dup := e.seen[step.ID]; dup {
		return store.MicroStep{}, false
	}
	e.seen[step.ID] = struct{}{}
	return step, true
}

func parseID(v any) (int, bool) {
	switch id := v.(type) {
	case float64:
		if id < 1 || id > math.MaxInt32 || id != math.Trunc(id) {
			return 0, false
		}
		return int(id), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil || n < 1 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func parseDuration(v any) string {
	switch d := v.(type) {
	case string:
		if s := strings.TrimSpace(d); s != "" {
			return s
		}
	case float64:
		if d > 0 {
			return strconv.FormatFloat(d, 'f', -1, 64) + "m"
		}
	}
	return defaultDuration
}

func parseEnergy(v any) store.Energy {
	s, _ := v.(string)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return store.EnergyHigh
	case "low":
		return store.EnergyLow
	default:
		return store.EnergyMedium
	}
}
