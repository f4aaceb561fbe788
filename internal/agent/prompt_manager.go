package agent

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"go.uber.org/zap"
)

// Cognitive profiles understood by the coach.
const (
	NeuroADHD     = "ADHD"
	NeuroAnxiety  = "Anxiety"
	NeuroDyslexia = "Dyslexia"
	NeuroGeneral  = "General"
)

var directives = map[string]string{
	NeuroADHD: "The user has ADHD. Make it feel like a game: use an urgent, energetic tone. " +
		"Keep every step short and punchy, and frame steps as quick wins or small challenges to keep novelty high.",
	NeuroAnxiety: "The user experiences anxiety. Use a calm, reassuring tone. " +
		"The first step must be trivially easy (something that takes under a minute). Avoid pressure words like 'must', 'immediately' or 'deadline'.",
	NeuroDyslexia: "The user has dyslexia. Use plain, short sentences with common words. " +
		"One action per step, in a clear visual top-to-bottom order. Produce between 7 and 12 steps.",
	NeuroGeneral: "Be direct and practical. Order the steps chronologically so each one follows logically from the last.",
}

// NormalizeNeuroType maps free-form input onto a known profile, defaulting to General.
func NormalizeNeuroType(neuroType string) string {
	switch strings.ToLower(strings.TrimSpace(neuroType)) {
	case "adhd":
		return NeuroADHD
	case "anxiety":
		return NeuroAnxiety
	case "dyslexia":
		return NeuroDyslexia
	default:
		return NeuroGeneral
	}
}

// PersonaDirective returns the style directive for a profile. Unknown profiles get General.
func PersonaDirective(neuroType string) string {
	return directives[NormalizeNeuroType(neuroType)]
}

const defaultTemplate = `You are a supportive productivity coach who breaks overwhelming tasks into tiny micro-steps.

STYLE: {{.Directive}}

TASK: {{.Task}}

Respond with JSON only, no prose and no markdown. Return an array of 7 to 15 step objects, each with the keys
"id" (integer, starting at 1), "text" (one short instruction), "duration" (estimate such as "5m")
and "energy_required" ("High", "Medium" or "Low").
The final step must complete the task.`

type promptData struct {
	Task      string
	Directive string
}

// PromptManager composes the decomposition prompt. A decompose.md file in Directory,
// written as a text/template with {{.Task}} and {{.Directive}}, replaces the built-in one.
type PromptManager struct {
	Directory string
	Logger    *zap.Logger

	builtin *template.Template
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{
		Directory: dir,
		Logger:    zap.NewNop(),
		builtin:   template.Must(template.New("decompose").Parse(defaultTemplate)),
	}
}

// BuildPrompt interpolates the (already scrubbed) task and the persona directive.
func (pm *PromptManager) BuildPrompt(task, neuroType string) string {
	data := promptData{Task: task, Directive: PersonaDirective(neuroType)}

	if tmpl, err := pm.loadOverride(); err != nil {
		pm.Logger.Warn("ignoring prompt override", zap.Error(err))
	} else if tmpl != nil {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			pm.Logger.Warn("prompt override failed to render", zap.Error(err))
		} else {
			return buf.String()
		}
	}

	var buf bytes.Buffer
	if err := pm.builtin.Execute(&buf, data); err != nil {
		// the built-in template only references promptData fields
		panic(err)
	}
	return buf.String()
}

func (pm *PromptManager) loadOverride() (*template.Template, error) {
	if pm.Directory == "" {
		return nil, nil
	}
	path := filepath.Join(pm.Directory, "decompose.md")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	tmpl, err := template.New("override").Option("missingkey=error").Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return tmpl, nil
}
