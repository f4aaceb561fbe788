package privacy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Rule names a kind of sensitive text and the pattern that finds it.
type Rule struct {
	Type    string
	Pattern string
}

var (
	EmailRule = Rule{Type: "EMAIL", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`}
	PhoneRule = Rule{Type: "PHONE", Pattern: `\b(\+?\d{1,2}\s?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`}
)

type compiledRule struct {
	typ string
	re  *regexp.Regexp
}

// Scrubber replaces sensitive substrings with placeholders before text reaches the model.
// Rules are applied in the order they were given.
type Scrubber struct {
	rules []compiledRule
}

func NewScrubber(rules ...Rule) (*Scrubber, error) {
	s := &Scrubber{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern: %w", r.Type, err)
		}
		s.rules = append(s.rules, compiledRule{typ: r.Type, re: re})
	}
	return s, nil
}

// DefaultScrubber masks e-mail addresses first, then phone numbers.
func DefaultScrubber() *Scrubber {
	s, err := NewScrubber(EmailRule, PhoneRule)
	if err != nil {
		panic(err)
	}
	return s
}

// Map holds placeholder -> original text for one request.
type Map map[string]string

// Scrub returns text with every match replaced by __TYPE_n__ and the map to undo it.
// The counter is shared across rules.
func (s *Scrubber) Scrub(text string) (string, Map) {
	m := Map{}
	counter := 0
	for _, r := range s.rules {
		text = r.re.ReplaceAllStringFunc(text, func(match string) string {
			key := fmt.Sprintf("__%s_%d__", r.typ, counter)
			counter++
			m[key] = match
			return key
		})
	}
	return text, m
}

// Restore puts the original substrings back wherever a placeholder appears.
func (m Map) Restore(text string) string {
	if len(m) == 0 {
		return text
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
