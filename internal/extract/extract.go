// Package extract pulls the model's fenced json extraction block out of
// assistant text and validates it against the ExtractedEntities schema.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trial-chat/internal/model"
)

// DefaultPattern matches a ```json fenced block, tolerant of surrounding
// whitespace and newlines. The first capture group is the block body.
var DefaultPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// Status distinguishes "nothing to extract yet" from "extraction malformed".
type Status int

const (
	StatusNotFound Status = iota
	StatusInvalid
	StatusOK
)

func (s Status) String() string {
	switch s {
	case StatusNotFound:
		return "not_found"
	case StatusInvalid:
		return "invalid"
	case StatusOK:
		return "ok"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of a Parse call. Entities is set only when
// Status is StatusOK; Err only when Status is StatusInvalid.
type Result struct {
	Status   Status
	Entities *model.ExtractedEntities
	// Block is the full matched fence, including delimiters.
	Block string
	Err   error
}

// ValidationError lists every schema problem found in an extraction block.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "extract: invalid extraction: " + strings.Join(e.Problems, "; ")
}

// Option configures a Parser.
type Option func(*Parser)

// WithPattern overrides the fence pattern. The pattern must have exactly
// one capture group holding the JSON body.
func WithPattern(re *regexp.Regexp) Option {
	return func(p *Parser) {
		p.pattern = re
	}
}

// Parser finds and validates extraction blocks. It holds no mutable state
// and is safe to share across requests.
type Parser struct {
	pattern *regexp.Regexp
}

// NewParser creates a Parser using DefaultPattern unless overridden.
func NewParser(opts ...Option) *Parser {
	p := &Parser{pattern: DefaultPattern}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse looks for the first fenced json block in text.
func (p *Parser) Parse(text string) Result {
	loc := p.pattern.FindStringSubmatchIndex(text)
	if loc == nil || len(loc) < 4 {
		return Result{Status: StatusNotFound}
	}
	block := text[loc[0]:loc[1]]
	body := text[loc[2]:loc[3]]

	entities, err := Decode([]byte(body))
	if err != nil {
		return Result{Status: StatusInvalid, Block: block, Err: err}
	}
	return Result{Status: StatusOK, Entities: entities, Block: block}
}

// Strip removes the first fenced json block from text for display.
func (p *Parser) Strip(text string) string {
	loc := p.pattern.FindStringIndex(text)
	if loc == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
}

// Decode parses raw JSON and validates it against the extraction schema.
func Decode(raw []byte) (*model.ExtractedEntities, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, eris.Wrap(err, "extract: decode json")
	}
	if fields == nil {
		return nil, &ValidationError{Problems: []string{"extraction must be a JSON object"}}
	}

	var (
		out      model.ExtractedEntities
		problems []string
	)

	if v, ok := present(fields, "age"); ok {
		age, err := wholeNumber(v)
		switch {
		case err != nil:
			problems = append(problems, "age: "+err.Error())
		case age < 0:
			problems = append(problems, "age: must be non-negative")
		default:
			out.Age = model.IntPtr(age)
		}
	}

	symptoms, err := requiredStrings(fields, "symptoms")
	if err != nil {
		problems = append(problems, err.Error())
	}
	out.Symptoms = symptoms

	if v, ok := present(fields, "location"); ok {
		s, isStr := v.(string)
		if !isStr {
			problems = append(problems, "location: must be a string")
		}
		out.Location = s
	}

	if v, ok := present(fields, "duration"); ok {
		s, isStr := v.(string)
		if !isStr {
			problems = append(problems, "duration: must be a string")
		}
		out.Duration = s
	}

	if _, ok := present(fields, "medicalHistory"); ok {
		history, err := requiredStrings(fields, "medicalHistory")
		if err != nil {
			problems = append(problems, err.Error())
		}
		out.MedicalHistory = history
	}

	conditions, condProblems := decodeConditions(fields)
	problems = append(problems, condProblems...)
	out.Conditions = conditions

	ready, ok := fields["readyToSearch"].(bool)
	if !ok {
		problems = append(problems, "readyToSearch: required boolean")
	}
	out.ReadyToSearch = ready

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return &out, nil
}

// Format renders entities as a fenced json block, the shape the model is
// prompted to produce.
func Format(e model.ExtractedEntities) string {
	if e.Symptoms == nil {
		e.Symptoms = []string{}
	}
	if e.Conditions == nil {
		e.Conditions = []model.Condition{}
	}
	body, _ := json.MarshalIndent(e, "", "  ")
	return "```json\n" + string(body) + "\n```"
}

func decodeConditions(fields map[string]any) ([]model.Condition, []string) {
	raw, ok := fields["conditions"].([]any)
	if !ok {
		return nil, []string{"conditions: required array"}
	}

	var problems []string
	out := make([]model.Condition, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			problems = append(problems, fmt.Sprintf("conditions[%d]: must be an object", i))
			continue
		}
		name, ok := obj["name"].(string)
		if !ok {
			problems = append(problems, fmt.Sprintf("conditions[%d].name: required string", i))
		}
		prob, err := probability(obj["probability"])
		if err != nil {
			problems = append(problems, fmt.Sprintf("conditions[%d].probability: %v", i, err))
		}
		c := model.Condition{Name: name, Probability: prob}
		if r, ok := present(obj, "reason"); ok {
			s, isStr := r.(string)
			if !isStr {
				problems = append(problems, fmt.Sprintf("conditions[%d].reason: must be a string", i))
			}
			c.Reason = s
		}
		out = append(out, c)
	}
	return out, problems
}

func requiredStrings(fields map[string]any, key string) ([]string, error) {
	raw, ok := fields[key].([]any)
	if !ok {
		return nil, eris.Errorf("%s: required array of strings", key)
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, eris.Errorf("%s[%d]: must be a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// present returns a field's value when it exists and is not JSON null.
func present(fields map[string]any, key string) (any, bool) {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func wholeNumber(v any) (int, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, eris.New("must be a number")
	}
	f, err := n.Float64()
	if err != nil {
		return 0, eris.Wrap(err, "must be a number")
	}
	if f != math.Trunc(f) {
		return 0, eris.New("must be a whole number")
	}
	return int(f), nil
}

func probability(v any) (int, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, eris.New("required number")
	}
	f, err := n.Float64()
	if err != nil {
		return 0, eris.Wrap(err, "required number")
	}
	if f < 0 || f > 100 {
		return 0, eris.New("must be between 0 and 100")
	}
	return int(math.Round(f)), nil
}
