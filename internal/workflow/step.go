package workflow

import (
	"encoding/json"
	"fmt"
)

type StepType string

const (
	StepHTTPRequest StepType = "http_request"
	StepCondition   StepType = "condition"
	StepEmail       StepType = "email"
	StepDelay       StepType = "delay"
	StepFunction    StepType = "function"
)

// Step is a tagged union over the five step kinds. Exactly one of the
// kind-specific fields is set, decided by Type at parse time, so dispatch
// never has to dig through untyped maps.
type Step struct {
	Type        StepType `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	// OutputKey names the slot in the execution context's vars namespace
	// that receives this step's result. Empty means the result is dropped.
	OutputKey string `json:"output_key,omitempty"`

	HTTP      *HTTPStep     `json:"-"`
	Condition *Condition    `json:"-"`
	Email     *EmailStep    `json:"-"`
	Delay     *DelayStep    `json:"-"`
	Function  *FunctionStep `json:"-"`
}

type HTTPStep struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
	// Timeout is in seconds; zero means the 30s default.
	Timeout int `json:"timeout,omitempty"`
}

type conditionStep struct {
	Condition *Condition `json:"condition"`
}

type Condition struct {
	Kind     string  `json:"type"`
	Operator string  `json:"operator"`
	Left     Operand `json:"left"`
	Right    Operand `json:"right"`
}

// Operand is either a literal value or a dotted path into the execution
// context ("input.score", "vars.response").
type Operand struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
	Path  string `json:"path,omitempty"`
}

type EmailStep struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

type DelayStep struct {
	Seconds float64 `json:"seconds"`
}

type FunctionStep struct {
	Function string         `json:"function"`
	Template map[string]any `json:"template,omitempty"`
}

// stepHead is the common prefix shared by every step on the wire; the
// kind-specific fields sit at the same level and are decoded per kind.
type stepHead struct {
	Type        StepType `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	OutputKey   string   `json:"output_key,omitempty"`
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var head stepHead
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	out := Step{
		Type:        head.Type,
		Name:        head.Name,
		Description: head.Description,
		OutputKey:   head.OutputKey,
	}
	switch head.Type {
	case StepHTTPRequest:
		var h HTTPStep
		if err := json.Unmarshal(data, &h); err != nil {
			return fmt.Errorf("step %q: %w", head.Name, err)
		}
		out.HTTP = &h
	case StepCondition:
		var c conditionStep
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("step %q: %w", head.Name, err)
		}
		if c.Condition == nil {
			return fmt.Errorf("condition step %q missing condition", head.Name)
		}
		out.Condition = c.Condition
	case StepEmail:
		var e EmailStep
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("step %q: %w", head.Name, err)
		}
		out.Email = &e
	case StepDelay:
		var d DelayStep
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("step %q: %w", head.Name, err)
		}
		out.Delay = &d
	case StepFunction:
		var f FunctionStep
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("step %q: %w", head.Name, err)
		}
		out.Function = &f
	default:
		return fmt.Errorf("unsupported step type: %s", head.Type)
	}
	*s = out
	return nil
}

func (s Step) MarshalJSON() ([]byte, error) {
	flat := map[string]any{
		"type": s.Type,
		"name": s.Name,
	}
	if s.Description != "" {
		flat["description"] = s.Description
	}
	if s.OutputKey != "" {
		flat["output_key"] = s.OutputKey
	}
	merge := func(v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fields := map[string]any{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return err
		}
		for k, val := range fields {
			flat[k] = val
		}
		return nil
	}
	var err error
	switch {
	case s.HTTP != nil:
		err = merge(s.HTTP)
	case s.Condition != nil:
		err = merge(conditionStep{Condition: s.Condition})
	case s.Email != nil:
		err = merge(s.Email)
	case s.Delay != nil:
		err = merge(s.Delay)
	case s.Function != nil:
		err = merge(s.Function)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(flat)
}
