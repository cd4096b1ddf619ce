// Package suite loads YAML test suites of Axiom programs and runs them
// through the pipeline.
package suite

import (
	"context"
	"fmt"

	"github.com/lemonberrylabs/axiom/pkg/runtime"
	"github.com/lemonberrylabs/axiom/pkg/types"
	"gopkg.in/yaml.v3"
)

// Suite is an ordered list of cases.
type Suite struct {
	Cases []*Case
}

// Case is one program with the outcome it must produce.
type Case struct {
	Name   string           `yaml:"name"`
	Source string           `yaml:"source"`
	Args   map[string]int64 `yaml:"args"`
	Expect Expectation      `yaml:"expect"`
}

// Expectation describes the required outcome. Exactly one field is set.
type Expectation struct {
	Result     *ExpectedValue `yaml:"result"`
	NoResult   bool           `yaml:"noResult"`
	Diagnostic string         `yaml:"diagnostic"`
	Fault      string         `yaml:"fault"`
}

// ExpectedValue is {int: n} or {time: n}.
type ExpectedValue struct {
	Int  *int64 `yaml:"int"`
	Time *int64 `yaml:"time"`
}

func (e *ExpectedValue) value() (types.Value, error) {
	switch {
	case e.Int != nil && e.Time == nil:
		return types.NewInt(*e.Int), nil
	case e.Time != nil && e.Int == nil:
		return types.NewTime(*e.Time), nil
	default:
		return types.Value{}, fmt.Errorf("result must set exactly one of int or time")
	}
}

// Outcome is the verdict for one case.
type Outcome struct {
	Name   string
	Passed bool
	Detail string
}

// Parse decodes a suite document.
func Parse(source []byte) (*Suite, error) {
	var raw yaml.Node
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if raw.Kind != yaml.DocumentNode || len(raw.Content) == 0 {
		return nil, fmt.Errorf("suite must be a YAML mapping")
	}
	root := raw.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("suite must be a YAML mapping")
	}

	var casesNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		if key != "cases" {
			return nil, fmt.Errorf("line %d: unknown suite key %q", root.Content[i].Line, key)
		}
		casesNode = root.Content[i+1]
	}
	if casesNode == nil {
		return nil, fmt.Errorf("suite has no cases")
	}
	if casesNode.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: cases must be a list", casesNode.Line)
	}

	s := &Suite{}
	seen := make(map[string]bool)
	for _, item := range casesNode.Content {
		c := &Case{}
		if err := item.Decode(c); err != nil {
			return nil, fmt.Errorf("line %d: %w", item.Line, err)
		}
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("line %d: case %q: %w", item.Line, c.Name, err)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("line %d: duplicate case name %q", item.Line, c.Name)
		}
		seen[c.Name] = true
		s.Cases = append(s.Cases, c)
	}
	return s, nil
}

func (c *Case) validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}

	set := 0
	if c.Expect.Result != nil {
		if _, err := c.Expect.Result.value(); err != nil {
			return err
		}
		set++
	}
	if c.Expect.NoResult {
		set++
	}
	if c.Expect.Diagnostic != "" {
		set++
	}
	if c.Expect.Fault != "" {
		if _, ok := types.ParseFaultKind(c.Expect.Fault); !ok {
			return fmt.Errorf("unknown fault kind %q", c.Expect.Fault)
		}
		set++
	}
	if set != 1 {
		return fmt.Errorf("expect must set exactly one of result, noResult, diagnostic or fault")
	}
	return nil
}

func (c *Case) bindings() map[string]types.Value {
	if len(c.Args) == 0 {
		return nil
	}
	b := make(map[string]types.Value, len(c.Args))
	for name, n := range c.Args {
		b[name] = types.NewInt(n)
	}
	return b
}

// Run executes every case in order. Each case gets a fresh pipeline run.
func (s *Suite) Run(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, 0, len(s.Cases))
	for _, c := range s.Cases {
		outcomes = append(outcomes, c.Run(ctx))
	}
	return outcomes
}

// Run executes the case and compares the outcome against the expectation.
func (c *Case) Run(ctx context.Context) Outcome {
	out := Outcome{Name: c.Name}
	result, err := runtime.Run(ctx, c.Source, c.bindings())

	switch {
	case c.Expect.Result != nil:
		want, _ := c.Expect.Result.value()
		switch {
		case err != nil:
			out.Detail = fmt.Sprintf("want %s, got error: %v", want, err)
		case !result.HasValue:
			out.Detail = fmt.Sprintf("want %s, got no result", want)
		case !result.Value.Equal(want):
			out.Detail = fmt.Sprintf("want %s, got %s", want, result.Value)
		default:
			out.Passed = true
		}

	case c.Expect.NoResult:
		switch {
		case err != nil:
			out.Detail = fmt.Sprintf("want no result, got error: %v", err)
		case result.HasValue:
			out.Detail = fmt.Sprintf("want no result, got %s", result.Value)
		default:
			out.Passed = true
		}

	case c.Expect.Diagnostic != "":
		if err == nil {
			out.Detail = fmt.Sprintf("want diagnostic %q, got result %s", c.Expect.Diagnostic, result)
			break
		}
		d := types.ToDiagnostic(err)
		if d.Title != c.Expect.Diagnostic {
			out.Detail = fmt.Sprintf("want diagnostic %q, got %q", c.Expect.Diagnostic, d.Title)
			break
		}
		out.Passed = true

	case c.Expect.Fault != "":
		want, _ := types.ParseFaultKind(c.Expect.Fault)
		if err == nil {
			out.Detail = fmt.Sprintf("want fault %s, got result %s", want, result)
			break
		}
		if got := types.KindOf(err); got != want {
			out.Detail = fmt.Sprintf("want fault %s, got %v", want, err)
			break
		}
		out.Passed = true
	}

	return out
}
