package insight

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownStyle is returned for style identifiers missing from the registry.
var ErrUnknownStyle = errors.New("insight: unknown style")

// Style is a named prompt-construction descriptor selecting the voice of generated text.
type Style struct {
	ID          string  `yaml:"id" json:"id"`
	Label       string  `yaml:"label" json:"label"`
	Persona     string  `yaml:"persona" json:"persona"`
	Focus       string  `yaml:"focus" json:"focus"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// Built-in style identifiers.
const (
	StyleCriticalAnalyst    = "critical_analyst"
	StyleCreativeStrategist = "creative_strategist"
	StyleQuantitativeExpert = "quantitative_expert"
	DefaultStyle            = StyleCriticalAnalyst
)

var builtinStyles = []Style{
	{
		ID:      StyleCriticalAnalyst,
		Label:   "Critical analyst",
		Persona: "You are a sceptical marketing analyst who looks for weaknesses, risks and missed opportunities in campaign data.",
		Focus:   "Point out what underperforms and what the numbers do not support.",
	},
	{
		ID:      StyleCreativeStrategist,
		Label:   "Creative strategist",
		Persona: "You are a creative campaign strategist who turns performance data into bold content and channel ideas.",
		Focus:   "Propose concrete creative experiments grounded in the strongest signals.",
	},
	{
		ID:      StyleQuantitativeExpert,
		Label:   "Quantitative expert",
		Persona: "You are a quantitative marketing scientist who reasons in shares, ratios and concentration.",
		Focus:   "Quote the figures, compare shares and state which differences are material.",
	},
}

// Registry maps style identifiers to descriptors. The zero value is empty; use NewRegistry.
type Registry struct {
	styles map[string]Style
}

// NewRegistry returns a registry with the built-in styles plus extra, which may override them.
func NewRegistry(extra ...Style) (*Registry, error) {
	r := &Registry{styles: make(map[string]Style, len(builtinStyles)+len(extra))}
	for _, s := range builtinStyles {
		r.styles[s.ID] = s
	}
	for _, s := range extra {
		if err := r.add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(s Style) error {
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		return fmt.Errorf("insight: style without id")
	}
	if strings.TrimSpace(s.Persona) == "" {
		return fmt.Errorf("insight: style %q has no persona", s.ID)
	}
	if s.Label == "" {
		s.Label = s.ID
	}
	r.styles[s.ID] = s
	return nil
}

// Get looks up a style by identifier.
func (r *Registry) Get(id string) (Style, error) {
	s, ok := r.styles[id]
	if !ok {
		return Style{}, fmt.Errorf("%w: %q", ErrUnknownStyle, id)
	}
	return s, nil
}

// List returns all styles sorted by identifier.
func (r *Registry) List() []Style {
	out := make([]Style, 0, len(r.styles))
	for _, s := range r.styles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type styleFile struct {
	Styles []Style `yaml:"styles"`
}

// LoadStyles reads additional styles from a YAML file of the form
//
//	styles:
//	  - id: skeptic
//	    persona: ...
//
// An empty path yields the built-in registry.
func LoadStyles(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("insight: read styles: %w", err)
	}
	var f styleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("insight: parse styles %s: %w", path, err)
	}
	return NewRegistry(f.Styles...)
}
