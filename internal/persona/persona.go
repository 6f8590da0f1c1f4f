// Package persona renders proactive messages in the administrator's voice
// from the embedded template catalogue.
package persona

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/stiapanreha-dev/BotOracle/assets"
	"github.com/stiapanreha-dev/BotOracle/internal/crm"
	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

// Tone is the register a message is written in.
type Tone string

const (
	TonePlayful Tone = "playful"
	ToneCare    Tone = "care"
)

var ErrNoTemplate = errors.New("no template")

type catalogue struct {
	Fallback map[Tone]string                       `yaml:"fallback"`
	Tasks    map[domain.TaskType]map[Tone][]string `yaml:"tasks"`
}

// Generator implements crm.Generator on top of the template catalogue.
type Generator struct {
	fallback map[Tone]*template.Template
	tasks    map[domain.TaskType]map[Tone][]*template.Template
	rnd      crm.Rand
}

type Option func(*Generator)

// WithRand sets the source used to pick between template variants.
func WithRand(r crm.Rand) Option {
	return func(g *Generator) { g.rnd = r }
}

type globalRand struct{}

func (globalRand) Intn(n int) int   { return rand.IntN(n) }
func (globalRand) Float64() float64 { return rand.Float64() }

// NewDefault loads the catalogue embedded in the binary.
func NewDefault(opts ...Option) (*Generator, error) {
	return New(assets.Templates, opts...)
}

// New parses a YAML catalogue. Every template is compiled up front so a
// broken catalogue fails at startup rather than at send time.
func New(data []byte, opts ...Option) (*Generator, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if c.Fallback[TonePlayful] == "" {
		return nil, fmt.Errorf("%w: playful fallback is required", ErrNoTemplate)
	}

	g := &Generator{
		fallback: make(map[Tone]*template.Template, len(c.Fallback)),
		tasks:    make(map[domain.TaskType]map[Tone][]*template.Template, len(c.Tasks)),
		rnd:      globalRand{},
	}
	for tone, text := range c.Fallback {
		tpl, err := parse(fmt.Sprintf("fallback/%s", tone), text)
		if err != nil {
			return nil, err
		}
		g.fallback[tone] = tpl
	}
	for tt, byTone := range c.Tasks {
		if _, err := domain.ParseTaskType(string(tt)); err != nil {
			return nil, fmt.Errorf("templates: %w", err)
		}
		g.tasks[tt] = make(map[Tone][]*template.Template, len(byTone))
		for tone, variants := range byTone {
			for i, text := range variants {
				tpl, err := parse(fmt.Sprintf("%s/%s/%d", tt, tone, i), text)
				if err != nil {
					return nil, err
				}
				g.tasks[tt][tone] = append(g.tasks[tt][tone], tpl)
			}
		}
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

func parse(name, text string) (*template.Template, error) {
	tpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return tpl, nil
}

type vars struct {
	Address   string
	Username  string
	Remaining int
	Reason    string
}

// Generate renders a variant for t in the user's tone. A type with no
// templates, or a template that fails to render, yields *crm.GenerationError.
func (g *Generator) Generate(_ context.Context, t domain.TaskType, uc domain.UserContext, p domain.Payload) (string, error) {
	tone := ToneFor(uc.Age)
	variants := g.tasks[t][tone]
	if len(variants) == 0 {
		variants = g.tasks[t][TonePlayful]
	}
	if len(variants) == 0 {
		return "", &crm.GenerationError{TaskType: t, Err: ErrNoTemplate}
	}

	v := vars{Address: AddressFor(uc.Age, uc.Gender), Username: uc.Username}
	switch pl := p.(type) {
	case domain.LimitInfoPayload:
		v.Remaining = pl.Remaining
	case domain.FarewellPayload:
		v.Reason = pl.Reason
	}

	tpl := variants[g.rnd.Intn(len(variants))]
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, v); err != nil {
		return "", &crm.GenerationError{TaskType: t, Err: err}
	}
	return buf.String(), nil
}

// Fallback renders the apology used when Generate fails.
func (g *Generator) Fallback(uc domain.UserContext) string {
	tpl, ok := g.fallback[ToneFor(uc.Age)]
	if !ok {
		tpl = g.fallback[TonePlayful]
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, vars{Address: AddressFor(uc.Age, uc.Gender), Username: uc.Username}); err != nil {
		return "sorry, something went wrong. I'll write again soon."
	}
	return buf.String()
}

// ToneFor picks the register by age: 46 and older get care, everyone else playful.
func ToneFor(age *int) Tone {
	if age != nil && *age >= 46 {
		return ToneCare
	}
	return TonePlayful
}

// AddressFor is how the administrator addresses the user.
func AddressFor(age *int, gender *string) string {
	young := age != nil && *age <= 25
	g := ""
	if gender != nil {
		g = *gender
	}
	switch {
	case g == domain.GenderFemale && young:
		return "sunshine"
	case g == domain.GenderFemale:
		return "dear"
	case g == domain.GenderMale && young:
		return "buddy"
	default:
		return "friend"
	}
}

var _ crm.Generator = (*Generator)(nil)
