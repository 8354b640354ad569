package signature

import (
	"github.com/mintel/lpipe/errors"
)

// Mode selects how a Binding builds its kwargs.
type Mode int

const (
	// ModeEmpty yields no kwargs. Used by pure fan-out actions.
	ModeEmpty Mode = iota
	// ModeExplicit copies the declared ParamSpecs.
	ModeExplicit
	// ModeDerived checks kwargs against the merged handler contract.
	ModeDerived
)

func (m Mode) String() string {
	switch m {
	case ModeExplicit:
		return "explicit"
	case ModeDerived:
		return "derived"
	default:
		return "empty"
	}
}

// ParamSpec names a required kwarg and the key it is passed on under.
type ParamSpec struct {
	Source string
	Target string
}

// Keep requires name and passes it on unchanged.
func Keep(name string) ParamSpec {
	return ParamSpec{Source: name, Target: name}
}

// Rename requires source and passes it on as target.
func Rename(source, target string) ParamSpec {
	return ParamSpec{Source: source, Target: target}
}

// Binding turns caller kwargs into the kwargs of one action.
type Binding struct {
	mode       Mode
	specs      []ParamSpec
	contract   *Contract
	includeAll bool
}

// NewBinding picks the mode from what the action declares: explicit specs
// win, then handler parameters, otherwise the binding is empty. Handler
// parameters are merged here so conflicts surface at construction.
func NewBinding(specs []ParamSpec, handlers [][]Param, includeAll bool) (*Binding, error) {
	b := &Binding{includeAll: includeAll}
	switch {
	case len(specs) > 0:
		b.mode = ModeExplicit
		b.specs = append([]ParamSpec(nil), specs...)
	case len(handlers) > 0:
		c, err := Merge(handlers...)
		if err != nil {
			return nil, err
		}
		b.mode = ModeDerived
		b.contract = c
	default:
		b.mode = ModeEmpty
	}
	return b, nil
}

// Mode returns the binding mode.
func (b *Binding) Mode() Mode { return b.mode }

// Contract returns the merged handler contract, nil unless derived.
func (b *Binding) Contract() *Contract { return b.contract }

// IncludeAll reports whether the full incoming kwargs are overlaid.
func (b *Binding) IncludeAll() bool { return b.includeAll }

// Bind computes the action kwargs. The result is always a fresh map.
func (b *Binding) Bind(kwargs map[string]any) (map[string]any, error) {
	var out map[string]any
	switch b.mode {
	case ModeExplicit:
		out = make(map[string]any, len(b.specs))
		for _, s := range b.specs {
			v, ok := kwargs[s.Source]
			if !ok {
				return nil, errors.MissingParam(s.Source)
			}
			out[s.Target] = v
		}
	case ModeDerived:
		var err error
		if out, err = b.contract.Check(kwargs); err != nil {
			return nil, err
		}
	default:
		out = make(map[string]any)
	}

	if b.includeAll {
		for k, v := range kwargs {
			out[k] = v
		}
	}
	return out, nil
}
