package route

import (
	"fmt"

	"github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/signature"
	"github.com/mintel/lpipe/validation"
)

// Step is one entry in a path definition: an Action, or a bare Handler as
// shorthand.
type Step interface {
	isStep()
}

// Action is a node of the routing graph.
type Action struct {
	// Functions run in order with the action kwargs.
	Functions []Handler
	// Paths are dispatched after the functions, depth first. Entries are
	// Paths or Names.
	Paths []Target
	// Queues receive the action kwargs after the sub-paths.
	Queues []Queue
	// RequiredParams, when set, replaces the contract derived from the
	// functions' parameters.
	RequiredParams []signature.ParamSpec
	// IncludeAllParams overlays the full incoming kwargs on the computed set.
	IncludeAllParams bool
}

func (Action) isStep() {}

// NormalizeSteps turns a path definition into actions. A list of bare
// handlers becomes one action running all of them. Mixing handlers and
// actions is a configuration error.
func NormalizeSteps(steps []Step) ([]Action, error) {
	var handlers []Handler
	var actions []Action
	for i, s := range steps {
		switch v := s.(type) {
		case Handler:
			handlers = append(handlers, v)
		case Action:
			actions = append(actions, v)
		case *Action:
			if v == nil {
				return nil, errors.Configuration("step %d is a nil action", i)
			}
			actions = append(actions, *v)
		default:
			return nil, errors.Configuration("step %d has unsupported type %T", i, s)
		}
	}
	switch {
	case len(handlers) > 0 && len(actions) > 0:
		return nil, errors.Configuration("a path definition must be all handlers or all actions, got %d of each", len(handlers), len(actions))
	case len(handlers) > 0:
		return []Action{{Functions: handlers}}, nil
	case len(actions) == 0:
		return nil, errors.Configuration("path definition is empty")
	}
	return actions, nil
}

// validate reports every declaration problem of a. Sub-path references are
// checked by the table builder.
func (a Action) validate() *validation.Validator {
	v := validation.New().Custom(
		len(a.Functions) > 0 || len(a.Paths) > 0 || len(a.Queues) > 0,
		"action", "must declare at least one function, path or queue",
	)
	for i, h := range a.Functions {
		field := fmt.Sprintf("functions[%d]", i)
		v.Required(field+".name", h.Name)
		v.Custom(h.Fn != nil, field+".fn", "is required")
	}
	for i, q := range a.Queues {
		if err := q.Validate(); err != nil {
			if appErr, ok := errors.AsAppError(err); ok {
				if fields, ok := appErr.Details["fields"].([]validation.FieldError); ok {
					for _, f := range fields {
						v.AddError(fmt.Sprintf("queues[%d].%s", i, f.Field), f.Message)
					}
					continue
				}
			}
			v.AddError(fmt.Sprintf("queues[%d]", i), err.Error())
		}
	}
	for i, p := range a.Paths {
		if _, ok := p.(Queue); ok {
			v.AddError(fmt.Sprintf("paths[%d]", i), "queues belong in Queues")
		}
	}
	for i, s := range a.RequiredParams {
		v.Required(fmt.Sprintf("required_params[%d].source", i), s.Source)
		v.Required(fmt.Sprintf("required_params[%d].target", i), s.Target)
	}
	return v
}
