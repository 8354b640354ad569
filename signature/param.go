package signature

import (
	"fmt"
	"reflect"

	"github.com/mintel/lpipe/errors"
)

// Param declares one parameter of a handler.
type Param struct {
	Name string
	// Type constrains supplied values. A nil Type accepts anything.
	Type Type
	// Default is used when the caller omits the parameter; only meaningful
	// when HasDefault is set.
	Default    any
	HasDefault bool
	// Variadic marks a catch-all parameter. It is left out of merging and
	// binding.
	Variadic bool
}

// Required declares a parameter the caller must supply.
func Required(name string, t Type) Param {
	return Param{Name: name, Type: t}
}

// Optional declares a parameter with a default.
func Optional(name string, t Type, def any) Param {
	return Param{Name: name, Type: t, Default: def, HasDefault: true}
}

// Rest declares a catch-all parameter.
func Rest(name string) Param {
	return Param{Name: name, Variadic: true}
}

func (p Param) typeName() string {
	if p.Type == nil {
		return ""
	}
	return p.Type.Name()
}

func (p Param) String() string {
	s := p.Name
	if t := p.typeName(); t != "" {
		s += " " + t
	}
	if p.HasDefault {
		s += fmt.Sprintf(" = %v", p.Default)
	}
	if p.Variadic {
		s = "..." + s
	}
	return s
}

func compatible(a, b Param) bool {
	if a.typeName() != b.typeName() || a.HasDefault != b.HasDefault {
		return false
	}
	return !a.HasDefault || reflect.DeepEqual(a.Default, b.Default)
}

// Contract is the joint parameter list of a group of handlers.
type Contract struct {
	params []Param
	index  map[string]int
}

// Merge combines the parameter lists of several handlers. Two handlers that
// share a parameter name must agree on its type and default, otherwise a
// SIGNATURE_CONFLICT error is returned.
func Merge(lists ...[]Param) (*Contract, error) {
	c := &Contract{index: make(map[string]int)}
	for _, list := range lists {
		for _, p := range list {
			if p.Variadic {
				continue
			}
			i, seen := c.index[p.Name]
			if !seen {
				c.index[p.Name] = len(c.params)
				c.params = append(c.params, p)
				continue
			}
			if !compatible(c.params[i], p) {
				return nil, errors.SignatureConflict(p.Name, c.params[i].String(), p.String())
			}
		}
	}
	return c, nil
}

// Params returns the merged parameters in first-declared order.
func (c *Contract) Params() []Param {
	return append([]Param(nil), c.params...)
}

// Lookup returns the merged declaration of name.
func (c *Contract) Lookup(name string) (Param, bool) {
	i, ok := c.index[name]
	if !ok {
		return Param{}, false
	}
	return c.params[i], true
}

// Len returns the number of merged parameters.
func (c *Contract) Len() int { return len(c.params) }

// Check validates kwargs against the contract and returns the supplied
// subset. Omitted parameters with a default are not filled in.
func (c *Contract) Check(kwargs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(c.params))
	for _, p := range c.params {
		v, ok := kwargs[p.Name]
		if !ok {
			if !p.HasDefault {
				return nil, errors.MissingParam(p.Name)
			}
			continue
		}
		if p.Type != nil && !p.Type.Check(v) {
			return nil, errors.TypeMismatch(p.Name, p.Type.Name(), Describe(v))
		}
		out[p.Name] = v
	}
	return out, nil
}
