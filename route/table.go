package route

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/signature"
	"github.com/mintel/lpipe/validation"
)

// Routes is a path definition as written by users. Keys are Paths or
// Names; values are actions, or bare handlers as shorthand.
type Routes map[Target][]Step

// Node is an action after Build: sub-paths resolved and the kwargs
// binding compiled.
type Node struct {
	Handlers []Handler
	Paths    []Path
	Queues   []Queue
	Binding  *signature.Binding
}

// Table is an immutable routing table. It is safe for concurrent use.
type Table struct {
	enum        *Enum
	order       []Path
	routes      map[Path][]*Node
	levels      [][]Path
	fingerprint string
}

// Build validates routes and compiles them into a Table. Without an enum
// one named "Auto" is synthesized from the upper-cased keys. Every problem
// is reported as a CONFIGURATION error, except incompatible handler
// parameters, which are SIGNATURE_CONFLICT.
func Build(routes Routes, enum *Enum) (*Table, error) {
	if len(routes) == 0 {
		return nil, errors.Configuration("no routes defined")
	}
	if enum == nil {
		var err error
		if enum, err = enumFor(routes); err != nil {
			return nil, err
		}
	}

	keyed := make(map[Path][]Action, len(routes))
	v := validation.New()
	for key, steps := range routes {
		p, err := enum.Resolve(key)
		if err != nil {
			v.AddError(fmt.Sprintf("routes[%v]", key), "is not a member of "+enum.name)
			continue
		}
		if _, dup := keyed[p]; dup {
			v.AddError(fmt.Sprintf("routes[%v]", key), "duplicates "+p.String())
			continue
		}
		actions, err := NormalizeSteps(steps)
		if err != nil {
			v.AddError(fmt.Sprintf("routes[%s]", p), messageOf(err))
			continue
		}
		keyed[p] = actions
	}
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}

	t := &Table{enum: enum, routes: make(map[Path][]*Node, len(keyed))}
	for _, p := range enum.Members() {
		if _, ok := keyed[p]; ok {
			t.order = append(t.order, p)
		}
	}

	edges := make(map[Path][]Path)
	for _, p := range t.order {
		for i, a := range keyed[p] {
			field := fmt.Sprintf("routes[%s][%d]", p, i)
			v.Merge(field+".", a.validate())

			node := &Node{Handlers: a.Functions, Queues: a.Queues}
			for j, target := range a.Paths {
				sub, err := resolveTarget(enum, target)
				if err != nil {
					v.AddError(fmt.Sprintf("%s.paths[%d]", field, j), messageOf(err))
					continue
				}
				if _, routed := keyed[sub]; !routed {
					v.AddError(fmt.Sprintf("%s.paths[%d]", field, j), sub.String()+" has no routes")
					continue
				}
				node.Paths = append(node.Paths, sub)
				edges[p] = append(edges[p], sub)
			}
			t.routes[p] = append(t.routes[p], node)
		}
	}
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}

	for _, p := range t.order {
		for i, node := range t.routes[p] {
			a := keyed[p][i]
			params := make([][]signature.Param, 0, len(a.Functions))
			for _, h := range a.Functions {
				params = append(params, h.Params)
			}
			b, err := signature.NewBinding(a.RequiredParams, params, a.IncludeAllParams)
			if err != nil {
				if appErr, ok := errors.AsAppError(err); ok {
					appErr.WithDetail("path", p.String())
				}
				return nil, err
			}
			node.Binding = b
		}
	}

	lv, err := levels(t.order, edges)
	if err != nil {
		return nil, err
	}
	t.levels = lv
	t.fingerprint = fingerprint(t, keyed)
	return t, nil
}

// MustBuild is like Build but panics on error.
func MustBuild(routes Routes, enum *Enum) *Table {
	t, err := Build(routes, enum)
	if err != nil {
		panic(err)
	}
	return t
}

// enumFor synthesizes an enumeration from the keys of routes. Keys that
// are already Paths lend their own enumeration.
func enumFor(routes Routes) (*Enum, error) {
	var owner *Enum
	names := make([]string, 0, len(routes))
	for key := range routes {
		switch k := key.(type) {
		case Path:
			if k.IsZero() {
				return nil, errors.Configuration("route key is the zero path")
			}
			if owner != nil && owner != k.enum {
				return nil, errors.Configuration("route keys mix paths of %s and %s", owner.name, k.enum.name)
			}
			owner = k.enum
		case Name:
			names = append(names, k.member())
		default:
			return nil, errors.Configuration("route key %v is not a path", key)
		}
	}
	if owner != nil {
		return owner, nil
	}
	sort.Strings(names)
	e, err := NewEnum("Auto", names...)
	if err != nil {
		return nil, errors.Configuration("cannot derive path names from route keys").WithCause(err)
	}
	return e, nil
}

func resolveTarget(e *Enum, t Target) (Path, error) {
	if t == nil {
		return Path{}, errors.Configuration("is empty")
	}
	return e.Resolve(t)
}

func messageOf(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}

// Enum returns the path enumeration of the table.
func (t *Table) Enum() *Enum { return t.enum }

// Lookup returns the nodes routed from p.
func (t *Table) Lookup(p Path) ([]*Node, bool) {
	nodes, ok := t.routes[p]
	return nodes, ok
}

// Paths returns every routed path in enumeration order.
func (t *Table) Paths() []Path {
	return append([]Path(nil), t.order...)
}

// Levels groups routed paths by how deep they sit in the static graph.
// Level 0 holds paths no other path dispatches to.
func (t *Table) Levels() [][]Path {
	out := make([][]Path, len(t.levels))
	for i, l := range t.levels {
		out[i] = append([]Path(nil), l...)
	}
	return out
}

// Fingerprint identifies the table's structure. Two tables built from the
// same definition share a fingerprint.
func (t *Table) Fingerprint() string { return t.fingerprint }

func fingerprint(t *Table, keyed map[Path][]Action) string {
	var b strings.Builder
	b.WriteString(t.enum.name)
	for _, p := range t.order {
		fmt.Fprintf(&b, "\n%s", p.name)
		for i, node := range t.routes[p] {
			a := keyed[p][i]
			fmt.Fprintf(&b, "\n  action mode=%s all=%t", node.Binding.Mode(), a.IncludeAllParams)
			for _, h := range node.Handlers {
				params := make([]string, len(h.Params))
				for j, prm := range h.Params {
					params[j] = prm.String()
				}
				fmt.Fprintf(&b, "\n    fn %s(%s)", h.Name, strings.Join(params, ", "))
			}
			for _, s := range a.RequiredParams {
				fmt.Fprintf(&b, "\n    param %s>%s", s.Source, s.Target)
			}
			for _, sub := range node.Paths {
				fmt.Fprintf(&b, "\n    path %s", sub.name)
			}
			for _, q := range node.Queues {
				fmt.Fprintf(&b, "\n    queue %s %s %s %s", q.Transport, q.Name, q.URL, q.Path)
			}
		}
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
