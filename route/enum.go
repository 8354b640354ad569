package route

import (
	"regexp"
	"strings"

	"github.com/mintel/lpipe/errors"
	"github.com/mintel/lpipe/validation"
)

var memberPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// Target is where a Payload is dispatched: a Path, an unresolved Name or
// a Queue.
type Target interface {
	String() string
	isTarget()
}

// Name is an unresolved path identifier as it arrives from outside: a
// bare member name in any case, or qualified as "Enum.NAME".
type Name string

func (n Name) String() string { return string(n) }
func (Name) isTarget()        {}

// member strips any qualifier and folds case.
func (n Name) member() string {
	s := string(n)
	if idx := strings.LastIndex(s, "."); idx != -1 {
		s = s[idx+1:]
	}
	return strings.ToUpper(s)
}

// Path is a resolved member of an Enum. Paths are comparable and usable as
// map keys.
type Path struct {
	enum *Enum
	name string
}

// Name returns the member name.
func (p Path) Name() string { return p.name }

// Enum returns the enumeration p belongs to.
func (p Path) Enum() *Enum { return p.enum }

// IsZero reports whether p is the zero Path.
func (p Path) IsZero() bool { return p.enum == nil }

func (p Path) String() string {
	if p.enum == nil {
		return ""
	}
	return p.enum.name + "." + p.name
}

func (Path) isTarget() {}

// MarshalText encodes the qualified name.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Enum is a closed set of path names fixed at configuration time.
type Enum struct {
	name    string
	members []string
	index   map[string]int
}

// NewEnum creates an enumeration. Member names are upper-case identifiers
// and must be unique.
func NewEnum(name string, members ...string) (*Enum, error) {
	v := validation.New().
		Required("enum.name", name).
		Custom(len(members) > 0, "enum.members", "must not be empty").
		Unique("enum.members", members)
	for _, m := range members {
		v.Pattern("enum.members", m, memberPattern)
	}
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}

	e := &Enum{name: name, members: append([]string(nil), members...), index: make(map[string]int, len(members))}
	for i, m := range members {
		e.index[m] = i
	}
	return e, nil
}

// MustEnum is like NewEnum but panics on error.
func MustEnum(name string, members ...string) *Enum {
	e, err := NewEnum(name, members...)
	if err != nil {
		panic(err)
	}
	return e
}

// Name returns the enumeration name.
func (e *Enum) Name() string { return e.name }

// Len returns the number of members.
func (e *Enum) Len() int { return len(e.members) }

// Members returns every member in declaration order.
func (e *Enum) Members() []Path {
	out := make([]Path, len(e.members))
	for i, m := range e.members {
		out[i] = Path{enum: e, name: m}
	}
	return out
}

// Lookup finds a member by exact name.
func (e *Enum) Lookup(name string) (Path, bool) {
	if _, ok := e.index[name]; !ok {
		return Path{}, false
	}
	return Path{enum: e, name: name}, true
}

// Must returns the member with the given name and panics if there is none.
// Use it when wiring routes in code.
func (e *Enum) Must(name string) Path {
	p, err := e.Resolve(Name(name))
	if err != nil {
		panic(err)
	}
	return p
}

// Resolve turns a Path or Name into a member of e. A Path of another
// enumeration resolves by its member name. Unknown names fail with
// PATH_NOT_FOUND. Resolving a member of e returns it unchanged.
func (e *Enum) Resolve(t Target) (Path, error) {
	switch v := t.(type) {
	case Path:
		if v.enum == e {
			return v, nil
		}
		if v.enum == nil {
			return Path{}, errors.PathNotFound("")
		}
		return e.resolveName(v.name, v.String())
	case Name:
		return e.resolveName(v.member(), string(v))
	case nil:
		return Path{}, errors.InvalidPayload("no target")
	default:
		return Path{}, errors.PathNotFound(t.String())
	}
}

func (e *Enum) resolveName(member, raw string) (Path, error) {
	if p, ok := e.Lookup(member); ok {
		return p, nil
	}
	return Path{}, errors.PathNotFound(raw)
}

// Normalize resolves path-like targets through Resolve and passes Queues
// through.
func (e *Enum) Normalize(t Target) (Target, error) {
	if q, ok := t.(Queue); ok {
		return q, nil
	}
	return e.Resolve(t)
}
