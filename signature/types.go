package signature

import (
	"encoding/json"
	"math/big"
	"reflect"
	"strings"
)

// Type is a runtime constraint on a parameter value.
type Type interface {
	// Name is used in TYPE_MISMATCH messages and to detect merge conflicts.
	Name() string
	// Check reports whether v satisfies the constraint.
	Check(v any) bool
}

type basic struct {
	name  string
	check func(any) bool
}

func (b basic) Name() string     { return b.name }
func (b basic) Check(v any) bool { return b.check(v) }
func (b basic) String() string   { return b.name }

// Built-in types for values decoded from JSON. Numbers arrive as
// json.Number; Int accepts integer literals and Float accepts literals with
// a fraction or exponent, Number accepts both.
var (
	String Type = basic{"string", func(v any) bool { _, ok := v.(string); return ok }}
	Int    Type = basic{"int", isInt}
	Float  Type = basic{"float", isFloat}
	Number Type = basic{"number", func(v any) bool { return isInt(v) || isFloat(v) }}
	Bool   Type = basic{"bool", func(v any) bool { _, ok := v.(bool); return ok }}
	Map    Type = basic{"map", func(v any) bool { _, ok := v.(map[string]any); return ok }}
	List   Type = basic{"list", func(v any) bool { _, ok := v.([]any); return ok }}
	Any    Type = basic{"any", func(any) bool { return true }}
)

type union []Type

func (u union) Name() string {
	names := make([]string, len(u))
	for i, t := range u {
		names[i] = t.Name()
	}
	return strings.Join(names, " | ")
}

func (u union) Check(v any) bool {
	for _, t := range u {
		if t.Check(v) {
			return true
		}
	}
	return false
}

// OneOf accepts a value satisfying any of types.
func OneOf(types ...Type) Type {
	return union(types)
}

type goType struct {
	t reflect.Type
}

func (g goType) Name() string { return g.t.String() }

func (g goType) Check(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).AssignableTo(g.t)
}

// TypeOf accepts values assignable to T. It is meant for kwargs built in
// process, for example by a handler emitting a Payload.
func TypeOf[T any]() Type {
	return goType{t: reflect.TypeFor[T]()}
}

// Describe names the runtime type of v the way TYPE_MISMATCH reports it.
func Describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number:
		if isFloatLiteral(string(x)) {
			return "float"
		}
		return "int"
	case map[string]any:
		return "map"
	case []any:
		return "list"
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	}
	return reflect.TypeOf(v).String()
}

func isInt(v any) bool {
	switch x := v.(type) {
	case json.Number:
		if isFloatLiteral(string(x)) {
			return false
		}
		_, ok := new(big.Int).SetString(string(x), 10)
		return ok
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func isFloat(v any) bool {
	switch x := v.(type) {
	case json.Number:
		if !isFloatLiteral(string(x)) {
			return false
		}
		_, ok := new(big.Float).SetString(string(x))
		return ok
	case float32, float64:
		return true
	}
	return false
}

func isFloatLiteral(s string) bool {
	return strings.ContainsAny(s, ".eE")
}
