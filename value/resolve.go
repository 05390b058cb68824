package value

import (
	"fmt"

	"objbridge/schema"
)

// match grades how well one argument fits one parameter.
type match int

const (
	noMatch match = iota
	widening
	exact
)

func matchArg(tag schema.TypeTag, arg any) match {
	if obj, ok := arg.(Object); ok {
		if !tag.IsClass() {
			return noMatch
		}
		if obj.ClassName() == string(tag) {
			return exact
		}
		for _, iface := range obj.Interfaces() {
			if iface == string(tag) {
				return exact
			}
		}
		if tag == schema.Object {
			return widening
		}
		return noMatch
	}
	if kind, ok := ArrayKindOf(arg); ok {
		if kind.Tag() == tag {
			return exact
		}
		return noMatch
	}
	switch arg.(type) {
	case bool:
		if tag == schema.Boolean {
			return exact
		}
		return noMatch
	case string:
		if tag == schema.String {
			return exact
		}
		return noMatch
	case []any:
		if tag == schema.List {
			return exact
		}
		return noMatch
	case map[string]any:
		if tag == schema.JSONObject {
			return exact
		}
		return noMatch
	}
	switch {
	case isInteger(arg):
		if tag.IsInteger() {
			return exact
		}
		if tag.IsFloating() {
			return widening
		}
	case isFloating(arg):
		if tag.IsFloating() {
			return exact
		}
	}
	return noMatch
}

// Resolve picks the overload among candidates that accepts args.
//
// Candidates with a different parameter count are discarded, as are candidates where any
// argument is incompatible with its declared tag: an object whose class and interfaces do
// not include the parameter type, a primitive of the wrong kind, or an array of another
// element kind. Among the survivors the one with the most exact matches wins; integers
// passed to floating parameters count as compatible but not exact. Equally good survivors
// resolve to the last one listed unless strict is set, in which case the tie is an error.
func Resolve(candidates []schema.MethodSignature, args []any, strict bool) (schema.MethodSignature, error) {
	var (
		best      schema.MethodSignature
		bestScore = -1
		tied      []schema.MethodSignature
	)
	for _, sig := range candidates {
		if len(sig.Arguments) != len(args) {
			continue
		}
		score, ok := 0, true
		for i, tag := range sig.Arguments {
			m := matchArg(tag, args[i])
			if m == noMatch {
				ok = false
				break
			}
			if m == exact {
				score++
			}
		}
		if !ok {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore = sig, score
			tied = []schema.MethodSignature{sig}
		case score == bestScore:
			best = sig
			tied = append(tied, sig)
		}
	}
	if bestScore < 0 {
		name := ""
		if len(candidates) > 0 {
			name = candidates[0].Name
		}
		return schema.MethodSignature{}, &ArgumentMismatchError{
			Name:       name,
			Signatures: candidates,
			ArgTypes:   ArgTypes(args),
		}
	}
	if strict && len(tied) > 1 {
		return schema.MethodSignature{}, fmt.Errorf("%w: %s matches %v", ErrAmbiguousOverload, best.Name, tied)
	}
	return best, nil
}

// Ambiguous reports whether more than one overload fits args equally well.
func Ambiguous(candidates []schema.MethodSignature, args []any) bool {
	_, err := Resolve(candidates, args, true)
	return err != nil && !isMismatch(err)
}

func isMismatch(err error) bool {
	_, ok := err.(*ArgumentMismatchError)
	return ok
}

// ArgTypes describes the runtime types of args for diagnostics.
func ArgTypes(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch x := a.(type) {
		case nil:
			out[i] = "null"
		case Object:
			out[i] = x.ClassName()
		default:
			out[i] = fmt.Sprintf("%T", a)
		}
	}
	return out
}
