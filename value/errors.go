package value

import (
	"errors"
	"fmt"
	"strings"

	"objbridge/schema"
)

// ErrAmbiguousOverload is returned in strict mode when more than one overload fits equally well.
var ErrAmbiguousOverload = errors.New("value: ambiguous overload")

// UnknownWireTypeError reports a reply whose "type" is outside the protocol vocabulary.
type UnknownWireTypeError struct {
	Type string
}

func (e *UnknownWireTypeError) Error() string {
	if e.Type == "" {
		return "value: reply without a type"
	}
	return fmt.Sprintf("value: unknown wire type %q", e.Type)
}

// ArgumentMismatchError reports that no overload accepts the supplied arguments.
type ArgumentMismatchError struct {
	Name       string
	Signatures []schema.MethodSignature
	ArgTypes   []string
}

func (e *ArgumentMismatchError) Error() string {
	expected := make([]string, len(e.Signatures))
	for i, s := range e.Signatures {
		expected[i] = "(" + strings.Join(s.ArgumentStrings(), ", ") + ")"
	}
	if len(expected) == 0 {
		expected = []string{"<no overloads>"}
	}
	return fmt.Sprintf("incorrect arguments to %s: expected %s, got (%s)",
		e.Name, strings.Join(expected, " or "), strings.Join(e.ArgTypes, ", "))
}
