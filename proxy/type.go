// Package proxy turns server type descriptions into local proxies for remote objects.
//
// A Type is a dispatch table built from one schema.TypeDescription: the field names and,
// per method name, the overload set. Object binds a Type to a server-assigned identity
// and the channel that identity lives on; every field access or call on it becomes one
// request/reply exchange on that channel.
package proxy

import (
	"sort"

	"objbridge/schema"
)

// Param is one parameter of the widest overload of a method.
type Param struct {
	Name     string
	Type     schema.TypeTag
	Optional bool // beyond the smallest arity of the overload set
}

// Method is every overload sharing one remote name.
type Method struct {
	Name      string // local name, snake_case when conversion is enabled
	WireName  string
	Returns   schema.TypeTag
	Params    []Param
	Overloads []schema.MethodSignature // ordered by arity
}

// MinArity is the smallest parameter count among the overloads.
func (m *Method) MinArity() int {
	if len(m.Overloads) == 0 {
		return 0
	}
	return len(m.Overloads[0].Arguments)
}

// Type is the synthesized proxy type of one remote class.
type Type struct {
	desc    schema.TypeDescription
	fields  map[string]bool
	methods map[string]*Method
	byWire  map[string]*Method
	order   []*Method
}

// Synthesize builds the dispatch table for desc. Method names are rewritten to
// snake_case when convertCamelCase is set; the wire name is kept for requests.
func Synthesize(desc schema.TypeDescription, convertCamelCase bool) *Type {
	t := &Type{
		desc:    desc,
		fields:  make(map[string]bool, len(desc.Fields)),
		methods: make(map[string]*Method),
		byWire:  make(map[string]*Method),
	}
	for _, f := range desc.Fields {
		t.fields[f] = true
	}

	for _, sig := range desc.Methods {
		m, ok := t.byWire[sig.Name]
		if !ok {
			local := sig.Name
			if convertCamelCase {
				local = schema.SnakeCase(sig.Name)
			}
			m = &Method{Name: local, WireName: sig.Name, Returns: sig.ReturnType}
			t.byWire[sig.Name] = m
			t.methods[local] = m
			t.order = append(t.order, m)
		}
		m.Overloads = append(m.Overloads, sig)
	}

	for _, m := range t.order {
		sort.SliceStable(m.Overloads, func(i, j int) bool {
			return len(m.Overloads[i].Arguments) < len(m.Overloads[j].Arguments)
		})
		widest := m.Overloads[len(m.Overloads)-1]
		names := schema.ParamNames(widest.Arguments)
		required := m.MinArity()
		m.Params = make([]Param, len(widest.Arguments))
		for i, tag := range widest.Arguments {
			m.Params[i] = Param{Name: names[i], Type: tag, Optional: i >= required}
		}
	}
	return t
}

// Class returns the remote class identity.
func (t *Type) Class() string { return t.desc.Class }

// Interfaces returns the interface identities the class implements, itself included.
func (t *Type) Interfaces() []string { return t.desc.Interfaces }

// Description returns the type description t was built from.
func (t *Type) Description() schema.TypeDescription { return t.desc }

// Fields returns the field names in server order.
func (t *Type) Fields() []string { return t.desc.Fields }

// HasField reports whether name is a field of the class.
func (t *Type) HasField(name string) bool { return t.fields[name] }

// Methods returns the method table in order of first appearance.
func (t *Type) Methods() []*Method {
	out := make([]*Method, len(t.order))
	copy(out, t.order)
	return out
}

// Method looks up a method by local or wire name.
func (t *Type) Method(name string) (*Method, bool) {
	if m, ok := t.methods[name]; ok {
		return m, true
	}
	m, ok := t.byWire[name]
	return m, ok
}
