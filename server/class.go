package server

import (
	"errors"
	"fmt"
	"reflect"
	"unicode"

	"objbridge/schema"
)

// overload is one callable registered under a wire name. For methods the first
// parameter of fn is the receiver.
type overload struct {
	sig      schema.MethodSignature
	fn       reflect.Value
	params   []reflect.Type // excluding the receiver
	receiver bool
	ret      reflect.Type // nil for void
	hasErr   bool
}

type field struct {
	index []int
	typ   reflect.Type
}

// Class is a Go struct type exposed to clients under a remote class identity.
type Class struct {
	name       string
	typ        reflect.Type // pointer to struct
	interfaces []string
	sample     reflect.Value
	singleton  bool

	constructors []*overload
	methods      map[string][]*overload
	order        []string
	fields       map[string]field
	fieldOrder   []string
}

// ClassOption configures a class at registration.
type ClassOption func(c *Class, tags tagger) error

// Implements declares interface identities of the class. The class identity itself is
// always reported first.
func Implements(ifaces ...string) ClassOption {
	return func(c *Class, _ tagger) error {
		c.interfaces = append(c.interfaces, ifaces...)
		return nil
	}
}

// Constructor adds a constructor overload. fn returns a pointer to the class struct,
// optionally followed by an error.
func Constructor(fn any) ClassOption {
	return func(c *Class, tags tagger) error {
		o, err := newOverload(c.name, reflect.ValueOf(fn), false, tags)
		if err != nil {
			return err
		}
		if o.ret != c.typ {
			return fmt.Errorf("server: constructor of %s returns %v", c.name, o.ret)
		}
		c.constructors = append(c.constructors, o)
		return nil
	}
}

// Overload adds a method under wire name. fn takes the class pointer first.
func Overload(name string, fn any) ClassOption {
	return func(c *Class, tags tagger) error {
		v := reflect.ValueOf(fn)
		if v.Kind() != reflect.Func || v.Type().NumIn() == 0 || v.Type().In(0) != c.typ {
			return fmt.Errorf("server: overload %s of %s must take %v first", name, c.name, c.typ)
		}
		o, err := newOverload(name, v, true, tags)
		if err != nil {
			return err
		}
		c.addMethod(o)
		return nil
	}
}

// Singleton makes every construction return the registered sample.
func Singleton() ClassOption {
	return func(c *Class, _ tagger) error {
		c.singleton = true
		return nil
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Name returns the remote class identity.
func (c *Class) Name() string { return c.name }

// API returns the method signatures in registration order.
func (c *Class) API() []schema.MethodSignature {
	var api []schema.MethodSignature
	for _, name := range c.order {
		for _, o := range c.methods[name] {
			api = append(api, o.sig)
		}
	}
	return api
}

// Constructors returns the constructor signatures.
func (c *Class) Constructors() []schema.MethodSignature {
	out := make([]schema.MethodSignature, len(c.constructors))
	for i, o := range c.constructors {
		out[i] = o.sig
	}
	return out
}

// Fields returns the wire names of the exported fields.
func (c *Class) Fields() []string {
	return append([]string(nil), c.fieldOrder...)
}

// Interfaces returns the class identity followed by the declared interfaces.
func (c *Class) Interfaces() []string {
	return append([]string{c.name}, c.interfaces...)
}

// lowerCamel turns an exported Go name into the wire name: SetExposure becomes
// setExposure and GetROI becomes getROI.
func lowerCamel(name string) string {
	r := []rune(name)
	if len(r) == 0 {
		return name
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// scan registers the exported methods and fields of c.typ. Methods whose parameter or
// result types have no wire representation are skipped.
func (c *Class) scan(tags tagger) {
	for i := 0; i < c.typ.NumMethod(); i++ {
		m := c.typ.Method(i)
		o, err := newOverload(lowerCamel(m.Name), m.Func, true, tags)
		if err != nil {
			continue
		}
		c.addMethod(o)
	}

	st := c.typ.Elem()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		if _, err := tags.tag(f.Type); err != nil {
			continue
		}
		name := lowerCamel(f.Name)
		c.fields[name] = field{index: f.Index, typ: f.Type}
		c.fieldOrder = append(c.fieldOrder, name)
	}
}

func (c *Class) addMethod(o *overload) {
	if _, ok := c.methods[o.sig.Name]; !ok {
		c.order = append(c.order, o.sig.Name)
	}
	c.methods[o.sig.Name] = append(c.methods[o.sig.Name], o)
}

// newOverload inspects fn. Accepted results are (), (T), (error) and (T, error).
func newOverload(name string, fn reflect.Value, receiver bool, tags tagger) (*overload, error) {
	ft := fn.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("server: %s is %s, not a func", name, ft.Kind())
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("server: %s is variadic", name)
	}
	o := &overload{fn: fn, receiver: receiver}
	first := 0
	if receiver {
		first = 1
	}
	o.sig.Name = name
	for i := first; i < ft.NumIn(); i++ {
		tag, err := tags.tag(ft.In(i))
		if err != nil {
			return nil, fmt.Errorf("server: %s parameter %d: %w", name, i-first, err)
		}
		o.params = append(o.params, ft.In(i))
		o.sig.Arguments = append(o.sig.Arguments, tag)
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			o.hasErr = true
		} else {
			o.ret = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("server: %s second result must be error", name)
		}
		o.ret, o.hasErr = ft.Out(0), true
	default:
		return nil, fmt.Errorf("server: %s returns %d results", name, ft.NumOut())
	}

	o.sig.ReturnType = schema.Void
	if o.ret != nil {
		tag, err := tags.tag(o.ret)
		if err != nil {
			return nil, fmt.Errorf("server: %s result: %w", name, err)
		}
		o.sig.ReturnType = tag
	}
	return o, nil
}

func (o *overload) call(recv reflect.Value, args []reflect.Value) (reflect.Value, error) {
	in := args
	if o.receiver {
		in = append([]reflect.Value{recv}, args...)
	}
	out := o.fn.Call(in)
	if o.hasErr {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return reflect.Value{}, errv.Interface().(error)
		}
	}
	if o.ret == nil {
		return reflect.Value{}, nil
	}
	return out[0], nil
}

// find returns the overload whose parameter tags equal argTypes.
func find(overloads []*overload, argTypes []string) (*overload, bool) {
	for _, o := range overloads {
		if len(o.sig.Arguments) != len(argTypes) {
			continue
		}
		match := true
		for i, t := range o.sig.Arguments {
			if string(t) != argTypes[i] {
				match = false
				break
			}
		}
		if match {
			return o, true
		}
	}
	return nil, false
}

var errUnsupportedType = errors.New("no wire representation")
