package server

import (
	"context"
	"fmt"
	"reflect"

	"objbridge/message"
)

// dispatch is the handler at the end of the middleware chain.
func (s *Server) dispatch(ctx context.Context, req message.Message) message.Message {
	var (
		reply message.Message
		err   error
	)
	switch req.Command() {
	case message.CmdConnect:
		reply = message.Message{}
		if s.version != "" {
			reply[message.KeyVersion] = s.version
		}
	case message.CmdGetConstructors:
		reply, err = s.getConstructors(req)
	case message.CmdConstructor:
		reply, err = s.construct(req)
	case message.CmdGetField:
		reply, err = s.getField(req)
	case message.CmdSetField:
		reply, err = s.setField(req)
	case message.CmdRunMethod:
		reply, err = s.runMethod(req)
	case message.CmdDestructor:
		err = s.objects.release(req[message.KeyHashCode])
		reply = message.Message{message.KeyType: message.TypeNull}
	default:
		err = fmt.Errorf("unknown command %q", req.Command())
	}
	if err != nil {
		return message.Exception(err.Error())
	}
	return reply
}

func (s *Server) class(req message.Message) (*Class, error) {
	name := req.String(message.KeyClasspath)
	c, ok := s.Class(name)
	if !ok {
		return nil, fmt.Errorf("class not found: %s", name)
	}
	return c, nil
}

func (s *Server) getConstructors(req message.Message) (message.Message, error) {
	c, err := s.class(req)
	if err != nil {
		return nil, err
	}
	return message.Message{message.KeyAPI: apiRecords(c.Constructors())}, nil
}

func (s *Server) construct(req message.Message) (message.Message, error) {
	c, err := s.class(req)
	if err != nil {
		return nil, err
	}
	argTypes, args, err := callArgs(req)
	if err != nil {
		return nil, err
	}
	o, ok := find(c.constructors, argTypes)
	if !ok {
		return nil, fmt.Errorf("no constructor %s(%v)", c.name, argTypes)
	}
	in, err := s.decodeArgs(o, args)
	if err != nil {
		return nil, err
	}
	v, err := o.call(reflect.Value{}, in)
	if err != nil {
		return nil, err
	}
	if v.IsNil() {
		return nil, fmt.Errorf("constructor of %s returned nil", c.name)
	}

	reply := s.serialize(c, v)
	if newPort, _ := req[message.KeyNewPort].(bool); newPort {
		port, err := s.openDedicated()
		if err != nil {
			s.objects.release(reply[message.KeyHashCode])
			return nil, err
		}
		reply[message.KeyPort] = port
	}
	return reply, nil
}

func (s *Server) target(req message.Message) (*entry, error) {
	return s.objects.lookup(req[message.KeyHashCode])
}

func (s *Server) getField(req message.Message) (message.Message, error) {
	e, err := s.target(req)
	if err != nil {
		return nil, err
	}
	name := req.String(message.KeyName)
	f, ok := e.class.fields[name]
	if !ok {
		return nil, fmt.Errorf("%s has no field %s", e.class.name, name)
	}
	return s.encode(e.v.Elem().FieldByIndex(f.index))
}

func (s *Server) setField(req message.Message) (message.Message, error) {
	e, err := s.target(req)
	if err != nil {
		return nil, err
	}
	name := req.String(message.KeyName)
	f, ok := e.class.fields[name]
	if !ok {
		return nil, fmt.Errorf("%s has no field %s", e.class.name, name)
	}
	tag, err := s.tag(f.typ)
	if err != nil {
		return nil, err
	}
	v, err := s.decodeArg(req[message.KeyValue], tag, f.typ)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}
	e.v.Elem().FieldByIndex(f.index).Set(v)
	return message.Message{message.KeyType: message.TypeNull}, nil
}

func (s *Server) runMethod(req message.Message) (message.Message, error) {
	e, err := s.target(req)
	if err != nil {
		return nil, err
	}
	name := req.String(message.KeyName)
	overloads, ok := e.class.methods[name]
	if !ok {
		return nil, fmt.Errorf("%s has no method %s", e.class.name, name)
	}
	argTypes, args, err := callArgs(req)
	if err != nil {
		return nil, err
	}
	o, ok := find(overloads, argTypes)
	if !ok {
		return nil, fmt.Errorf("%s has no overload %s(%v)", e.class.name, name, argTypes)
	}
	in, err := s.decodeArgs(o, args)
	if err != nil {
		return nil, err
	}
	v, err := o.call(e.v, in)
	if err != nil {
		return nil, err
	}
	return s.encode(v)
}

func callArgs(req message.Message) ([]string, []any, error) {
	var argTypes []string
	switch t := req[message.KeyArgumentTypes].(type) {
	case nil:
	case []any:
		argTypes = make([]string, len(t))
		for i, a := range t {
			s, ok := a.(string)
			if !ok {
				return nil, nil, fmt.Errorf("argument-types[%d] is %T", i, a)
			}
			argTypes[i] = s
		}
	case []string:
		argTypes = t
	default:
		return nil, nil, fmt.Errorf("argument-types is %T", t)
	}

	var args []any
	switch a := req[message.KeyArguments].(type) {
	case nil:
	case []any:
		args = a
	default:
		return nil, nil, fmt.Errorf("arguments is %T", a)
	}
	if len(args) != len(argTypes) {
		return nil, nil, fmt.Errorf("%d arguments for %d argument types", len(args), len(argTypes))
	}
	return argTypes, args, nil
}
