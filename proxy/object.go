package proxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"objbridge/message"
	"objbridge/schema"
	"objbridge/transport"
	"objbridge/value"
)

var (
	ErrReleased     = errors.New("proxy: object already released")
	ErrUnbound      = errors.New("proxy: object has no remote identity")
	ErrNoSuchMethod = errors.New("proxy: no such method")
	ErrNoSuchField  = errors.New("proxy: no such field")
	ErrNilObject    = errors.New("proxy: nil object argument")
)

// Channel is the request/reply channel a handle is bound to.
type Channel interface {
	Request(m message.Message, timeout time.Duration) (message.Message, error)
}

type state int

const (
	unbound state = iota
	bound
	released
)

// Object is the local proxy of one remote object.
//
// Objects must be released explicitly with Release once no longer needed. After
// Release every operation except Release fails with ErrReleased.
type Object struct {
	typ     *Type
	factory *Factory

	mu    sync.RWMutex
	state state
	id    schema.HandleID
	ch    Channel
	owned io.Closer
}

var _ value.Object = (*Object)(nil)

// Type returns the synthesized proxy type.
func (o *Object) Type() *Type { return o.typ }

// ClassName returns the remote class identity, empty for a nil object.
func (o *Object) ClassName() string {
	if o == nil || o.typ == nil {
		return ""
	}
	return o.typ.Class()
}

// Interfaces returns the interface identities of the remote class.
func (o *Object) Interfaces() []string {
	if o == nil || o.typ == nil {
		return nil
	}
	return o.typ.Interfaces()
}

// Ref returns the handle identity.
func (o *Object) Ref() (schema.HandleID, error) {
	id, _, err := o.binding()
	return id, err
}

// Released reports whether Release has run.
func (o *Object) Released() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state == released
}

func (o *Object) binding() (schema.HandleID, Channel, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch o.state {
	case released:
		return nil, nil, ErrReleased
	case unbound:
		return nil, nil, ErrUnbound
	}
	return o.id, o.ch, nil
}

// Get reads a field.
func (o *Object) Get(field string) (any, error) {
	id, ch, err := o.binding()
	if err != nil {
		return nil, err
	}
	if !o.typ.HasField(field) {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchField, o.ClassName(), field)
	}
	reply, err := ch.Request(message.GetField(id, field), o.factory.callTimeout)
	if err != nil {
		return nil, err
	}
	return value.Decode(reply, o.factory.resolver(ch))
}

// Set writes a field.
func (o *Object) Set(field string, v any) error {
	id, ch, err := o.binding()
	if err != nil {
		return err
	}
	if !o.typ.HasField(field) {
		return fmt.Errorf("%w: %s.%s", ErrNoSuchField, o.ClassName(), field)
	}
	encoded, err := value.Encode(v)
	if err != nil {
		return err
	}
	reply, err := ch.Request(message.SetField(id, field, encoded), o.factory.callTimeout)
	if err != nil {
		return err
	}
	_, err = value.Decode(reply, nil)
	return err
}

// Call invokes a method by local or wire name. Nil arguments are dropped before overload
// resolution so callers can pad a call to the widest parameter list.
func (o *Object) Call(name string, args ...any) (any, error) {
	id, ch, err := o.binding()
	if err != nil {
		return nil, err
	}
	m, ok := o.typ.Method(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchMethod, o.ClassName(), name)
	}

	present, err := PresentArgs(args)
	if err != nil {
		return nil, err
	}
	sig, err := o.factory.resolve(m.Overloads, present)
	if err != nil {
		return nil, err
	}
	encoded, err := value.EncodeArgs(sig, present)
	if err != nil {
		return nil, err
	}

	req := message.RunMethod(id, m.WireName, sig.ArgumentStrings(), encoded)
	reply, err := ch.Request(req, o.factory.callTimeout)
	if err != nil {
		return nil, err
	}
	return value.Decode(reply, o.factory.resolver(ch))
}

// Release tells the server the proxy is discarded. It is safe to call more than once and
// on an object that was never bound. A channel that is already closed is logged, not
// returned. Release waits at most the factory's release timeout for the acknowledgement.
func (o *Object) Release() error {
	o.mu.Lock()
	if o.state != bound {
		o.state = released
		o.mu.Unlock()
		return nil
	}
	id, ch, owned := o.id, o.ch, o.owned
	o.state = released
	o.ch = nil
	o.owned = nil
	o.mu.Unlock()

	reply, err := ch.Request(message.Destructor(id), o.factory.releaseTimeout)
	if owned != nil {
		if cerr := owned.Close(); cerr != nil {
			o.factory.logger.Debug("closing object channel", zap.Error(cerr))
		}
	}
	switch {
	case errors.Is(err, transport.ErrClosed), errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		o.factory.logger.Debug("release on closed channel",
			zap.String("class", o.ClassName()), zap.Any("id", id))
		return nil
	case errors.Is(err, transport.ErrNoReply):
		o.factory.logger.Warn("release not acknowledged",
			zap.String("class", o.ClassName()), zap.Any("id", id))
		return nil
	case err != nil:
		return fmt.Errorf("release %s: %w", o.ClassName(), err)
	}
	_, err = value.Decode(reply, nil)
	return err
}

// PresentArgs drops nil arguments and rejects a nil *Object with ErrNilObject.
func PresentArgs(args []any) ([]any, error) {
	present := make([]any, 0, len(args))
	for i, a := range args {
		if a == nil {
			continue
		}
		if obj, ok := a.(*Object); ok && obj == nil {
			return nil, fmt.Errorf("%w at position %d", ErrNilObject, i)
		}
		present = append(present, a)
	}
	return present, nil
}

func (o *Object) String() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	switch o.state {
	case released:
		return fmt.Sprintf("%s(released)", o.ClassName())
	case unbound:
		return fmt.Sprintf("%s(unbound)", o.ClassName())
	}
	return fmt.Sprintf("%s@%v", o.ClassName(), o.id)
}
