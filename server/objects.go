package server

import (
	"fmt"
	"reflect"
	"sync"
)

type entry struct {
	id    int64
	class *Class
	v     reflect.Value
	refs  int
}

// objectTable maps handle identities to live objects. The same Go pointer always gets
// the same identity; each time it is handed out its reference count grows and each
// destructor shrinks it.
type objectTable struct {
	mu    sync.Mutex
	next  int64
	byID  map[int64]*entry
	byPtr map[any]*entry
}

func newObjectTable() *objectTable {
	return &objectTable{
		byID:  make(map[int64]*entry),
		byPtr: make(map[any]*entry),
	}
}

func (t *objectTable) add(c *Class, v reflect.Value) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := v.Interface()
	if e, ok := t.byPtr[key]; ok {
		e.refs++
		return e.id
	}
	t.next++
	e := &entry{id: t.next, class: c, v: v, refs: 1}
	t.byID[e.id] = e
	t.byPtr[key] = e
	return e.id
}

func (t *objectTable) lookup(raw any) (*entry, error) {
	id, err := handleID(raw)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[id]
	if !ok {
		return nil, fmt.Errorf("no object with hash-code %d", id)
	}
	return e, nil
}

func (t *objectTable) release(raw any) error {
	id, err := handleID(raw)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("no object with hash-code %d", id)
	}
	e.refs--
	if e.refs <= 0 {
		delete(t.byID, id)
		delete(t.byPtr, e.v.Interface())
	}
	return nil
}

func (t *objectTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

func handleID(raw any) (int64, error) {
	switch id := raw.(type) {
	case int64:
		return id, nil
	case float64:
		return int64(id), nil
	}
	return 0, fmt.Errorf("invalid hash-code %v", raw)
}
