package reverb

import (
	"reflect"
	"sync"
)

// ChangeListener is invoked after a Field's stored value changes, with the
// old and new values.
type ChangeListener func(old, new any)

// Field is a replicated field cell ("sync var"): a scalar slot that
// tracks whether it has changed since the last broadcast, notifying
// registered listeners on each distinct value.
type Field struct {
	mu         sync.Mutex
	value      any
	hasChanged bool
	listeners  []ChangeListener
}

// NewField constructs a field cell holding the given initial value.
func NewField(initial any, listeners ...ChangeListener) *Field {
	return &Field{value: initial, listeners: listeners}
}

// Get returns the field's current value.
func (f *Field) Get() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Set stores v. hasChanged is set iff v differs from the previous value by
// deep equality, which is safer for composite values (e.g. a position
// pair) than shallow/identity comparison. Listeners run synchronously,
// after the value is stored.
func (f *Field) Set(v any) {
	f.mu.Lock()
	old := f.value
	changed := !reflect.DeepEqual(old, v)
	f.value = v
	if changed {
		f.hasChanged = true
	}
	listeners := f.listeners
	f.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l(old, v)
		}
	}
}

// HasChanged reports whether Set has stored a distinct value since the
// last ClearChanged.
func (f *Field) HasChanged() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasChanged
}

// ClearChanged resets the changed flag. The replication tick calls this
// after successfully including the field's value in a broadcast.
func (f *Field) ClearChanged() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasChanged = false
}

// OnChange registers an additional listener.
func (f *Field) OnChange(l ChangeListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}
