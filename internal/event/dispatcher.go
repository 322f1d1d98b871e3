package event

import "sync"

// Listener receives the triggered event name followed by the trigger arguments.
type Listener func(event string, args ...any)

// Binding is a single registration of a listener for an event.
// It is the identity used by Unbind.
type Binding struct {
	listener Listener
	oneshot  bool
}

// Oneshot reports whether the binding is removed after its first invocation.
func (b *Binding) Oneshot() bool {
	return b.oneshot
}

// Dispatcher is a registry of event name to listener bindings.
// The zero value is ready to use.
type Dispatcher struct {
	mu       sync.Mutex
	bindings map[string][]*Binding
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Bind appends listener to the bindings of event and returns the binding.
// Binding the same function twice creates two independent bindings.
func (d *Dispatcher) Bind(event string, listener Listener, oneshot bool) *Binding {
	b := &Binding{listener: listener, oneshot: oneshot}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bindings == nil {
		d.bindings = make(map[string][]*Binding)
	}
	d.bindings[event] = append(d.bindings[event], b)
	return b
}

// Once is shorthand for a one-shot Bind.
func (d *Dispatcher) Once(event string, listener Listener) *Binding {
	return d.Bind(event, listener, true)
}

// Unbind removes the first occurrence of b from the bindings of event.
// Unknown events and bindings are ignored.
func (d *Dispatcher) Unbind(event string, b *Binding) {
	if b == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.remove(event, b)
}

// Trigger invokes every listener bound to event when the call starts, in
// registration order, passing event followed by args. One-shot bindings of
// that snapshot are removed once all listeners have run.
func (d *Dispatcher) Trigger(event string, args ...any) {
	d.mu.Lock()
	snapshot := make([]*Binding, len(d.bindings[event]))
	copy(snapshot, d.bindings[event])
	d.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	for _, b := range snapshot {
		b.listener(event, args...)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range snapshot {
		if b.oneshot {
			d.remove(event, b)
		}
	}
}

// Listeners returns the number of bindings currently registered for event.
func (d *Dispatcher) Listeners(event string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bindings[event])
}

// remove deletes the first occurrence of b. Must be called with lock held.
func (d *Dispatcher) remove(event string, b *Binding) {
	list := d.bindings[event]
	for i, candidate := range list {
		if candidate == b {
			d.bindings[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}
