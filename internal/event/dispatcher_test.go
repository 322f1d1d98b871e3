package event

import (
	"reflect"
	"testing"
)

func TestDispatcher_BindAndTrigger(t *testing.T) {
	d := NewDispatcher()

	var gotEvent string
	var gotArgs []any
	d.Bind("test", func(event string, args ...any) {
		gotEvent = event
		gotArgs = args
	}, false)

	d.Trigger("test", "value1", "value2")

	if gotEvent != "test" {
		t.Errorf("event = %q, want %q", gotEvent, "test")
	}
	want := []any{"value1", "value2"}
	if !reflect.DeepEqual(gotArgs, want) {
		t.Errorf("args = %v, want %v", gotArgs, want)
	}
}

func TestDispatcher_TriggerOrder(t *testing.T) {
	d := NewDispatcher()

	var order []int
	d.Bind("test", func(string, ...any) { order = append(order, 1) }, false)
	d.Bind("test", func(string, ...any) { order = append(order, 2) }, true)
	d.Bind("test", func(string, ...any) { order = append(order, 3) }, false)

	d.Trigger("test")

	if !reflect.DeepEqual(order, []int{1, 2, 3}) {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}

func TestDispatcher_OneshotRunsOnce(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	d.Bind("test", func(string, ...any) { calls++ }, true)

	d.Trigger("test")
	d.Trigger("test")

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if n := d.Listeners("test"); n != 0 {
		t.Errorf("Listeners = %d, want 0", n)
	}
}

func TestDispatcher_PersistentSurvives(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	d.Bind("test", func(string, ...any) { calls++ }, false)

	d.Trigger("test")
	d.Trigger("test")

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if n := d.Listeners("test"); n != 1 {
		t.Errorf("Listeners = %d, want 1", n)
	}
}

func TestDispatcher_Unbind(t *testing.T) {
	d := NewDispatcher()

	first, second := 0, 0
	b1 := d.Bind("test", func(string, ...any) { first++ }, false)
	d.Bind("test", func(string, ...any) { second++ }, false)

	d.Unbind("test", b1)
	d.Trigger("test")

	if first != 0 {
		t.Errorf("unbound listener called %d times", first)
	}
	if second != 1 {
		t.Errorf("remaining listener called %d times, want 1", second)
	}
	if n := d.Listeners("test"); n != 1 {
		t.Errorf("Listeners = %d, want 1", n)
	}
}

func TestDispatcher_UnbindUnknown(t *testing.T) {
	d := NewDispatcher()
	other := NewDispatcher()

	b := other.Bind("test", func(string, ...any) {}, false)

	// should not panic
	d.Unbind("test", b)
	d.Unbind("never-bound", nil)

	if n := d.Listeners("test"); n != 0 {
		t.Errorf("Listeners = %d, want 0", n)
	}
}

func TestDispatcher_TriggerWithoutListeners(t *testing.T) {
	var d Dispatcher

	// zero value must be usable
	d.Trigger("nonexistent", 1, 2)
}

func TestDispatcher_SameListenerBoundTwice(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	fn := func(string, ...any) { calls++ }
	d.Bind("test", fn, true)
	d.Bind("test", fn, false)

	d.Trigger("test")
	d.Trigger("test")

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDispatcher_BindDuringTrigger(t *testing.T) {
	d := NewDispatcher()

	inner := 0
	d.Bind("test", func(string, ...any) {
		d.Bind("test", func(string, ...any) { inner++ }, false)
	}, true)

	d.Trigger("test")
	if inner != 0 {
		t.Errorf("listener bound during trigger ran %d times in the same pass", inner)
	}

	d.Trigger("test")
	if inner != 1 {
		t.Errorf("inner = %d, want 1", inner)
	}
}

func TestDispatcher_UnbindDuringTrigger(t *testing.T) {
	d := NewDispatcher()

	var second *Binding
	secondCalls := 0
	d.Bind("test", func(string, ...any) {
		d.Unbind("test", second)
	}, true)
	second = d.Bind("test", func(string, ...any) { secondCalls++ }, false)
	third := d.Bind("test", func(string, ...any) {}, true)

	d.Trigger("test")

	// the snapshot still invokes the second listener
	if secondCalls != 1 {
		t.Errorf("secondCalls = %d, want 1", secondCalls)
	}
	if n := d.Listeners("test"); n != 0 {
		t.Errorf("Listeners = %d, want 0", n)
	}
	if !third.Oneshot() {
		t.Error("expected third binding to be oneshot")
	}
}
