// Package event implements the Dispatcher used by connections and channels.
//
// A Dispatcher maps event names to an ordered list of bindings. Each binding
// records its listener together with a one-shot flag:
//   - persistent bindings survive every trigger
//   - one-shot bindings are removed after the first trigger that invoked them
//
// Listeners run without any dispatcher lock held, so a listener may bind,
// unbind or trigger on the same dispatcher.
package event
