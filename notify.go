// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package canhub

// Notifiable receives exactly one completion signal per obligation.
// Notify must be safe to call from any goroutine, including producer
// goroutines standing in for interrupt context, unless the concrete
// implementation documents otherwise.
type Notifiable interface {
	Notify()
}

// NotifyFunc adapts an ordinary function to Notifiable.
type NotifyFunc func()

// Notify calls f.
func (f NotifyFunc) Notify() { f() }

// emptyNotifiable ignores the completion.
type emptyNotifiable struct{}

func (emptyNotifiable) Notify() {}

// crashNotifiable traps a completion that should never arrive.
type crashNotifiable struct{}

func (crashNotifiable) Notify() { fatal("called Crash notifiable") }

// Process-wide singletons. Both are zero-size and immutable.
var (
	emptyInstance Notifiable = emptyNotifiable{}
	crashInstance Notifiable = crashNotifiable{}
)

// Empty returns the process-wide notifiable whose Notify does nothing.
// Use it where an API requires a completion but nobody observes it.
func Empty() Notifiable { return emptyInstance }

// Crash returns the process-wide notifiable whose Notify is fatal.
// Install it as a guard value to catch a completion path that was never wired.
func Crash() Notifiable { return crashInstance }

// AutoNotify returns a function that notifies n exactly once, however many
// times it is called. Intended for defer:
//
//	defer canhub.AutoNotify(done)()
func AutoNotify(n Notifiable) func() {
	fired := false
	return func() {
		if fired {
			return
		}
		fired = true
		if n != nil {
			n.Notify()
		}
	}
}

// Fault is the panic value raised on programming errors: double notification,
// notifying an idle barrier, closing a barrier with outstanding shares,
// a missing completion, or over-releasing a payload. These conditions are
// accounting bugs in the caller and are never recovered inside canhub.
type Fault struct {
	Msg string
}

func (f *Fault) Error() string { return "canhub: " + f.Msg }

// fatal aborts the current goroutine with a *Fault.
func fatal(msg string) {
	panic(&Fault{Msg: msg})
}
