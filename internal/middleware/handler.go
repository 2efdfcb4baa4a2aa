package middleware

import "context"

// Handler is a unit of behavior registered on a channel. It receives the
// trigger's payload and reports how the fallback chain should proceed
// through its Outcome.
type Handler func(ctx context.Context, payload interface{}) Outcome

// Bindings maps channel names to handlers for bulk registration via Use.
// Each plugin contributes at most one handler per channel.
type Bindings map[string]Handler

// Completion receives the single final result of an asynchronous trigger.
type Completion func(result interface{}, err error)

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name    string
	Channel string
	Handler Handler
}

type outcomeKind int

const (
	outcomeNext outcomeKind = iota
	outcomeDone
	outcomeFail
)

// Outcome is a handler's verdict on one trigger: pass control on (with or
// without a provisional error) or settle the whole chain (with a result or
// an error). Construct it with Next, NextErr, Done, or Fail.
type Outcome struct {
	kind   outcomeKind
	err    error
	result interface{}
}

// Next declines the trigger: the payload is not this handler's job and the
// next handler in the chain should run. Any provisional error recorded by
// an earlier handler is cleared.
func Next() Outcome {
	return Outcome{kind: outcomeNext}
}

// NextErr records a provisional failure and passes control to the next
// handler, which may still recover the trigger.
func NextErr(err error) Outcome {
	return Outcome{kind: outcomeNext, err: err}
}

// Done settles the trigger with a successful result. Remaining handlers in
// the chain never run.
func Done(result interface{}) Outcome {
	return Outcome{kind: outcomeDone, result: result}
}

// Fail settles the trigger with a terminal error. Remaining handlers in the
// chain never run.
func Fail(err error) Outcome {
	return Outcome{kind: outcomeFail, err: err}
}
