package stream

import (
	"encoding/json"
	"strings"
	"time"
)

// accumulatingCall reconstructs one tool invocation from partial delta
// fragments. The arguments buffer holds raw JSON text concatenated in
// arrival order; fragments are not individually valid JSON.
type accumulatingCall struct {
	id   string
	name string
	args strings.Builder
}

// Accumulator rebuilds complete tool invocations from fragmented delta
// events, keyed by the opaque call identifier. Exactly one accumulating
// entry exists per id until it is finalized or discarded.
type Accumulator struct {
	calls map[string]*accumulatingCall
	order []string
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{calls: make(map[string]*accumulatingCall)}
}

// OnDelta applies one fragment: a present name sets or overwrites the
// call's name, argument text is appended, never replaced.
func (a *Accumulator) OnDelta(id, nameFragment, argsFragment string) {
	call, ok := a.calls[id]
	if !ok {
		call = &accumulatingCall{id: id}
		a.calls[id] = call
		a.order = append(a.order, id)
	}
	if nameFragment != "" {
		call.name = nameFragment
	}
	call.args.WriteString(argsFragment)
}

// Has reports whether an in-flight accumulation exists for id.
func (a *Accumulator) Has(id string) bool {
	_, ok := a.calls[id]
	return ok
}

// Discard drops the accumulating entry for id, used when the same call
// arrives fully formed through a completion event.
func (a *Accumulator) Discard(id string) {
	if _, ok := a.calls[id]; !ok {
		return
	}
	delete(a.calls, id)
	for i, other := range a.order {
		if other == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Finalize parses the buffered argument text and removes the entry,
// returning a pending ToolCall. A buffer that is not valid JSON yields
// args wrapping the raw text instead of discarding the call.
func (a *Accumulator) Finalize(id string) (*ToolCall, bool) {
	call, ok := a.calls[id]
	if !ok {
		return nil, false
	}
	a.Discard(id)

	return &ToolCall{
		ID:        call.id,
		Name:      call.name,
		Args:      parseArgsBuffer(call.args.String()),
		Status:    StatusPending,
		Source:    SourceDeltaStream,
		Timestamp: time.Now().UTC(),
	}, true
}

// FinalizeAll drains every remaining entry in arrival order. Called when a
// stream reaches its terminal event so partially streamed calls are never
// silently lost.
func (a *Accumulator) FinalizeAll() []*ToolCall {
	ids := append([]string(nil), a.order...)
	finalized := make([]*ToolCall, 0, len(ids))
	for _, id := range ids {
		if call, ok := a.Finalize(id); ok {
			finalized = append(finalized, call)
		}
	}
	return finalized
}

// parseArgsBuffer parses accumulated argument text. Empty buffers yield an
// empty object; malformed ones are preserved under raw_arguments.
func parseArgsBuffer(buf string) map[string]any {
	if strings.TrimSpace(buf) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(buf), &args); err != nil || args == nil {
		return map[string]any{"raw_arguments": buf}
	}
	return args
}
