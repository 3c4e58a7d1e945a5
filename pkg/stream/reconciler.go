package stream

import "time"

// Reconciler maintains the authoritative tool call set for one response.
// It merges calls arriving through multiple channels, matches asynchronous
// results back to the correct call, and never deletes a call once created.
type Reconciler struct {
	calls []*ToolCall
	byID  map[string]*ToolCall
}

// NewReconciler creates an empty Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{byID: make(map[string]*ToolCall)}
}

// Upsert merges call into the authoritative set and returns the surviving
// record. Identity is the call id when known, falling back to structural
// (name, args) equality. On merge, name and args are kept from the
// existing record unless empty; status, content and timestamp are taken
// from the incoming call.
func (r *Reconciler) Upsert(call *ToolCall) *ToolCall {
	if call.Timestamp.IsZero() {
		call.Timestamp = time.Now().UTC()
	}

	if call.ID != "" {
		if existing, ok := r.byID[call.ID]; ok {
			r.merge(existing, call)
			return existing
		}
	}

	for _, existing := range r.calls {
		// Distinct known ids are distinct calls regardless of shape.
		if existing.ID != "" && call.ID != "" && existing.ID != call.ID {
			continue
		}
		if sameCall(existing, call) {
			if existing.ID == "" && call.ID != "" {
				existing.ID = call.ID
				r.byID[call.ID] = existing
			}
			r.merge(existing, call)
			return existing
		}
	}

	inserted := *call
	r.calls = append(r.calls, &inserted)
	if inserted.ID != "" {
		r.byID[inserted.ID] = &inserted
	}
	return &inserted
}

// merge folds incoming into existing under the never-weaken rule.
func (r *Reconciler) merge(existing, incoming *ToolCall) {
	if existing.Name == "" && incoming.Name != "" {
		existing.Name = incoming.Name
	}
	if len(existing.Args) == 0 && len(incoming.Args) > 0 {
		existing.Args = incoming.Args
	}
	r.advanceStatus(existing, incoming.Status)
	if incoming.Content != "" {
		existing.Content = incoming.Content
	}
	existing.Timestamp = incoming.Timestamp
}

// advanceStatus applies a forward-only status transition.
func (r *Reconciler) advanceStatus(call *ToolCall, next Status) {
	if next == "" {
		return
	}
	if statusRank(next) > statusRank(call.Status) {
		call.Status = next
	}
}

// ResolveResult matches an asynchronous tool result to its call. Target
// lookup order: exact id among known calls, exact id among accumulating
// entries (triggering a fallback finalize), name match among unresolved
// calls, then the single remaining unresolved call as a last resort. An
// unmatched result is inserted as a new record rather than dropped. If the
// event carries args and the located call has none, they are adopted.
func (r *Reconciler) ResolveResult(acc *Accumulator, toolCallID, toolName, content string, status Status, argsFromEvent map[string]any) *ToolCall {
	call := r.locateResultTarget(acc, toolCallID, toolName)
	if call == nil {
		call = r.Upsert(&ToolCall{
			ID:     toolCallID,
			Name:   toolName,
			Args:   argsFromEvent,
			Status: StatusPending,
			Source: SourceDeltaStream,
		})
	}

	if call.Name == "" && toolName != "" {
		call.Name = toolName
	}
	if len(call.Args) == 0 && len(argsFromEvent) > 0 {
		call.Args = argsFromEvent
	}
	call.Content = content
	r.advanceStatus(call, status)
	call.Timestamp = time.Now().UTC()
	return call
}

func (r *Reconciler) locateResultTarget(acc *Accumulator, toolCallID, toolName string) *ToolCall {
	if toolCallID != "" {
		if call, ok := r.byID[toolCallID]; ok {
			return call
		}
		if acc != nil && acc.Has(toolCallID) {
			if finalized, ok := acc.Finalize(toolCallID); ok {
				return r.Upsert(finalized)
			}
		}
	}

	if toolName != "" {
		for _, call := range r.calls {
			if !resolved(call) && call.Name == toolName {
				return call
			}
		}
	}

	// Last resort: a single unresolved call with no better match. With
	// several concurrently pending calls and no correlating id the
	// attribution is ambiguous; see the package design notes.
	var only *ToolCall
	for _, call := range r.calls {
		if resolved(call) {
			continue
		}
		if only != nil {
			return nil
		}
		only = call
	}
	return only
}

// resolved reports whether a call already carries its final outcome.
func resolved(call *ToolCall) bool {
	return statusRank(call.Status) >= statusRank(StatusCompleted)
}

// ApplyEdit replaces a call's arguments following an explicit human edit
// decision, preserving id and name. The edited call is confirmed for
// execution.
func (r *Reconciler) ApplyEdit(toolCallID string, args map[string]any) *ToolCall {
	call, ok := r.byID[toolCallID]
	if !ok {
		return nil
	}
	call.Args = args
	r.advanceStatus(call, StatusConfirmed)
	call.Timestamp = time.Now().UTC()
	return call
}

// Confirm marks a call approved for execution.
func (r *Reconciler) Confirm(toolCallID string) {
	if call, ok := r.byID[toolCallID]; ok {
		r.advanceStatus(call, StatusConfirmed)
	}
}

// Reject marks a call declined by the reviewer.
func (r *Reconciler) Reject(toolCallID string) {
	if call, ok := r.byID[toolCallID]; ok {
		r.advanceStatus(call, StatusRejected)
	}
}

// uniqueCallNamed returns the call with the given name if exactly one
// exists, otherwise nil.
func (r *Reconciler) uniqueCallNamed(name string) *ToolCall {
	var match *ToolCall
	for _, call := range r.calls {
		if call.Name != name {
			continue
		}
		if match != nil {
			return nil
		}
		match = call
	}
	return match
}

// earliestPending returns the oldest call still awaiting an outcome.
func (r *Reconciler) earliestPending() *ToolCall {
	for _, call := range r.calls {
		if call.Status == StatusPending {
			return call
		}
	}
	return nil
}

// Calls returns the current call set in creation order.
func (r *Reconciler) Calls() []ToolCall {
	out := make([]ToolCall, len(r.calls))
	for i, call := range r.calls {
		out[i] = *call
	}
	return out
}

// Deduplicate returns the call set with duplicates collapsed, by id first
// and by (name, args) structural equality second, preserving first-seen
// order. Used before surfacing a final tool call summary so the same
// logical call reported through two channels counts once.
func (r *Reconciler) Deduplicate() []ToolCall {
	seenID := make(map[string]bool)
	// Tracks shapes already emitted and whether any occurrence lacked an
	// id. Two distinct known ids are distinct calls even with equal
	// shape; the structural key only collapses pairs where at least one
	// side has no id.
	shapeNoID := make(map[string]bool)
	shapeSeen := make(map[string]bool)
	out := make([]ToolCall, 0, len(r.calls))

	for _, call := range r.calls {
		if call.ID != "" && seenID[call.ID] {
			continue
		}
		shape := call.Name + "\x00" + canonicalArgs(call.Args)
		if shapeSeen[shape] && (call.ID == "" || shapeNoID[shape]) {
			continue
		}

		if call.ID != "" {
			seenID[call.ID] = true
		} else {
			shapeNoID[shape] = true
		}
		shapeSeen[shape] = true
		out = append(out, *call)
	}
	return out
}
