package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/g-pavlov/nalai-sub000/pkg/api"
)

// UnknownToolCallID marks an interrupt whose target call could not be
// resolved to any known identifier.
const UnknownToolCallID = "unknown"

// Decision errors. All are local validation failures: nothing reaches the
// transport until the decision is well formed.
var (
	// ErrNoActiveInterrupt is returned when no review is pending.
	ErrNoActiveInterrupt = errors.New("no active interrupt")
	// ErrInvalidDecisionArgs is returned when an edit decision's
	// arguments are not a JSON object.
	ErrInvalidDecisionArgs = errors.New("invalid decision arguments")
	// ErrDecisionNotAllowed is returned when the interrupt config does
	// not permit the chosen decision.
	ErrDecisionNotAllowed = errors.New("decision not allowed by interrupt config")
)

// InterruptRequest is one pending human-review request captured from an
// interrupt event. It is owned by the session and discarded once the
// decision's resume stream reaches a terminal event.
type InterruptRequest struct {
	ToolCallID  string
	Action      string
	Args        map[string]any
	Config      api.InterruptConfig
	Description string
}

// Decision is a user's response to an active interrupt. ArgsJSON carries
// the raw edited-arguments text for edit decisions; Message carries
// optional free text for reject decisions, promoting them to feedback.
type Decision struct {
	Kind     string
	ArgsJSON string
	Message  string
}

// ArgsValidator validates the raw argument text of an edit decision
// before anything is sent to the server.
type ArgsValidator interface {
	Validate(raw string) (map[string]any, error)
}

// JSONArgsValidator accepts exactly one JSON object.
type JSONArgsValidator struct{}

// Validate parses raw as a JSON object.
func (JSONArgsValidator) Validate(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDecisionArgs, err)
	}
	if args == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidDecisionArgs)
	}
	return args, nil
}

// BuildDecision validates a decision against the active interrupt and
// packages it as the resume request's input item. Validation failures
// never reach the transport.
func (s *Session) BuildDecision(d Decision) (api.InputItem, error) {
	if s.interrupt == nil {
		return api.InputItem{}, ErrNoActiveInterrupt
	}

	item := api.InputItem{
		Type:       api.InputTypeToolDecision,
		ToolCallID: s.interrupt.ToolCallID,
		Decision:   d.Kind,
	}

	switch d.Kind {
	case api.DecisionAccept:
		if !s.interrupt.Config.AllowAccept {
			return api.InputItem{}, fmt.Errorf("%w: accept", ErrDecisionNotAllowed)
		}

	case api.DecisionEdit:
		if !s.interrupt.Config.AllowEdit {
			return api.InputItem{}, fmt.Errorf("%w: edit", ErrDecisionNotAllowed)
		}
		args, err := s.validator.Validate(d.ArgsJSON)
		if err != nil {
			return api.InputItem{}, err
		}
		item.Args = args

	case api.DecisionReject:
		// A rejection carrying free text becomes feedback.
		if d.Message != "" {
			if !s.interrupt.Config.AllowRespond {
				return api.InputItem{}, fmt.Errorf("%w: feedback", ErrDecisionNotAllowed)
			}
			item.Decision = api.DecisionFeedback
			item.Message = d.Message
		}

	case api.DecisionFeedback:
		if !s.interrupt.Config.AllowRespond {
			return api.InputItem{}, fmt.Errorf("%w: feedback", ErrDecisionNotAllowed)
		}
		item.Message = d.Message

	default:
		return api.InputItem{}, fmt.Errorf("unknown decision %q", d.Kind)
	}

	return item, nil
}

// RegisterDecision applies a submitted decision's local effects to the
// authoritative call set: an edit replaces the call's arguments, an
// accept confirms it, a rejection or feedback declines it. Called once
// the resume request has been accepted by the transport.
func (s *Session) RegisterDecision(item api.InputItem) {
	if item.ToolCallID == "" || item.ToolCallID == UnknownToolCallID {
		return
	}
	switch item.Decision {
	case api.DecisionEdit:
		s.rec.ApplyEdit(item.ToolCallID, item.Args)
	case api.DecisionAccept:
		s.rec.Confirm(item.ToolCallID)
	case api.DecisionReject, api.DecisionFeedback:
		s.rec.Reject(item.ToolCallID)
	}
}

// BeginResume re-enters progress display while the resume stream opens.
// The interrupt stays active until the resume stream reaches a terminal
// event or the resume request fails.
func (s *Session) BeginResume() {
	if s.state == StateInterrupt {
		s.state = StateProgress
	}
}

// ClearInterrupt discards the active interrupt, used on terminal events
// and on resume transport failure.
func (s *Session) ClearInterrupt() {
	s.interrupt = nil
}

// captureInterrupt stores the review request from an interrupt event,
// resolving its target call by explicit id, unique action-name match, or
// the earliest still-pending call, in that order. With several pending
// calls and no correlating id the attribution is inherently ambiguous.
func (s *Session) captureInterrupt(detail api.InterruptDetail) {
	id := detail.ToolCallID
	action := detail.ActionRequest.Action

	if id == "" {
		if match := s.rec.uniqueCallNamed(action); match != nil {
			id = match.ID
		}
	}
	if id == "" {
		if earliest := s.rec.earliestPending(); earliest != nil {
			id = earliest.ID
		}
	}
	if id == "" {
		id = UnknownToolCallID
	}

	s.interrupt = &InterruptRequest{
		ToolCallID:  id,
		Action:      action,
		Args:        detail.ActionRequest.Args,
		Config:      detail.Config,
		Description: detail.Description,
	}

	if id != UnknownToolCallID {
		s.rec.Upsert(&ToolCall{
			ID:        id,
			Name:      action,
			Args:      detail.ActionRequest.Args,
			Status:    StatusPending,
			Source:    SourceInterrupt,
			Timestamp: time.Now().UTC(),
		})
	}
}
