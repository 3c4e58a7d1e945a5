package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Decoding errors. Both are recoverable: the offending frame is dropped
// and the stream continues.
var (
	// ErrFrameParse is returned when a frame payload is not valid JSON.
	ErrFrameParse = errors.New("frame parse error")
	// ErrUnknownEvent is returned for a recognized frame whose
	// discriminant matches no known event kind.
	ErrUnknownEvent = errors.New("unknown event")
)

// Decode maps a raw frame payload to one event of the closed union. It
// accepts the tagged-object form (an `event` discriminant field) and the
// legacy two-element tuple form `[type, data]`, normalizing both to the
// same event types.
func Decode(data []byte) (Event, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return decodeTuple(data)
	}

	var probe struct {
		Event Kind `json:"event"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameParse, err)
	}
	return decodePayload(probe.Event, data)
}

// decodeTuple handles the older protocol variant where events arrive as a
// two-element array of [type, data]. Tuple type strings may omit the
// "response." prefix.
func decodeTuple(data []byte) (Event, error) {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameParse, err)
	}
	if len(tuple) != 2 {
		return nil, fmt.Errorf("%w: tuple of %d elements", ErrUnknownEvent, len(tuple))
	}

	var tag string
	if err := json.Unmarshal(tuple[0], &tag); err != nil {
		return nil, fmt.Errorf("%w: tuple tag: %v", ErrFrameParse, err)
	}
	if !strings.HasPrefix(tag, "response.") {
		tag = "response." + tag
	}
	return decodePayload(Kind(tag), tuple[1])
}

func decodePayload(kind Kind, data []byte) (Event, error) {
	var ev Event
	switch kind {
	case KindCreated:
		ev = &Created{}
	case KindStageUpdate:
		ev = &StageUpdate{}
	case KindTextDelta:
		ev = &TextDelta{}
	case KindToolCallDelta:
		ev = &ToolCallDelta{}
	case KindToolCallComplete:
		ev = &ToolCallComplete{}
	case KindInterrupt:
		ev = &Interrupt{}
	case KindToolResult:
		ev = &ToolResult{}
	case KindCompleted:
		return &Completed{}, nil
	case KindError:
		ev = &ErrorEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, string(kind))
	}

	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFrameParse, kind, err)
	}
	return ev, nil
}
