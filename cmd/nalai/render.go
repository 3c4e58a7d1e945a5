package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/g-pavlov/nalai-sub000/pkg/stream"
)

// renderer prints the streaming response to a terminal. Snapshots carry
// the full accumulated text; the renderer tracks what it already printed
// and emits only the newly arrived suffix.
type renderer struct {
	out     io.Writer
	printed string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

// OnTransition prints a heading when the display state changes.
func (r *renderer) OnTransition(_, to stream.DisplayState) {
	if label := to.Label(); label != "" {
		fmt.Fprintf(r.out, "\n[%s]\n", label)
	}
	r.printed = ""
}

// OnSnapshot streams newly accumulated text.
func (r *renderer) OnSnapshot(snap stream.Snapshot) {
	text := snap.AccumulatedText
	if strings.HasPrefix(text, r.printed) {
		fmt.Fprint(r.out, text[len(r.printed):])
	} else {
		// Text was reset by a stage change; start over.
		fmt.Fprint(r.out, text)
	}
	r.printed = text
}

// Finish prints the turn summary once a stream has ended.
func (r *renderer) Finish(snap stream.Snapshot) {
	fmt.Fprintln(r.out)

	for _, call := range snap.ToolCalls {
		fmt.Fprintf(r.out, "  tool %s (%s): %s\n", call.Name, call.ID, call.Status)
		if call.Content != "" {
			fmt.Fprintf(r.out, "    %s\n", truncate(call.Content, 200))
		}
	}

	switch {
	case snap.State == stream.StateError:
		fmt.Fprintf(r.out, "error: %s\n", snap.ErrorMessage)
	case snap.Incomplete:
		fmt.Fprintln(r.out, "(response incomplete, try again)")
	}
	r.printed = ""
}

// ShowInterrupt prints the pending review request.
func (r *renderer) ShowInterrupt(req *stream.InterruptRequest) {
	fmt.Fprintf(r.out, "\nThe agent wants to run %q", req.Action)
	if len(req.Args) > 0 {
		fmt.Fprintf(r.out, " with %v", req.Args)
	}
	fmt.Fprintln(r.out)
	if req.Description != "" {
		fmt.Fprintf(r.out, "  %s\n", req.Description)
	}

	var options []string
	if req.Config.AllowAccept {
		options = append(options, "[a]ccept")
	}
	if req.Config.AllowEdit {
		options = append(options, "[e]dit")
	}
	options = append(options, "[r]eject")
	if req.Config.AllowRespond {
		options = append(options, "[f]eedback")
	}
	fmt.Fprintf(r.out, "  %s: ", strings.Join(options, " / "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
