package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// LogEmitter writes events to an io.Writer, either as key=value text lines
// or as JSONL. Safe for concurrent use: writes are serialized so events
// from concurrent phase handlers don't interleave mid-line.
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter writes to writer (os.Stdout if nil) in text mode, or JSONL
// when jsonMode is true.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

// emitJSON writes event as a single JSONL line. Caller holds l.mu.
func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		WorkflowID string                 `json:"workflowID"`
		Step       int                    `json:"step"`
		PhaseID    string                 `json:"phaseID"`
		Msg        string                 `json:"msg"`
		Meta       map[string]interface{} `json:"meta"`
	}{
		WorkflowID: event.WorkflowID,
		Step:       event.Step,
		PhaseID:    event.PhaseID,
		Msg:        event.Msg,
		Meta:       event.Meta,
	})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

// emitText writes "[msg] workflowID=... step=N phaseID=... [level=error] [meta=...]".
// Caller holds l.mu.
func (l *LogEmitter) emitText(event Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] workflowID=%s step=%d phaseID=%s",
		event.Msg, event.WorkflowID, event.Step, event.PhaseID)

	if isFailureEvent(event) {
		_, _ = fmt.Fprint(l.writer, " level=error")
	}

	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			_, _ = fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	_, _ = fmt.Fprint(l.writer, "\n")
}

// isFailureEvent reports whether event represents a failure worth flagging
// at a glance in a text log stream.
func isFailureEvent(event Event) bool {
	if strings.HasSuffix(event.Msg, "_failed") {
		return true
	}
	_, hasErr := event.Meta["error"]
	return hasErr
}

// EmitBatch writes events in order, under a single lock acquisition.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, event := range events {
		if l.jsonMode {
			l.emitJSON(event)
		} else {
			l.emitText(event)
		}
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously and holds no buffer of
// its own. Wrap writer in a bufio.Writer and flush that directly if needed.
func (l *LogEmitter) Flush(_ context.Context) error {
	return nil
}

var _ Emitter = (*LogEmitter)(nil)
