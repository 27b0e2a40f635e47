// Package detect decides, from an agent's stream-json output, whether the
// agent selected the skill under test.
package detect

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// State is the detector's position in the event stream.
type State int

const (
	StateWaiting   State = iota // no candidate tool block open
	StateStreaming              // accumulating a Skill/Read tool input
	StateDecided                // outcome fixed, further lines ignored
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateStreaming:
		return "STREAMING_CANDIDATE"
	case StateDecided:
		return "DECIDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Options tune the decision policy.
type Options struct {
	// Lenient keeps watching after the agent uses an unrelated tool or ends
	// a message without a candidate. By default either one decides false,
	// which undercounts agents that look around before picking a skill.
	Lenient bool
}

// Detector is a single-invocation state machine. It is not safe for
// concurrent use; each Query Runner owns one.
type Detector struct {
	marker string
	opts   Options

	state       State
	pendingTool string
	accumulated strings.Builder
	triggered   bool
}

// New returns a detector that looks for marker, the invocation's unique
// command name, in candidate tool inputs.
func New(marker string, opts Options) *Detector {
	return &Detector{marker: marker, opts: opts}
}

func (d *Detector) State() State {
	return d.state
}

func (d *Detector) Decided() bool {
	return d.state == StateDecided
}

// Triggered is the outcome. It is only meaningful once Decided is true.
func (d *Detector) Triggered() bool {
	return d.triggered
}

// Feed consumes one line of output and reports whether the outcome is now
// decided. Blank and malformed lines carry no information.
func (d *Detector) Feed(line []byte) bool {
	if d.state == StateDecided {
		return true
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return false
	}

	switch env.Type {
	case TypeStreamEvent:
		if env.Event != nil {
			d.onStreamEvent(env.Event)
		}
	case TypeAssistant:
		if env.Message != nil {
			d.onAssistant(env.Message)
		}
	case TypeResult:
		d.decide(d.triggered)
	}
	return d.state == StateDecided
}

// Finish decides false if the stream ended without a decision.
func (d *Detector) Finish() bool {
	if d.state != StateDecided {
		d.decide(false)
	}
	return d.triggered
}

func (d *Detector) onStreamEvent(ev *StreamEvent) {
	switch ev.Type {
	case EventBlockStart:
		if ev.ContentBlock == nil || ev.ContentBlock.Type != blockToolUse {
			return
		}
		name := ev.ContentBlock.Name
		if isCandidateTool(name) {
			d.pendingTool = name
			d.accumulated.Reset()
			d.state = StateStreaming
			return
		}
		if !d.opts.Lenient {
			d.decide(false)
		}

	case EventBlockDelta:
		if d.state != StateStreaming || ev.Delta == nil || ev.Delta.Type != deltaInputJSON {
			return
		}
		d.accumulated.WriteString(ev.Delta.PartialJSON)
		if containsMarker(d.accumulated.String(), d.marker) {
			d.decide(true)
		}

	case EventBlockStop, EventMessageStop:
		if d.state == StateStreaming {
			matched := containsMarker(d.accumulated.String(), d.marker)
			if matched || !d.opts.Lenient {
				d.decide(matched)
				return
			}
			d.pendingTool = ""
			d.state = StateWaiting
			return
		}
		if ev.Type == EventMessageStop && !d.opts.Lenient {
			d.decide(false)
		}
	}
}

// onAssistant handles streams that deliver whole messages instead of
// partial events. The first tool_use entry decides.
func (d *Detector) onAssistant(msg *AssistantMessage) {
	for _, block := range msg.Content {
		if block.Type != blockToolUse {
			continue
		}
		if inputMentions(block, d.marker) {
			d.decide(true)
			return
		}
		if !d.opts.Lenient {
			d.decide(false)
			return
		}
	}
}

func (d *Detector) decide(triggered bool) {
	d.triggered = triggered
	d.state = StateDecided
}

func containsMarker(s, marker string) bool {
	return marker != "" && strings.Contains(s, marker)
}

// Detect reads r line by line until the detector decides or r is
// exhausted. A read error other than EOF is returned alongside a false
// outcome.
func Detect(r io.Reader, marker string, opts Options) (bool, error) {
	d := New(marker, opts)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 && d.Feed(line) {
			return d.Triggered(), nil
		}
		if err == io.EOF {
			return d.Finish(), nil
		}
		if err != nil {
			return false, fmt.Errorf("reading agent output: %w", err)
		}
	}
}
