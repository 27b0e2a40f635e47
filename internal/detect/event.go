package detect

import "encoding/json"

// Envelope is one line of `claude -p --output-format stream-json` output.
// Only the fields the detector inspects are decoded.
type Envelope struct {
	Type    string            `json:"type"`
	Event   *StreamEvent      `json:"event,omitempty"`
	Message *AssistantMessage `json:"message,omitempty"`
}

// StreamEvent is the partial-message event nested in a stream_event line.
type StreamEvent struct {
	Type         string        `json:"type"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *Delta        `json:"delta,omitempty"`
}

type ContentBlock struct {
	Type  string          `json:"type"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type Delta struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// AssistantMessage is the complete message carried by an assistant line.
type AssistantMessage struct {
	Content []ContentBlock `json:"content"`
}

// Envelope types.
const (
	TypeStreamEvent = "stream_event"
	TypeAssistant   = "assistant"
	TypeResult      = "result"
)

// Stream event types.
const (
	EventBlockStart  = "content_block_start"
	EventBlockDelta  = "content_block_delta"
	EventBlockStop   = "content_block_stop"
	EventMessageStop = "message_stop"
)

const (
	blockToolUse   = "tool_use"
	deltaInputJSON = "input_json_delta"
)

// Tools that can reference the skill under test, and the input field each
// one names it in.
const (
	ToolSkill = "Skill"
	ToolRead  = "Read"
)

var candidateInputField = map[string]string{
	ToolSkill: "skill",
	ToolRead:  "file_path",
}

func isCandidateTool(name string) bool {
	_, ok := candidateInputField[name]
	return ok
}

// inputMentions reports whether the candidate tool's input field contains
// marker. Inputs that do not decode are treated as not mentioning it.
func inputMentions(block ContentBlock, marker string) bool {
	field, ok := candidateInputField[block.Name]
	if !ok || len(block.Input) == 0 {
		return false
	}
	var input map[string]any
	if err := json.Unmarshal(block.Input, &input); err != nil {
		return false
	}
	s, _ := input[field].(string)
	return s != "" && containsMarker(s, marker)
}
