package synth

import "strings"

const (
	instructionOpen  = "<gmsh_instruction>"
	instructionClose = "</gmsh_instruction>"

	turnStart       = "<|im_start|>"
	turnEnd         = "<|im_end|>"
	assistantMarker = turnStart + "assistant\n"
)

// FormatPrompt wraps a user prompt in the instruction tags the model was tuned
// on and renders it as a single ChatML user turn followed by an open assistant turn.
func FormatPrompt(prompt string) string {
	var b strings.Builder
	b.WriteString(turnStart)
	b.WriteString("user\n")
	b.WriteString(instructionOpen)
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString(instructionClose)
	b.WriteString(turnEnd)
	b.WriteString("\n")
	b.WriteString(assistantMarker)
	return b.String()
}

// ExtractScript returns the assistant turn of raw model output: everything after
// the last assistant marker with end-of-turn markers and surrounding whitespace
// removed. Output without a marker is treated as the bare continuation.
func ExtractScript(raw string) (script string, hadMarker bool) {
	body := raw
	if i := strings.LastIndex(raw, assistantMarker); i >= 0 {
		body = raw[i+len(assistantMarker):]
		hadMarker = true
	}
	body = strings.ReplaceAll(body, turnEnd, "")
	return strings.TrimSpace(body), hadMarker
}
