package chat

import (
	"strings"
)

// Section markers of the instruction template
const (
	InstructionMarker = "### Instruction:"
	InputMarker       = "### Input:"
	ResponseMarker    = "### Response:"
)

// stopMarkers cut an extracted response short, applied in this order
var stopMarkers = []string{"###", "Instruction:", "Input:"}

// Render formats an instruction record as a single training string:
//
//	### Instruction:
//	{instruction}
//	### Input:
//	{input}
//	### Response:
//	{output}
func Render(instruction, input, output string) string {
	var sb strings.Builder
	sb.Grow(len(instruction) + len(input) + len(output) + 48)
	sb.WriteString(InstructionMarker)
	sb.WriteByte('\n')
	sb.WriteString(instruction)
	sb.WriteByte('\n')
	sb.WriteString(InputMarker)
	sb.WriteByte('\n')
	sb.WriteString(input)
	sb.WriteByte('\n')
	sb.WriteString(ResponseMarker)
	sb.WriteByte('\n')
	sb.WriteString(output)
	return sb.String()
}

// ExtractResponse returns the reply contained in a decoded generation.
// When the response marker is present the text after its last occurrence
// is kept and cut at the first stop marker. Otherwise text is returned
// unchanged.
func ExtractResponse(text string) string {
	idx := strings.LastIndex(text, ResponseMarker)
	if idx < 0 {
		return text
	}

	resp := strings.TrimSpace(text[idx+len(ResponseMarker):])
	for _, marker := range stopMarkers {
		if i := strings.Index(resp, marker); i >= 0 {
			resp = strings.TrimSpace(resp[:i])
		}
	}
	return resp
}
