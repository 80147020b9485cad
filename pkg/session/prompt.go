package session

import "bytes"

// HasPrompt reports whether data ends at a device prompt: the final line
// (after the last newline, CR stripped, trailing blanks trimmed) ends with
// '>' (operational mode) or '#' (configuration mode).
//
// This is a heuristic. Command output that happens to end a line with '>'
// and then stalls will be taken as a prompt.
func HasPrompt(data []byte) bool {
	last := data
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		last = data[i+1:]
	}
	last = bytes.ReplaceAll(last, []byte{'\r'}, nil)
	last = bytes.TrimRight(last, " \t")
	if len(last) == 0 {
		return false
	}
	switch last[len(last)-1] {
	case '>', '#':
		return true
	}
	return false
}

// PromptLine returns the trimmed final line when data ends at a prompt.
func PromptLine(data []byte) string {
	if !HasPrompt(data) {
		return ""
	}
	last := data
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		last = data[i+1:]
	}
	return string(bytes.TrimSpace(bytes.ReplaceAll(last, []byte{'\r'}, nil)))
}
