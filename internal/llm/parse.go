package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Models often wrap structured output in a fenced code block even when asked
// not to.
var fencePattern = regexp.MustCompile("^```(?:json)?\\s*\\n([\\s\\S]+?)```\\s*$")

// UnwrapFence strips a surrounding fenced code block and returns the inner
// text; input without a fence is returned trimmed.
func UnwrapFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// DecodeJSON unwraps an optional code fence and unmarshals the remaining
// text into v.
func DecodeJSON(s string, v any) error {
	if err := json.Unmarshal([]byte(UnwrapFence(s)), v); err != nil {
		return fmt.Errorf("decoding completion output: %w", err)
	}
	return nil
}
