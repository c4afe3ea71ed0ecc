package utils

import "strings"

// TruncationSuffix marks text that was cut to fit a bound.
const TruncationSuffix = " [...truncated]"

// StripCodeFences removes a single wrapping markdown code fence, including an
// optional language tag, from model output. Text without a fence is returned
// unchanged apart from whitespace trimming.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	// Drop the opening fence line (``` or ```go etc.).
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	// Drop the closing fence if present.
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}

	return strings.TrimSpace(trimmed)
}

// TruncateString caps s at maxChars, appending TruncationSuffix when cut.
func TruncateString(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	return s[:maxChars] + TruncationSuffix
}

// PrefixLines returns at most maxLines entries, each capped at maxLineChars.
// Used to send a bounded prefix of captured output to the summarizer.
func PrefixLines(lines []string, maxLines, maxLineChars int) []string {
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = TruncateString(line, maxLineChars)
	}
	return out
}
