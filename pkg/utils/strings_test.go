package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fence",
			input:    "log(\"hello\")",
			expected: "log(\"hello\")",
		},
		{
			name:     "go fence",
			input:    "```go\nlog(\"hello\")\n```",
			expected: "log(\"hello\")",
		},
		{
			name:     "bare fence",
			input:    "```\nx := 1\n```",
			expected: "x := 1",
		},
		{
			name:     "surrounding whitespace",
			input:    "\n\n```go\nx := 1\n```\n\n",
			expected: "x := 1",
		},
		{
			name:     "missing closing fence",
			input:    "```go\nx := 1",
			expected: "x := 1",
		},
		{
			name:     "fence only",
			input:    "```",
			expected: "",
		},
		{
			name:     "inner backticks preserved",
			input:    "```go\ns := `raw`\n```",
			expected: "s := `raw`",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripCodeFences(tt.input))
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abc"+TruncationSuffix, TruncateString("abcdef", 3))
	assert.Equal(t, "whole", TruncateString("whole", 0))
}

func TestPrefixLines(t *testing.T) {
	lines := []string{"one", "two", "three", "four"}

	got := PrefixLines(lines, 2, 100)
	assert.Equal(t, []string{"one", "two"}, got)

	// Original slice untouched.
	assert.Len(t, lines, 4)

	capped := PrefixLines([]string{"abcdefgh"}, 5, 4)
	assert.Equal(t, []string{"abcd" + TruncationSuffix}, capped)

	assert.Empty(t, PrefixLines(nil, 3, 10))
}

func TestTokenCounter(t *testing.T) {
	tc, err := NewTokenCounter("claude-sonnet-4-20250514")
	assert.NoError(t, err)

	count := tc.CountTokens("hello world, this is a token counting test")
	assert.Greater(t, count, 0)
	assert.Less(t, count, 50)

	assert.True(t, tc.ValidateTokenLimit("short", 100))
	assert.False(t, tc.ValidateTokenLimit("some much longer text that repeats itself over and over and over again to exceed tiny limits", 3))
}

func TestTruncateToTokenLimit(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4")
	assert.NoError(t, err)

	short := "already fits"
	assert.Equal(t, short, tc.TruncateToTokenLimit(short, 1000))

	long := ""
	for i := 0; i < 500; i++ {
		long += "lengthy repeated segment "
	}
	truncated := tc.TruncateToTokenLimit(long, 50)
	assert.Less(t, len(truncated), len(long))
	assert.True(t, len(truncated) > 0)
}

func TestGetMapField(t *testing.T) {
	m := map[string]any{"name": "general", "limit": 5}

	name, err := GetMapField[string](m, "name")
	assert.NoError(t, err)
	assert.Equal(t, "general", name)

	_, err = GetMapField[string](m, "missing")
	assert.Error(t, err)

	_, err = GetMapField[string](m, "limit")
	assert.Error(t, err)

	assert.Equal(t, 10, GetMapFieldOr(m, "missing", 10))
	assert.Equal(t, 5, GetMapFieldOr(m, "limit", 10))
}
