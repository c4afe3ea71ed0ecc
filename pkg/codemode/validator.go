package codemode

import (
	"errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"
)

// validationHeader wraps the snippet the same way the script template does,
// so diagnostics translate 1:1 onto the user-visible code. It spans exactly
// validationHeaderLines lines.
const (
	validationHeader      = "package main\nfunc run(bot *Bot) {\n"
	validationHeaderLines = 2
)

// Diagnostic is one syntax error located in the snippet's own coordinates.
type Diagnostic struct {
	Message   string
	Line      int
	Character int
}

// ValidationResult reports snippet syntax validity. Diagnostics are ordered
// by position; zero diagnostics means valid.
type ValidationResult struct {
	Diagnostics []Diagnostic
	Valid       bool
}

// Validate parses the snippet wrapped in the run-hook header and returns
// every syntax error with its line shifted back into snippet coordinates.
// Syntax only: undefined names and type errors are the sandbox's problem.
func Validate(snippet string) ValidationResult {
	src := validationHeader + snippet + "\n}\n"

	fset := token.NewFileSet()
	_, err := parser.ParseFile(fset, "snippet.go", src, 0)
	if err == nil {
		return ValidationResult{Valid: true}
	}

	snippetLines := strings.Count(snippet, "\n") + 1

	var list scanner.ErrorList
	if !errors.As(err, &list) {
		// Parser failures outside the error list carry no position.
		return ValidationResult{
			Diagnostics: []Diagnostic{{Line: 1, Character: 1, Message: err.Error()}},
		}
	}

	diags := make([]Diagnostic, 0, len(list))
	for _, e := range list {
		line := e.Pos.Line - validationHeaderLines
		if line < 1 {
			line = 1
		}
		if line > snippetLines {
			// Errors at the synthesized closing brace (e.g. an unclosed
			// block) land on the snippet's last line.
			line = snippetLines
		}
		col := e.Pos.Column
		if col < 1 {
			col = 1
		}
		diags = append(diags, Diagnostic{Line: line, Character: col, Message: e.Msg})
	}

	return ValidationResult{Diagnostics: diags}
}

// FormatDiagnostics renders diagnostics in the user-facing one-per-line form.
func FormatDiagnostics(diags []Diagnostic) string {
	lines := make([]string, 0, len(diags))
	for _, d := range diags {
		lines = append(lines, fmt.Sprintf("Line %d:%d - %s", d.Line, d.Character, d.Message))
	}
	return strings.Join(lines, "\n")
}
