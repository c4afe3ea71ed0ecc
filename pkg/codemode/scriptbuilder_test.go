package codemode

import (
	"go/parser"
	"go/token"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunContext() *RunContext {
	return &RunContext{
		APIBaseURL: "https://api.example.com/v10",
		Token:      "bot-token-123",
		GuildID:    "guild-1",
		ChannelID:  "chan-1",
		MessageID:  "msg-1",
		AuthorID:   "user-1",
	}
}

func TestBuildScriptProducesParsableProgram(t *testing.T) {
	// The snippet leans on every package the runtime pre-imports.
	snippet := "names := []string{}\n" +
		"members, err := bot.Members(100)\n" +
		"if err != nil {\n" +
		"\terrorf(\"members: %v\", err)\n" +
		"\treturn\n" +
		"}\n" +
		"for _, m := range members {\n" +
		"\tnames = append(names, strings.ToUpper(m.User.Username))\n" +
		"}\n" +
		"sort.Strings(names)\n" +
		"logf(\"%s: %s members at %s\", strconv.Itoa(len(names)), fmt.Sprint(names), time.Now().Format(time.RFC3339))"

	program, err := BuildScript(snippet, testRunContext())
	require.NoError(t, err)

	fset := token.NewFileSet()
	_, perr := parser.ParseFile(fset, "main.go", program, 0)
	require.NoError(t, perr)

	assert.Contains(t, program, "package main")
	assert.Contains(t, program, resultMarker)
	assert.Contains(t, program, "func run(bot *Bot) {")
	assert.Contains(t, program, snippet)
}

func TestBuildScriptQuotesCredentials(t *testing.T) {
	runCtx := testRunContext()
	runCtx.Token = "tok\"en\nwith\\weird chars"

	program, err := BuildScript("logf(\"ok\")", runCtx)
	require.NoError(t, err)

	fset := token.NewFileSet()
	_, perr := parser.ParseFile(fset, "main.go", program, 0)
	require.NoError(t, perr)
	assert.Contains(t, program, strconv.Quote(runCtx.Token))
}

func TestBuildScriptLeavesTemplateSyntaxInSnippetAlone(t *testing.T) {
	// Template actions inside the snippet are data, not directives.
	program, err := BuildScript("x := \"{{.Token}}\"\nlogf(x)", testRunContext())
	require.NoError(t, err)
	assert.Contains(t, program, "{{.Token}}")
}

func TestBuildScriptRequiresEndpointAndToken(t *testing.T) {
	runCtx := testRunContext()
	runCtx.APIBaseURL = ""
	_, err := BuildScript("logf(\"x\")", runCtx)
	require.Error(t, err)

	runCtx = testRunContext()
	runCtx.Token = ""
	_, err = BuildScript("logf(\"x\")", runCtx)
	require.Error(t, err)
}
