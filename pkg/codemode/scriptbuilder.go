package codemode

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"text/template"
)

//go:embed script.go.tpl
var scriptTemplateText string

//nolint:gochecknoglobals // Parsed once; template text is embedded at build time
var scriptTemplate = template.Must(template.New("script").Parse(scriptTemplateText))

// resultMarker prefixes the one JSON result line the generated program prints
// on stdout. Everything else on stdout is noise; the executor takes the last
// marker line.
const resultMarker = "__GUILDBOT_RESULT__ "

// RunContext is the identity the generated program resolves at startup.
type RunContext struct {
	APIBaseURL string
	Token      string
	GuildID    string
	ChannelID  string
	MessageID  string
	AuthorID   string
}

// scriptData feeds the template. String fields are pre-quoted Go literals so
// no value can escape its const declaration.
type scriptData struct {
	APIBaseURL   string
	Token        string
	GuildID      string
	ChannelID    string
	MessageID    string
	AuthorID     string
	ResultMarker string
	Snippet      string
}

// BuildScript renders the snippet into a self-contained single-file program.
// Pure text transformation: no network, no execution, no filesystem.
func BuildScript(snippet string, runCtx *RunContext) (string, error) {
	if runCtx.APIBaseURL == "" || runCtx.Token == "" {
		return "", fmt.Errorf("script run context missing API base URL or token")
	}

	data := scriptData{
		APIBaseURL:   strconv.Quote(runCtx.APIBaseURL),
		Token:        strconv.Quote(runCtx.Token),
		GuildID:      strconv.Quote(runCtx.GuildID),
		ChannelID:    strconv.Quote(runCtx.ChannelID),
		MessageID:    strconv.Quote(runCtx.MessageID),
		AuthorID:     strconv.Quote(runCtx.AuthorID),
		ResultMarker: strconv.Quote(resultMarker),
		Snippet:      snippet,
	}

	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render script template: %w", err)
	}
	return buf.String(), nil
}
