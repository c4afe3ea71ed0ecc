package codemode

import (
	"fmt"
	"strings"
)

// classifierSystemPrompt gates the pipeline: only actionable automation
// requests proceed to generation.
const classifierSystemPrompt = `You decide whether a chat message directed at a community bot is a request to PERFORM A TASK against the community server (something a short program could do: inspect or list channels, roles, members, or messages, post or react to messages, compute statistics about the server).

Answer YES only for actionable task requests. Answer NO for greetings, questions about the bot itself, opinions, jokes, general programming questions, or anything that is conversation rather than a task.

Reply with exactly one word: YES or NO.`

// classifierUserPrompt wraps the raw mention text for classification.
func classifierUserPrompt(text string) string {
	return fmt.Sprintf("Message:\n%s\n\nIs this a task request? Answer YES or NO.", text)
}

// generatorSystemPrompt documents the runtime the snippet executes in. The
// helper surface described here must match the script template exactly.
const generatorSystemPrompt = `You write Go code that performs a task against a community chat server. Your code becomes the body of this function in a prepared program:

    func run(bot *Bot) {
        // your code here
    }

Write ONLY the function body. No package clause, no imports, no function declaration. The standard library is imported for you (fmt, strings, strconv, sort, time).

## Runtime API

The bot value gives you the resolved context of the request:

    bot.Guild    *Guild    // ID, Name, MemberCount
    bot.Channel  *Channel  // ID, Name, Topic, ParentID — where the request was made
    bot.Message  *Message  // ID, ChannelID, Content, Author — the requesting message
    bot.Author   *User     // ID, Username — who asked

Methods (all return an error you should check):

    bot.SendMessage(channelID, content string) (*Message, error)  // post a message
    bot.Reply(content string) (*Message, error)                   // post in the requesting channel
    bot.Channels() ([]Channel, error)                             // all channels and categories
    bot.Roles() ([]Role, error)                                   // all roles
    bot.Members(limit int) ([]Member, error)                      // guild members, up to limit
    bot.Messages(channelID string, limit int) ([]Message, error)  // recent messages, newest first
    bot.React(channelID, messageID, emoji string) error           // add a reaction

Free helpers:

    logf(format string, args ...any)    // record a progress/result log line
    errorf(format string, args ...any)  // record an error line
    sleep(seconds float64)              // pause

Struct fields: Channel{ID, Name, Topic, ParentID, Type}, Role{ID, Name, Color, Position}, Member{User *User, Nick, Roles []string, JoinedAt}, Message{ID, ChannelID, Content, Author *User, Timestamp}, User{ID, Username, Bot}.

## Rules

- Log every meaningful outcome with logf; record failures with errorf. A run that produces no logs tells the requester nothing.
- Prefer reporting results with logf over posting messages; only call SendMessage or Reply when the task is explicitly about posting.
- Keep it short and sequential. No goroutines, no panics for control flow.
- Before writing code, use the inspection tools below to resolve names the request mentions (channels, roles, members) into IDs and to check your assumptions about the server.

%s
When you are done inspecting, reply with the final code in a single fenced Go code block and nothing else.`

// generatorSystemPromptText splices the per-request tool documentation into
// the system prompt.
func generatorSystemPromptText(toolDocs string) string {
	if toolDocs != "" && !strings.HasSuffix(toolDocs, "\n") {
		toolDocs += "\n"
	}
	return fmt.Sprintf(generatorSystemPrompt, toolDocs)
}

// generatorUserPrompt is the first-round task statement.
func generatorUserPrompt(body string) string {
	return fmt.Sprintf("Task request:\n%s", body)
}

// regenerationPrompt asks for a revised snippet. Feedback entries are listed
// oldest first so the model sees the revision history in order.
func regenerationPrompt(currentCode string, feedback []string) string {
	var b strings.Builder
	b.WriteString("The code you proposed was not approved. Revise it.\n\n")
	b.WriteString("Currently proposed code:\n```go\n")
	b.WriteString(currentCode)
	b.WriteString("\n```\n\nFeedback so far, oldest first:\n")
	for i, f := range feedback {
		fmt.Fprintf(&b, "%d. %s\n", i+1, f)
	}
	b.WriteString("\nAddress all feedback, most recent taking precedence. Reply with the full revised code in a single fenced Go code block.")
	return b.String()
}

// summarizerSystemPrompt produces the one-line outcome report.
const summarizerSystemPrompt = `You summarize the outcome of an automated task for the person who requested it. Write 1-2 plain sentences: what was done and the key result, drawn from the logs. If the run failed, say what went wrong. No greetings, no markdown headers, no code blocks.`

// summarizerUserPrompt assembles the bounded evidence for the summary call.
func summarizerUserPrompt(requestBody string, logs, errorLines []string, success bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request:\n%s\n\n", requestBody)
	outcome := "completed successfully"
	if !success {
		outcome = "did not complete successfully"
	}
	fmt.Fprintf(&b, "The task %s.\n\nLogs:\n", outcome)
	if len(logs) == 0 {
		b.WriteString("(none)\n")
	}
	for _, line := range logs {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(errorLines) > 0 {
		b.WriteString("\nErrors:\n")
		for _, line := range errorLines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nSummarize the outcome.")
	return b.String()
}
