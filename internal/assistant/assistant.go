// Package assistant answers learner questions about the current course
// through a chat completion service. It never fails: any upstream problem
// turns into a fixed apology.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/terra-clan/course-engine/internal/models"
)

// Apology is the reply used whenever the completion service cannot answer
const Apology = "Entschuldigung, ich konnte deine Frage gerade nicht verarbeiten. Bitte versuche es später noch einmal."

// Unavailable is the reply when no completion service is configured
const Unavailable = "Der KI-Assistent ist momentan nicht verfügbar. Bitte versuchen Sie es später erneut."

// Context is what the learner is looking at
type Context struct {
	Course *models.Course
	Lesson *models.Lesson
}

// Options tune the replies
type Options struct {
	Temperature float64
	MaxTokens   int
	MaxHistory  int
}

// Assistant builds prompts and degrades failures
type Assistant struct {
	completer Completer
	opts      Options
}

// New creates an assistant. A nil completer answers with Unavailable.
func New(completer Completer, opts Options) *Assistant {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 20
	}
	return &Assistant{completer: completer, opts: opts}
}

// Enabled reports whether a completion service is configured
func (a *Assistant) Enabled() bool {
	return a.completer != nil
}

// Reply answers message given the prior conversation
func (a *Assistant) Reply(ctx context.Context, cc Context, history []Message, message string) string {
	if a.completer == nil {
		return Unavailable
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: systemPrompt(cc)})
	messages = append(messages, TrimHistory(history, a.opts.MaxHistory)...)
	messages = append(messages, Message{Role: "user", Content: message})

	reply, err := a.completer.Complete(ctx, Request{
		Messages:    messages,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	})
	if err != nil {
		slog.Error("assistant completion failed", "error", err)
		return Apology
	}
	if strings.TrimSpace(reply) == "" {
		slog.Warn("assistant returned an empty reply")
		return Apology
	}
	return reply
}

// TrimHistory keeps the last max messages
func TrimHistory(history []Message, max int) []Message {
	if max <= 0 || len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}

func systemPrompt(cc Context) string {
	var b strings.Builder
	if cc.Course != nil {
		fmt.Fprintf(&b, "Du bist ein hilfreicher Lernassistent für den Kurs %q.\n", cc.Course.Title)
		if cc.Course.Description != "" {
			fmt.Fprintf(&b, "Kursbeschreibung: %s\n", cc.Course.Description)
		}
	} else {
		b.WriteString("Du bist ein hilfreicher Lernassistent.\n")
	}
	if cc.Lesson != nil {
		fmt.Fprintf(&b, "Aktuelle Lektion: %q\n", cc.Lesson.Title)
	}
	b.WriteString(`
Deine Aufgaben:
1. Beantworte Fragen zum Kursinhalt präzise und verständlich
2. Gib konstruktives Feedback zu Antworten der Lernenden
3. Erkläre komplexe Konzepte mit einfachen Worten
4. Motiviere die Lernenden und unterstütze ihren Lernfortschritt

Antworte immer auf Deutsch und in einem freundlichen, ermutigenden Ton.`)
	return b.String()
}
