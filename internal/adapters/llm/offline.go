package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/target/marketpulse/internal/core"
)

// Offline is a deterministic ModelClient. It echoes a digest of the prompt so
// pipelines can run without network access.
type Offline struct{}

var _ core.ModelClient = Offline{}

// Complete returns a canned answer derived from the last user message.
func (Offline) Complete(ctx context.Context, messages []core.ChatMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return offlineAnswer(messages), nil
}

// Stream yields the Complete text one word at a time.
func (o Offline) Stream(ctx context.Context, messages []core.ChatMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, err := o.Complete(ctx, messages)
		if err != nil {
			yield("", err)
			return
		}
		for _, frag := range Fragments(text) {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
	}
}

// Fragments splits text into word fragments that keep their trailing whitespace,
// so concatenating them restores text exactly.
func Fragments(text string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !space {
			out = append(out, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func offlineAnswer(messages []core.ChatMessage) string {
	var last string
	for _, m := range messages {
		if m.Role == "user" {
			last = m.Content
		}
	}
	lines := strings.Count(last, "\n") + 1
	first, _, _ := strings.Cut(strings.TrimSpace(last), "\n")
	if len(first) > 120 {
		first = first[:120]
	}
	return fmt.Sprintf("Offline summary (%d lines of context). %s", lines, first)
}
