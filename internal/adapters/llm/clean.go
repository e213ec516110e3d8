package llm

import (
	"iter"
	"regexp"
	"strings"
)

var (
	thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// Clean strips reasoning blocks and collapses runs of blank lines.
func Clean(text string) string {
	text = thinkBlock.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// StripThinking removes <think>…</think> spans from a fragment stream. Tags may
// be split across fragments; text that could start a tag is held back until the
// next fragment decides it.
func StripThinking(seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var (
			pending  string
			thinking bool
		)
		for frag, err := range seq {
			if err != nil {
				yield("", err)
				return
			}
			pending += frag
			var out strings.Builder
			for {
				if thinking {
					i := strings.Index(pending, thinkClose)
					if i < 0 {
						pending = pending[len(pending)-partialSuffix(pending, thinkClose):]
						break
					}
					pending = pending[i+len(thinkClose):]
					thinking = false
					continue
				}
				i := strings.Index(pending, thinkOpen)
				if i < 0 {
					keep := partialSuffix(pending, thinkOpen)
					out.WriteString(pending[:len(pending)-keep])
					pending = pending[len(pending)-keep:]
					break
				}
				out.WriteString(pending[:i])
				pending = pending[i+len(thinkOpen):]
				thinking = true
			}
			if out.Len() > 0 && !yield(out.String(), nil) {
				return
			}
		}
		if !thinking && pending != "" {
			yield(pending, nil)
		}
	}
}

// partialSuffix returns the length of the longest suffix of s that is a proper prefix of tag.
func partialSuffix(s, tag string) int {
	for n := min(len(tag)-1, len(s)); n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
