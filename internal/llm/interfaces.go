// Package llm provides the text-generation clients used for summaries and
// the defensive parser for their responses.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// All prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
