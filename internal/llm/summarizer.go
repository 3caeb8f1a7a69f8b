// Package llm provides LLM-based abstract summarization for studyletter.
//
// This package defines the abstraction and prompt engineering required to
// summarize academic paper abstracts into Korean bullet points using large
// language models. The summaries are embedded into the digest emails sent
// to subscribers.
//
// Example usage:
//
//	summarizer, err := llm.NewSummarizer(llm.FactoryConfig{
//		Provider: "gemini",
//		Gemini:   llm.GeminiConfig{APIKey: key, Model: "gemini-2.0-flash"},
//	})
//	summary, err := summarizer.Summarize(ctx, abstract)
package llm

import (
	"context"
	"fmt"
)

// Summarizer defines the interface for LLM-based abstract summarization.
//
// Implementations should handle provider-specific API calls, response parsing,
// and error handling while conforming to this unified interface.
type Summarizer interface {
	// Summarize condenses the given paper abstract into exactly three Korean
	// bullet points. The context should be used for cancellation and deadline
	// propagation.
	Summarize(ctx context.Context, abstract string) (string, error)

	// Provider returns the name of the LLM provider (e.g., "gemini").
	Provider() string

	// Model returns the model identifier being used (e.g., "gemini-2.0-flash").
	Model() string
}

// BuildSummaryPrompt builds the summarization prompt for the given abstract.
// The prompt asks for exactly three Korean bullet points in a professional
// but approachable tone, keeping technical terms in English where a Korean
// translation would be awkward.
func BuildSummaryPrompt(abstract string) string {
	return fmt.Sprintf(`You are a helpful research assistant.
Summarize the given academic paper abstract into Korean.

Requirements:
- Summarize in exactly 3 bullet points
- Maintain technical terms in English if the Korean translation is awkward
- Use professional yet easy-to-read tone (해요체)
- Each bullet point should be concise but informative

Abstract:
%s

Provide only the 3 bullet points in Korean, starting each with "• ":
`, abstract)
}
