// Package domain defines the core entities of the studyletter service:
// papers fetched from the search provider, their summaries, recurring
// delivery subscriptions, and the delivery history.
package domain

import (
	"regexp"
	"strings"
	"time"
)

// whitespaceRegex matches one or more whitespace characters (spaces, tabs, newlines).
var whitespaceRegex = regexp.MustCompile(`\s+`)

// Paper represents one search result from the paper index.
// Instances are transient: produced by the search provider, filtered to the
// recency window by the pipeline, and discarded after the digest is built.
type Paper struct {
	// Title is the paper title with whitespace normalized.
	Title string

	// Authors is the ordered author list as returned by the provider.
	Authors []string

	// Abstract is the paper abstract with whitespace normalized.
	Abstract string

	// SourceURL links to the paper (PDF when available).
	SourceURL string

	// PublishedAt is the submission timestamp in UTC.
	PublishedAt time.Time
}

// SummarizedPaper is a Paper plus its generated summary.
// Created once by the summarization step and immutable afterward.
type SummarizedPaper struct {
	Paper

	// Summary holds the generated bullet points, or the sentinel text
	// when the summarization provider failed for this paper.
	Summary string
}

// NormalizeKeyword normalizes a search keyword: trimmed, lowercased,
// inner whitespace collapsed to single spaces.
func NormalizeKeyword(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// NormalizeWhitespace trims and collapses runs of whitespace to single
// spaces. arXiv titles and abstracts carry embedded newlines and padding.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}
