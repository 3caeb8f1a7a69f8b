// Package digest builds and delivers the studyletter paper digest.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
)

const (
	// ruleWidth is the width of the horizontal rules in the digest body.
	ruleWidth = 70

	// maxNamedAuthors is the number of authors listed before truncation.
	maxNamedAuthors = 3

	// footer closes every digest email.
	footer = "이 이메일은 스터디레터 서비스를 통해 자동으로 생성되었습니다.\nPowered by arXiv & Google Gemini"
)

// Subject returns the email subject line for a digest generated at the given
// time, e.g. [스터디레터] 'transformer' 관련 최신 논문 (26/08/31).
func Subject(keyword string, now time.Time) string {
	return fmt.Sprintf("[스터디레터] '%s' 관련 최신 논문 (%s)", keyword, now.Format("06/01/02"))
}

// FormatDigest renders the plain-text digest body for the given papers.
// The output is deterministic: identical input produces byte-identical output.
func FormatDigest(papers []domain.SummarizedPaper, keyword string, now time.Time) string {
	var sb strings.Builder

	rule := strings.Repeat("=", ruleWidth)
	divider := strings.Repeat("-", ruleWidth)

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "스터디레터 - '%s' 관련 최신 논문 (%s)\n", keyword, now.Format("2006년 01월 02일"))
	sb.WriteString(rule)
	sb.WriteString("\n\n")
	sb.WriteString("안녕하세요!\n\n")
	fmt.Fprintf(&sb, "'%s' 키워드로 검색된 최근 7일 이내 논문 %d편을 요약해드립니다.\n\n", keyword, len(papers))
	sb.WriteString(rule)
	sb.WriteString("\n\n")

	for i, paper := range papers {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "[논문 %d]\n", i+1)
		fmt.Fprintf(&sb, "제목: %s\n", paper.Title)
		fmt.Fprintf(&sb, "저자: %s\n", formatAuthors(paper.Authors))
		fmt.Fprintf(&sb, "링크: %s\n", paper.SourceURL)
		fmt.Fprintf(&sb, "발표일: %s\n", paper.PublishedAt.Format("2006-01-02"))
		sb.WriteString("\n")
		sb.WriteString("📝 Gemini 요약:\n")
		sb.WriteString(paper.Summary)
		sb.WriteString("\n\n")
		sb.WriteString(divider)
		sb.WriteString("\n\n")
	}

	sb.WriteString("\n\n")
	sb.WriteString(footer)
	sb.WriteString("\n\n")

	return sb.String()
}

// formatAuthors joins the first three author names, appending the count of
// the remaining ones, e.g. "A, B, C 외 2명".
func formatAuthors(authors []string) string {
	if len(authors) <= maxNamedAuthors {
		return strings.Join(authors, ", ")
	}
	named := strings.Join(authors[:maxNamedAuthors], ", ")
	return fmt.Sprintf("%s 외 %d명", named, len(authors)-maxNamedAuthors)
}
