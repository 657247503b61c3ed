package summary

import (
	"strings"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

// DefaultMaxChars bounds the page content sent to the model.
const DefaultMaxChars = 30000

const pageSeparator = "\n\n---\n\n"

const systemPrompt = "You analyze websites and provide concise, factual business insights. " +
	"Reply with a single JSON object and nothing else."

// BuildContent joins every page as "URL: ...\nTitle: ...\n\n<text>" separated
// by "---" lines, then cuts the result to maxChars runes plus "...".
func BuildContent(pages []crawler.CapturedPage, maxChars int) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, "URL: "+p.URL+"\nTitle: "+p.Title+"\n\n"+p.Text)
	}
	content := strings.Join(parts, pageSeparator)
	if maxChars <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}
	return string(runes[:maxChars]) + "..."
}

// BuildPrompt asks for the JSON shape that matches level.
func BuildPrompt(level DetailLevel, content string) string {
	var b strings.Builder
	b.WriteString("Below is the full content of a website. Analyze it and describe the site or company as JSON.\n\n")
	b.WriteString("Website content:\n")
	b.WriteString(content)
	b.WriteString("\n\n---\n\nUse exactly this JSON shape:\n")
	b.WriteString(shapeFor(level))
	return b.String()
}

func shapeFor(level DetailLevel) string {
	switch level {
	case LevelDetailed:
		return `{
  "companyName": "company name, or null",
  "overview": "detailed description in 5-7 sentences",
  "mainServices": ["service", ...],
  "targetCustomers": ["customer segment", ...],
  "uniqueFeatures": ["differentiator", ...],
  "swotAnalysis": {
    "strengths": ["..."],
    "weaknesses": ["..."],
    "opportunities": ["..."],
    "threats": ["..."]
  }
}`
	case LevelComprehensive:
		return `{
  "companyName": "company name, or null",
  "overview": "very detailed description in 10 or more sentences",
  "mainServices": ["service (with detail)", ...],
  "targetCustomers": ["customer segment (with detail)", ...],
  "uniqueFeatures": ["differentiator (with detail)", ...],
  "swotAnalysis": {
    "strengths": ["... (with detail)"],
    "weaknesses": ["... (with detail)"],
    "opportunities": ["... (with detail)"],
    "threats": ["... (with detail)"]
  },
  "competitorAnalysis": "competitors and market positioning in 3-5 sentences"
}`
	default:
		return `{
  "companyName": "company name, or null",
  "overview": "short description in 2-3 sentences",
  "mainServices": ["service", ...],
  "targetCustomers": ["customer segment", ...],
  "uniqueFeatures": ["differentiator", ...]
}`
	}
}

// maxTokensFor is the completion budget per level.
func maxTokensFor(level DetailLevel) int {
	if level == LevelComprehensive {
		return 2000
	}
	return 1000
}
