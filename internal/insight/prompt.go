package insight

import (
	"fmt"
	"strings"

	"campaignpulse/internal/campaign"
	"campaignpulse/internal/llm"
)

// SummaryKey is the chart key under which campaign-level summaries are cached.
const SummaryKey = "__summary__"

// Prompter assembles provider messages in a fixed output language.
type Prompter struct {
	Language string
}

func (p Prompter) language() string {
	if strings.TrimSpace(p.Language) == "" {
		return "English"
	}
	return p.Language
}

func (p Prompter) system(style Style) llm.Message {
	content := style.Persona
	if style.Focus != "" {
		content += " " + style.Focus
	}
	return llm.Message{Role: "system", Content: content}
}

// ChartMessages asks for three short insights about one chart's data points.
func (p Prompter) ChartMessages(chart string, style Style, view []campaign.Pair) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Chart: %s\n", campaign.ChartTitle(chart))
	b.WriteString("Data points (label: value), in display order:\n")
	for _, pair := range view {
		fmt.Fprintf(&b, "- %s: %d\n", pair.Label, pair.Value)
	}
	fmt.Fprintf(&b, `
Write exactly three numbered insights about this chart for a marketing team.
Each insight is one or two sentences, cites the data, and ends with an actionable recommendation.
Answer in %s. Do not add a preamble.`, p.language())

	return []llm.Message{p.system(style), {Role: "user", Content: b.String()}}
}

// SummaryMessages asks for a campaign strategy summary built from the snapshot highlights.
func (p Prompter) SummaryMessages(style Style, h campaign.Highlights) []llm.Message {
	var b strings.Builder
	b.WriteString("Based on the following marketing campaign data:\n")
	for _, line := range h.Lines() {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	fmt.Fprintf(&b, `
Write a comprehensive campaign strategy summary that highlights key actions and actionable recommendations to improve performance.
Focus on leveraging strengths, mitigating weaknesses and capitalising on the opportunities the data shows.
Use 3-5 main points. Answer in %s.`, p.language())

	return []llm.Message{p.system(style), {Role: "user", Content: b.String()}}
}
