package report

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"campaignpulse/internal/campaign"
	"campaignpulse/internal/insight"
)

// ExportError is a chart that could not be rendered. The chart is exported with a placeholder.
type ExportError struct {
	Chart string
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("report: render %s: %v", e.Chart, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Renderer turns a chart view into an image.
type Renderer interface {
	Render(title string, data []campaign.Pair) ([]byte, error)
	ContentType() string
}

// Chart is one exported chart with its data, image and commentary.
type Chart struct {
	Key   string          `json:"key"`
	Title string          `json:"title"`
	Data  []campaign.Pair `json:"data"`
	// Insights maps style to generated text. When empty, Tips carries the static guidance.
	Insights    map[string]string `json:"insights,omitempty"`
	Tips        []string          `json:"tips,omitempty"`
	Image       string            `json:"image,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
}

// Bundle is everything a report layout needs. It carries data, not layout.
type Bundle struct {
	Name        string              `json:"name"`
	GeneratedAt time.Time           `json:"generated_at"`
	Criteria    campaign.Criteria   `json:"criteria"`
	Highlights  campaign.Highlights `json:"highlights"`
	// Summary maps style to generated campaign summary.
	Summary  map[string]string `json:"summary,omitempty"`
	Fallback []string          `json:"fallback_summary,omitempty"`
	Charts   []Chart           `json:"charts"`
	Errors   []string          `json:"errors,omitempty"`
}

// Input is the session state a report is built from. Insights maps chart -> style -> text.
type Input struct {
	Name     string
	Criteria campaign.Criteria
	Snapshot campaign.Snapshot
	Insights map[string]map[string]string
}

// Build assembles the bundle. A failing chart render is replaced by a placeholder and the
// rest of the report is still produced.
func Build(in Input, r Renderer) Bundle {
	b := Bundle{
		Name:        in.Name,
		GeneratedAt: time.Now().UTC(),
		Criteria:    in.Criteria,
		Highlights:  campaign.Highlight(in.Snapshot),
		Summary:     in.Insights[insight.SummaryKey],
	}
	if len(b.Summary) == 0 {
		b.Fallback = b.Highlights.Lines()
	}

	for _, key := range campaign.ChartKeys {
		data, _ := in.Snapshot.View(key)
		chart := Chart{
			Key:      key,
			Title:    campaign.ChartTitle(key),
			Data:     data,
			Insights: in.Insights[key],
		}
		if len(chart.Insights) == 0 {
			chart.Tips = campaign.Tips(key)
		}

		if r != nil {
			img, err := r.Render(chart.Title, data)
			if err != nil {
				exportErr := &ExportError{Chart: key, Err: err}
				log.Printf("%v", exportErr)
				chart.Placeholder = "Chart image unavailable: " + err.Error()
				b.Errors = append(b.Errors, exportErr.Error())
			} else {
				chart.Image = string(img)
				chart.ContentType = r.ContentType()
			}
		}
		b.Charts = append(b.Charts, chart)
	}
	return b
}

// Text renders the bundle as plain text, one section per chart.
func (b Bundle) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Campaign report: %s\n\n", b.Name)

	sb.WriteString("Campaign strategy summary\n")
	if len(b.Summary) > 0 {
		for _, style := range sortedStyles(b.Summary) {
			fmt.Fprintf(&sb, "[%s]\n%s\n", style, b.Summary[style])
		}
	} else {
		for _, line := range b.Fallback {
			fmt.Fprintf(&sb, "- %s\n", line)
		}
	}

	for _, c := range b.Charts {
		fmt.Fprintf(&sb, "\n%s\n", c.Title)
		for _, p := range c.Data {
			fmt.Fprintf(&sb, "  %s: %d\n", p.Label, p.Value)
		}
		if c.Placeholder != "" {
			fmt.Fprintf(&sb, "  (%s)\n", c.Placeholder)
		}
		for _, style := range sortedStyles(c.Insights) {
			fmt.Fprintf(&sb, "[%s]\n%s\n", style, c.Insights[style])
		}
		for _, tip := range c.Tips {
			fmt.Fprintf(&sb, "- %s\n", tip)
		}
	}
	return sb.String()
}

func sortedStyles(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
