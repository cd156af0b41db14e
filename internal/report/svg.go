package report

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"campaignpulse/internal/campaign"
)

// SVGRenderer draws horizontal bar charts as standalone SVG documents.
type SVGRenderer struct {
	Width     int
	BarHeight int
}

// DefaultSVGRenderer matches the 800px wide export of the dashboard.
func DefaultSVGRenderer() SVGRenderer {
	return SVGRenderer{Width: 800, BarHeight: 24}
}

func (SVGRenderer) ContentType() string { return "image/svg+xml" }

// Render draws one bar per pair, scaled to the largest value. The image grows with the
// number of pairs. Empty data renders a "No data" frame.
func (r SVGRenderer) Render(title string, data []campaign.Pair) ([]byte, error) {
	if r.Width < 200 || r.BarHeight < 4 {
		return nil, fmt.Errorf("svg: invalid geometry %dx%d", r.Width, r.BarHeight)
	}

	const (
		top        = 40
		labelWidth = 160
		padding    = 10
	)
	rows := len(data)
	if rows == 0 {
		rows = 1
	}
	height := top + rows*(r.BarHeight+padding) + padding

	var peak int64
	for _, p := range data {
		if p.Value < 0 {
			return nil, errors.New("svg: negative value")
		}
		if p.Value > peak {
			peak = p.Value
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, r.Width, height, r.Width, height)
	fmt.Fprintf(&sb, `<text x="%d" y="24" font-family="sans-serif" font-size="16" font-weight="bold">%s</text>`, padding, html.EscapeString(title))

	if len(data) == 0 {
		fmt.Fprintf(&sb, `<text x="%d" y="%d" font-family="sans-serif" font-size="12">No data</text>`, padding, top+r.BarHeight/2)
	}

	span := r.Width - labelWidth - 3*padding - 60
	for i, p := range data {
		y := top + i*(r.BarHeight+padding)
		w := 0
		if peak > 0 {
			w = int(int64(span) * p.Value / peak)
		}
		fmt.Fprintf(&sb, `<text x="%d" y="%d" font-family="sans-serif" font-size="12">%s</text>`, padding, y+r.BarHeight*2/3, html.EscapeString(p.Label))
		fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" fill="#4c78a8"/>`, labelWidth, y, w, r.BarHeight)
		fmt.Fprintf(&sb, `<text x="%d" y="%d" font-family="sans-serif" font-size="12">%d</text>`, labelWidth+w+padding, y+r.BarHeight*2/3, p.Value)
	}
	sb.WriteString(`</svg>`)
	return []byte(sb.String()), nil
}
