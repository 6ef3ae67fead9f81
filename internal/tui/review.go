package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/kingrea/feedback-desk/internal/form"
)

// reviewRenderer turns the record into markdown and renders it with glamour,
// caching one renderer per wrap width.
type reviewRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

func newReviewRenderer() *reviewRenderer {
	return &reviewRenderer{}
}

// Render returns the styled summary, falling back to plain markdown when
// glamour cannot build a renderer.
func (r *reviewRenderer) Render(agg form.Aggregate, width int) string {
	md := reviewMarkdown(agg)
	width = max(20, width)
	if r.renderer == nil || r.width != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return md
		}
		r.renderer = renderer
		r.width = width
	}
	out, err := r.renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func reviewMarkdown(agg form.Aggregate) string {
	var b strings.Builder
	b.WriteString("## Review your feedback\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	rows := [][2]string{
		{"Language", agg.Language.Label()},
		{"Name", agg.Name},
		{"Address", agg.Address},
		{"Phone", agg.Phone},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", row[0], cell(row[1]))
	}
	b.WriteString("\n### Details\n\n")
	if strings.TrimSpace(agg.Details) == "" {
		b.WriteString("_No details provided._\n")
	} else {
		b.WriteString(quote(agg.Details))
	}
	fmt.Fprintf(&b, "\n### Photos (%d)\n\n", len(agg.Images))
	if len(agg.Images) == 0 {
		b.WriteString("_No photos attached._\n")
	}
	for _, img := range agg.Images {
		fmt.Fprintf(&b, "- %s\n", escapeMarkdown(img.DisplayName))
	}
	return b.String()
}

func cell(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return strings.ReplaceAll(escapeMarkdown(value), "|", `\|`)
}

func quote(text string) string {
	lines := strings.Split(escapeMarkdown(text), "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n") + "\n"
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"#", `\#`,
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
)

func escapeMarkdown(value string) string {
	return markdownEscaper.Replace(value)
}
