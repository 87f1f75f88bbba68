package extract

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Renderer converts fetched HTML into a sanitized markdown snapshot for the
// fetch log. Safe for concurrent use.
type Renderer struct {
	conv   *converter.Converter
	policy *bluemonday.Policy
}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// Render sanitizes rawHTML and converts it to markdown. If conversion fails
// or produces empty output, the fallback plain text is returned instead.
func (r *Renderer) Render(rawHTML, sourceURL, fallback string) string {
	if rawHTML == "" {
		return fallback
	}
	clean := r.policy.Sanitize(rawHTML)
	md, err := r.conv.ConvertString(clean, converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(md) == "" {
		return fallback
	}
	return strings.TrimSpace(md)
}
