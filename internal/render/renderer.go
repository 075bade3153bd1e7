// Package render binds caller-supplied data into document templates and
// produces HTML markup. Templates use Go html/template syntax with a small
// set of built-in helpers (currency, date, barcode placeholder). Output that
// is not already a full HTML document is wrapped in a boilerplate shell that
// carries the page size, orientation, and margins as print-time @page rules.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"docgen/internal/types"
)

// Renderer turns a template source plus a data mapping into HTML markup.
// It is stateless and safe for concurrent use.
type Renderer struct {
	funcs template.FuncMap
}

// NewRenderer creates a Renderer with the built-in helper functions.
func NewRenderer() *Renderer {
	return &Renderer{funcs: Helpers()}
}

// Render parses source, projects data into the template's variable namespace
// by name, and executes it. The result is wrapped in the document shell
// unless it already starts with a doctype declaration; wrapping an
// already-wrapped document never double-wraps.
//
// Parse and execute failures return an AppError with code
// template_render_failed.
func (r *Renderer) Render(source string, data map[string]any, opts types.DocumentOptions) (string, error) {
	// missingkey=zero lets sparse payloads render: a top-level key the
	// caller omits binds to the zero value instead of aborting execution.
	tmpl, err := template.New("document").Funcs(r.funcs).Option("missingkey=zero").Parse(source)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeTemplateRenderFailed, "failed to parse template", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", types.NewAppError(types.ErrCodeTemplateRenderFailed, "failed to render template", err)
	}

	markup := buf.String()
	if !isFullDocument(markup) {
		markup = wrapDocument(markup, opts.Normalized())
	}
	return markup, nil
}

// isFullDocument reports whether the markup already begins with a document
// type declaration, ignoring leading whitespace and case.
func isFullDocument(markup string) bool {
	trimmed := strings.TrimSpace(markup)
	return len(trimmed) >= len("<!doctype") &&
		strings.EqualFold(trimmed[:len("<!doctype")], "<!doctype")
}

// wrapDocument embeds the rendered fragment in a minimal HTML document whose
// stylesheet carries the print-time page geometry plus the base styles the
// sample templates rely on. Plain string assembly is deliberate: the
// fragment has already been through template escaping and must not be
// escaped again.
func wrapDocument(content string, opts types.DocumentOptions) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <style>
        @page {
            size: %s %s;
            margin: %s %s %s %s;
        }
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
        }
        table {
            width: 100%%;
            border-collapse: collapse;
            margin: 20px 0;
        }
        th, td {
            border: 1px solid #ddd;
            padding: 8px;
            text-align: left;
        }
        th {
            background-color: #f4f4f4;
            font-weight: bold;
        }
        .invoice-header {
            display: flex;
            justify-content: space-between;
            margin-bottom: 30px;
        }
        .text-right { text-align: right; }
        .mt-4 { margin-top: 2rem; }
        .mb-4 { margin-bottom: 2rem; }
    </style>
</head>
<body>
%s
</body>
</html>`,
		opts.PageSize, opts.Orientation,
		opts.Margins.Top, opts.Margins.Right, opts.Margins.Bottom, opts.Margins.Left,
		content,
	)
}
