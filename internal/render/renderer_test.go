package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgen/internal/types"
)

func TestRender_BindsData(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("<h1>Hello {{ .name }}</h1>", map[string]any{"name": "World"}, types.DocumentOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Hello World</h1>")
}

func TestRender_WrapsFragmentInDocumentShell(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("<p>{{ .x }}</p>", map[string]any{"x": 5}, types.DocumentOptions{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<p>5</p>")
	// Default geometry: A4 portrait, 1cm margins.
	assert.Contains(t, out, "size: A4 portrait;")
	assert.Contains(t, out, "margin: 1cm 1cm 1cm 1cm;")
}

func TestRender_WrapUsesRequestedGeometry(t *testing.T) {
	r := NewRenderer()

	opts := types.DocumentOptions{
		PageSize:    types.PageLetter,
		Orientation: types.OrientationLandscape,
		Margins:     types.PageMargins{Top: "2cm", Right: "1in", Bottom: "2cm", Left: "1in"},
	}
	out, err := r.Render("<p>hi</p>", nil, opts)
	require.NoError(t, err)

	assert.Contains(t, out, "size: Letter landscape;")
	assert.Contains(t, out, "margin: 2cm 1in 2cm 1in;")
}

func TestRender_FullDocumentNotDoubleWrapped(t *testing.T) {
	r := NewRenderer()
	source := "<!DOCTYPE html><html><body><p>{{ .x }}</p></body></html>"

	out, err := r.Render(source, map[string]any{"x": "y"}, types.DocumentOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(strings.ToLower(out), "<!doctype"))
	assert.NotContains(t, out, "@page")
}

func TestRender_DoctypeDetectionIsCaseAndSpaceInsensitive(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("\n\t  <!doctype HTML><html></html>", nil, types.DocumentOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.ToLower(out), "<!doctype"))
}

func TestRender_HelpersAvailable(t *testing.T) {
	r := NewRenderer()
	source := `{{ formatCurrency .total "EUR" }} on {{ formatDate .date }} {{ barcode .code }}`
	data := map[string]any{
		"total": 1999.5,
		"date":  "2026-01-31",
		"code":  "ABC",
	}

	out, err := r.Render(source, data, types.DocumentOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "€1,999.50")
	assert.Contains(t, out, "2026-01-31")
	assert.Contains(t, out, "[BARCODE: ABC]")
}

func TestRender_ParseError(t *testing.T) {
	r := NewRenderer()

	_, err := r.Render("{{ .broken", nil, types.DocumentOptions{})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeTemplateRenderFailed, appErr.Code)
	assert.Equal(t, 400, appErr.HTTPStatus())
}

func TestRender_ExecuteError(t *testing.T) {
	r := NewRenderer()

	// Calling a helper with an unparseable value fails at execute time.
	_, err := r.Render(`{{ formatDate .when }}`, map[string]any{"when": "not-a-date"}, types.DocumentOptions{})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeTemplateRenderFailed, appErr.Code)
}

func TestRender_EscapesInterpolatedHTML(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("<p>{{ .v }}</p>", map[string]any{"v": "<script>x</script>"}, types.DocumentOptions{})
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>x</script>")
}
