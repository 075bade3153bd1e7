package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgen/internal/core"
	"docgen/internal/types"
)

// =============================================================================
// Mock Implementations
// =============================================================================

// mockRenderer implements TemplateRenderer for testing.
type mockRenderer struct {
	renderFn func(source string, data map[string]any, opts types.DocumentOptions) (string, error)

	lastSource string
}

func (m *mockRenderer) Render(source string, data map[string]any, opts types.DocumentOptions) (string, error) {
	m.lastSource = source
	if m.renderFn != nil {
		return m.renderFn(source, data, opts)
	}
	return "<!DOCTYPE html><html><body>rendered</body></html>", nil
}

// mockConverter implements DocumentConverter for testing.
type mockConverter struct {
	convertFn func(ctx context.Context, markup string, format types.OutputFormat, opts types.DocumentOptions) ([]byte, error)

	lastFormat types.OutputFormat
	calls      int
}

func (m *mockConverter) Convert(ctx context.Context, markup string, format types.OutputFormat, opts types.DocumentOptions) ([]byte, error) {
	m.calls++
	m.lastFormat = format
	if m.convertFn != nil {
		return m.convertFn(ctx, markup, format, opts)
	}
	if format == types.FormatHTML {
		return []byte(markup), nil
	}
	return []byte("%PDF-1.7 fake"), nil
}

// mockUsageGate implements UsageGate for testing.
type mockUsageGate struct {
	canGenerate bool
	gateErr     error
	used        int
	limit       int

	recorded int
}

func (m *mockUsageGate) CanGenerate(_ context.Context, _ string) (bool, error) {
	return m.canGenerate, m.gateErr
}

func (m *mockUsageGate) Record(_ context.Context, _ string, n int) error {
	m.recorded += n
	return nil
}

func (m *mockUsageGate) MonthlyUsage(_ context.Context, _ string) (int, int, error) {
	return m.used, m.limit, m.gateErr
}

// mockTemplateStore implements TemplateStore for testing.
type mockTemplateStore struct {
	sources map[string]string

	lookups []string
}

func (m *mockTemplateStore) Lookup(id string) (string, error) {
	m.lookups = append(m.lookups, id)
	if source, ok := m.sources[id]; ok {
		return source, nil
	}
	return "", types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", nil)
}

// =============================================================================
// Test Helpers
// =============================================================================

type handlerFixture struct {
	handler   *DocumentHandler
	renderer  *mockRenderer
	converter *mockConverter
	usage     *mockUsageGate
	store     *mockTemplateStore
}

func newFixture() *handlerFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &handlerFixture{
		renderer:  &mockRenderer{},
		converter: &mockConverter{},
		usage:     &mockUsageGate{canGenerate: true, limit: 1000},
		store:     &mockTemplateStore{sources: map[string]string{"invoice": "<p>invoice source</p>"}},
	}
	f.handler = NewDocumentHandler(f.renderer, f.converter, f.usage, f.store, core.NewValidator(logger), logger)
	return f
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any, caller *types.Caller) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/generate", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if caller == nil {
		caller = &types.Caller{Key: "demo-key-123", Plan: types.PlanStarter}
	}
	req = req.WithContext(types.WithCaller(req.Context(), *caller))

	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) core.APIErrorResponse {
	t.Helper()
	var body core.APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// =============================================================================
// Generate
// =============================================================================

func TestHandleGenerate_InlineContentHTML(t *testing.T) {
	f := newFixture()

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"templateContent": "<h1>Hello {{ .name }}</h1>",
		"data":            map[string]any{"name": "World"},
		"format":          "html",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=document.html`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, 1, f.usage.recorded, "a successful generation records one use")
	assert.Equal(t, types.FormatHTML, f.converter.lastFormat)
}

func TestHandleGenerate_DefaultsToPDF(t *testing.T) {
	f := newFixture()

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"templateContent": "<p>hi</p>",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, types.FormatPDF, f.converter.lastFormat)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=document.pdf`, rec.Header().Get("Content-Disposition"))
}

func TestHandleGenerate_TemplateIDLookup(t *testing.T) {
	f := newFixture()

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"templateId": "invoice",
		"format":     "html",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"invoice"}, f.store.lookups)
	assert.Equal(t, "<p>invoice source</p>", f.renderer.lastSource)
}

func TestHandleGenerate_InlineContentWinsOverID(t *testing.T) {
	f := newFixture()

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"templateId":      "invoice",
		"templateContent": "<p>inline</p>",
		"format":          "html",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, f.store.lookups, "inline content must bypass the store")
	assert.Equal(t, "<p>inline</p>", f.renderer.lastSource)
}

func TestHandleGenerate_MissingTemplate(t *testing.T) {
	f := newFixture()

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"data": map[string]any{"x": 1},
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.Error)
	assert.Zero(t, f.usage.recorded)
}

func TestHandleGenerate_UnknownTemplateID(t *testing.T) {
	f := newFixture()

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"templateId": "contract",
	}, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, f.usage.recorded)
}

func TestHandleGenerate_QuotaExceeded(t *testing.T) {
	f := newFixture()
	f.usage.canGenerate = false

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"templateContent": "<p>hi</p>",
	}, nil)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "Monthly usage limit exceeded", body.Error)
	assert.Zero(t, f.converter.calls, "an over-quota request must not render")
	assert.Zero(t, f.usage.recorded)
}

func TestHandleGenerate_RenderFailureDoesNotRecordUsage(t *testing.T) {
	f := newFixture()
	f.renderer.renderFn = func(string, map[string]any, types.DocumentOptions) (string, error) {
		return "", types.NewAppError(types.ErrCodeTemplateRenderFailed, "failed to parse template", nil)
	}

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"templateContent": "{{ .broken",
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.usage.recorded, "a failed render must not consume quota")
}

func TestHandleGenerate_DOCXNotImplemented(t *testing.T) {
	f := newFixture()
	f.converter.convertFn = func(_ context.Context, _ string, format types.OutputFormat, _ types.DocumentOptions) ([]byte, error) {
		if format == types.FormatDOCX {
			return nil, types.NewAppError(types.ErrCodeConvertNotSupported, "DOCX conversion is not implemented", nil)
		}
		return []byte("ok"), nil
	}

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"templateContent": "<p>hi</p>",
		"format":          "docx",
	}, nil)

	require.Equal(t, http.StatusNotImplemented, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "DOCX conversion is not implemented", body.Error)
	assert.Zero(t, f.usage.recorded, "a failed conversion must not consume quota")
}

func TestHandleGenerate_ConversionTimeout(t *testing.T) {
	f := newFixture()
	f.converter.convertFn = func(context.Context, string, types.OutputFormat, types.DocumentOptions) ([]byte, error) {
		return nil, types.NewAppError(types.ErrCodeConvertTimeout, "content did not settle", context.DeadlineExceeded)
	}

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"templateContent": "<p>hi</p>",
	}, nil)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Zero(t, f.usage.recorded)
}

func TestHandleGenerate_CustomFileName(t *testing.T) {
	f := newFixture()

	rec := postJSON(t, f.handler.HandleGenerate, map[string]any{
		"templateContent": "<p>hi</p>",
		"format":          "pdf",
		"options":         map[string]any{"fileName": "invoice-2026-08.pdf"},
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename=invoice-2026-08.pdf`, rec.Header().Get("Content-Disposition"))
}

func TestHandleGenerate_MissingCallerFallsBackToAnonymous(t *testing.T) {
	f := newFixture()

	raw := `{"templateContent":"<p>hi</p>","format":"html"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/generate", strings.NewReader(raw))
	rec := httptest.NewRecorder()
	f.handler.HandleGenerate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.usage.recorded)
}

// =============================================================================
// Preview
// =============================================================================

func TestHandlePreview_ForcesHTML(t *testing.T) {
	f := newFixture()

	rec := postJSON(t, f.handler.HandlePreview, map[string]any{
		"templateContent": "<p>hi</p>",
		"format":          "pdf",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, types.FormatHTML, f.converter.lastFormat, "preview must never hit the PDF engine")
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
}

func TestHandlePreview_ConsumesQuota(t *testing.T) {
	f := newFixture()

	rec := postJSON(t, f.handler.HandlePreview, map[string]any{
		"templateContent": "<p>hi</p>",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.usage.recorded)
}

// =============================================================================
// Usage
// =============================================================================

func TestHandleUsage(t *testing.T) {
	f := newFixture()
	f.usage.used = 250
	f.usage.limit = 1000

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/usage", nil)
	req = req.WithContext(types.WithCaller(req.Context(), types.Caller{Key: "demo-key-123", Plan: types.PlanStarter}))
	rec := httptest.NewRecorder()
	f.handler.HandleUsage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body UsageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "starter", body.Plan)
	assert.Equal(t, 250, body.Usage)
	assert.Equal(t, 1000, body.Limit)
	assert.Equal(t, 750, body.Remaining)
}

func TestHandleUsage_RemainingNeverNegative(t *testing.T) {
	f := newFixture()
	f.usage.used = 120
	f.usage.limit = 100

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/usage", nil)
	rec := httptest.NewRecorder()
	f.handler.HandleUsage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body UsageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 0, body.Remaining)
}

// =============================================================================
// Routing
// =============================================================================

func TestRegisterRoutes(t *testing.T) {
	f := newFixture()

	r := chi.NewRouter()
	r.Route("/v1", f.handler.RegisterRoutes)

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/v1/documents/generate", `{"templateContent":"<p>x</p>","format":"html"}`},
		{http.MethodPost, "/v1/documents/preview", `{"templateContent":"<p>x</p>"}`},
		{http.MethodGet, "/v1/documents/usage", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equalf(t, http.StatusOK, rec.Code, "%s %s: %s", tt.method, tt.path, rec.Body.String())
	}
}
