// Package handlers contains the HTTP handler implementations for the docgen
// API. This file implements the document generation endpoints:
//   - POST /v1/documents/generate: render a template and convert it to the
//     requested output format.
//   - POST /v1/documents/preview: identical to generate but forces HTML
//     output regardless of the requested format.
//   - GET  /v1/documents/usage: the caller's generation count for the
//     current month against their plan ceiling.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"docgen/internal/core"
	"docgen/internal/types"
)

// --- Service Interfaces ---
//
// These interfaces are defined locally following the handler injection
// pattern: the handler depends on narrow contracts rather than concrete
// types, enabling test mocking.

// TemplateRenderer binds data into a template source and produces markup.
type TemplateRenderer interface {
	Render(source string, data map[string]any, opts types.DocumentOptions) (string, error)
}

// DocumentConverter turns markup into the byte payload for a format.
type DocumentConverter interface {
	Convert(ctx context.Context, markup string, format types.OutputFormat, opts types.DocumentOptions) ([]byte, error)
}

// UsageGate gates generation against the caller's monthly quota and records
// successful generations.
type UsageGate interface {
	CanGenerate(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key string, n int) error
	MonthlyUsage(ctx context.Context, key string) (used, limit int, err error)
}

// TemplateStore resolves a template identifier to its source.
type TemplateStore interface {
	Lookup(id string) (string, error)
}

// --- Response Models ---

// UsageResponse is the body for GET /v1/documents/usage.
type UsageResponse struct {
	Success   bool   `json:"success"`
	Plan      string `json:"plan"`
	Usage     int    `json:"usage"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// --- Handler ---

// DocumentHandler orchestrates the generation pipeline: usage gate, template
// resolution, rendering, format conversion, and usage recording.
type DocumentHandler struct {
	renderer  TemplateRenderer
	converter DocumentConverter
	usage     UsageGate
	store     TemplateStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewDocumentHandler creates a DocumentHandler with the provided dependencies.
func NewDocumentHandler(
	renderer TemplateRenderer,
	converter DocumentConverter,
	usage UsageGate,
	store TemplateStore,
	validator *core.Validator,
	logger *slog.Logger,
) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{
		renderer:  renderer,
		converter: converter,
		usage:     usage,
		store:     store,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the document endpoints on the given router.
func (h *DocumentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/generate", h.HandleGenerate)
		r.Post("/preview", h.HandlePreview)
		r.Get("/usage", h.HandleUsage)
	})
}

// HandleGenerate serves POST /v1/documents/generate.
func (h *DocumentHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, false)
}

// HandlePreview serves POST /v1/documents/preview. It forces HTML output so
// clients can inspect the rendered markup without consuming a PDF
// conversion.
func (h *DocumentHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, true)
}

// generate runs the full pipeline. The quota check happens before any
// rendering and short-circuits with no side effects; usage is recorded only
// after the document bytes exist, so a failed render or conversion never
// consumes quota.
func (h *DocumentHandler) generate(w http.ResponseWriter, r *http.Request, forceHTML bool) {
	ctx := r.Context()

	var req types.DocumentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	format := req.Format
	if format == "" {
		format = types.FormatPDF
	}
	if forceHTML {
		format = types.FormatHTML
	}

	caller, ok := types.GetCaller(ctx)
	if !ok {
		caller = types.Caller{Key: types.AnonymousCaller, Plan: types.PlanFree}
	}

	allowed, err := h.usage.CanGenerate(ctx, caller.Key)
	if err != nil {
		h.logError(r, caller, req, "usage check failed", err)
		core.Error(w, r, err)
		return
	}
	if !allowed {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeQuotaExceeded,
			"Monthly usage limit exceeded",
			nil,
		))
		return
	}

	source := req.TemplateContent
	if source == "" {
		source, err = h.store.Lookup(req.TemplateID)
		if err != nil {
			h.logError(r, caller, req, "template lookup failed", err)
			core.Error(w, r, err)
			return
		}
	}

	markup, err := h.renderer.Render(source, req.Data, req.Options)
	if err != nil {
		h.logError(r, caller, req, "template render failed", err)
		core.Error(w, r, err)
		return
	}

	payload, err := h.converter.Convert(ctx, markup, format, req.Options)
	if err != nil {
		h.logError(r, caller, req, "format conversion failed", err)
		core.Error(w, r, err)
		return
	}

	// The document exists from here on: record usage unconditionally, even
	// if writing the response to this caller subsequently fails.
	if err := h.usage.Record(ctx, caller.Key, 1); err != nil {
		h.logError(r, caller, req, "failed to record usage", err)
	}

	fileName := req.Options.FileName
	if fileName == "" {
		fileName = format.DefaultFileName()
	}

	core.Document(w, types.RenderedDocument{
		Bytes:       payload,
		ContentType: format.ContentType(),
		FileName:    fileName,
	})
}

// HandleUsage serves GET /v1/documents/usage.
func (h *DocumentHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := types.GetCaller(ctx)
	if !ok {
		caller = types.Caller{Key: types.AnonymousCaller, Plan: types.PlanFree}
	}

	used, limit, err := h.usage.MonthlyUsage(ctx, caller.Key)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	core.JSON(w, r, http.StatusOK, UsageResponse{
		Success:   true,
		Plan:      string(caller.Plan),
		Usage:     used,
		Limit:     limit,
		Remaining: remaining,
	})
}

// logError logs a pipeline failure with enough context to diagnose without
// an internal retry: caller key, format, and template identifier if any.
func (h *DocumentHandler) logError(r *http.Request, caller types.Caller, req types.DocumentRequest, msg string, err error) {
	h.logger.Error(msg,
		slog.String("caller", caller.Key),
		slog.String("format", string(req.Format)),
		slog.String("template_id", req.TemplateID),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
