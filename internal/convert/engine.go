// Package convert turns rendered HTML markup into the requested byte
// payload. HTML is a passthrough encoding, PDF goes through a shared
// headless-browser engine, and DOCX is a deliberate not-implemented path.
//
// The engine is process-wide: one lazily-launched browser shared by all
// conversions, with each conversion owning a short-lived page that is closed
// on every exit path. Launch is guarded by a double-checked mutex so exactly
// one goroutine pays the startup cost; once live, concurrent conversions
// share the connection without contention.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"docgen/internal/types"
)

// Engine abstracts the external rendering engine so tests can substitute a
// fake without a real browser process.
type Engine interface {
	// RenderPDF loads markup into a fresh rendering surface, waits for the
	// content to settle, and exports a paginated PDF honoring the options.
	RenderPDF(ctx context.Context, markup string, opts types.DocumentOptions) ([]byte, error)

	// Close shuts the engine down. Called once at process shutdown.
	Close() error
}

// DefaultLaunchTimeout bounds browser process startup.
const DefaultLaunchTimeout = 30 * time.Second

// DefaultSettleTimeout bounds the wait for loaded content to finish its
// rendering and network activity before export.
const DefaultSettleTimeout = 30 * time.Second

// paperSizes maps page sizes to paper dimensions in inches (width, height,
// portrait orientation).
var paperSizes = map[types.PageSize][2]float64{
	types.PageA4:     {8.27, 11.69},
	types.PageLetter: {8.5, 11},
	types.PageLegal:  {8.5, 14},
}

// BrowserEngine is the rod-backed Engine. It holds at most one live browser
// connection for the life of the process; a connection later found
// disconnected triggers the same lazy-launch sequence again.
type BrowserEngine struct {
	mu      sync.RWMutex
	browser *rod.Browser

	launchTimeout time.Duration
	settleTimeout time.Duration
	browserBin    string // optional explicit chromium binary path
	logger        *slog.Logger
}

// BrowserEngineOption is a functional option for configuring a BrowserEngine.
type BrowserEngineOption func(*BrowserEngine)

// WithLaunchTimeout overrides the browser launch deadline.
func WithLaunchTimeout(d time.Duration) BrowserEngineOption {
	return func(e *BrowserEngine) {
		e.launchTimeout = d
	}
}

// WithSettleTimeout overrides the content-settle deadline.
func WithSettleTimeout(d time.Duration) BrowserEngineOption {
	return func(e *BrowserEngine) {
		e.settleTimeout = d
	}
}

// WithBrowserBin pins the engine to an explicit browser binary instead of
// auto-discovery.
func WithBrowserBin(path string) BrowserEngineOption {
	return func(e *BrowserEngine) {
		e.browserBin = path
	}
}

// NewBrowserEngine creates a BrowserEngine. No browser process is started
// until the first PDF conversion.
func NewBrowserEngine(logger *slog.Logger, opts ...BrowserEngineOption) *BrowserEngine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &BrowserEngine{
		launchTimeout: DefaultLaunchTimeout,
		settleTimeout: DefaultSettleTimeout,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RenderPDF implements Engine.
func (e *BrowserEngine) RenderPDF(ctx context.Context, markup string, opts types.DocumentOptions) ([]byte, error) {
	browser, err := e.browserHandle()
	if err != nil {
		return nil, err
	}

	// Each conversion owns its own page. The page is created on the
	// browser's long-lived context and closed via defer so it is released
	// on every exit path, including timeouts on the bounded clone below.
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeEngineUnavailable, "failed to open rendering surface", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			e.logger.Warn("failed to close rendering surface", slog.String("error", closeErr.Error()))
		}
	}()

	settleCtx, cancel := context.WithTimeout(ctx, e.settleTimeout)
	defer cancel()
	bounded := page.Context(settleCtx)

	if err := bounded.SetDocumentContent(markup); err != nil {
		return nil, e.mapPageError("failed to load markup", err)
	}
	if err := bounded.WaitLoad(); err != nil {
		return nil, e.mapPageError("failed waiting for content to settle", err)
	}
	// WaitIdle is the content-settled signal: it returns once the page's
	// rendering and network activity are quiescent or the deadline passes.
	if err := bounded.WaitIdle(e.settleTimeout); err != nil {
		return nil, e.mapPageError("failed waiting for content to settle", err)
	}

	stream, err := bounded.PDF(pdfRequest(opts))
	if err != nil {
		return nil, e.mapPageError("failed to export PDF", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, e.mapPageError("failed to read PDF stream", err)
	}
	return data, nil
}

// Close implements Engine. It shuts down the shared browser if one was ever
// launched.
func (e *BrowserEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser == nil {
		return nil
	}
	browser := e.browser
	e.browser = nil
	return browser.Close()
}

// Healthy reports whether the engine is usable. An engine that has not been
// needed yet is healthy: the browser launches lazily on the first PDF
// conversion. Only a held connection that has gone dead reports unhealthy.
func (e *BrowserEngine) Healthy() bool {
	e.mu.RLock()
	browser := e.browser
	e.mu.RUnlock()
	return browser == nil || e.isLive(browser)
}

// browserHandle returns the shared live browser, launching it if necessary.
// The liveness check runs outside the write lock to keep the hot path free
// of contention; the check is repeated inside the lock before launching so
// only one launch can occur.
func (e *BrowserEngine) browserHandle() (*rod.Browser, error) {
	e.mu.RLock()
	browser := e.browser
	e.mu.RUnlock()

	if browser != nil && e.isLive(browser) {
		return browser, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Another goroutine may have launched while we waited for the lock.
	if e.browser != nil && e.isLive(e.browser) {
		return e.browser, nil
	}

	e.logger.Info("launching rendering engine", slog.Duration("timeout", e.launchTimeout))
	browser, err := e.launch()
	if err != nil {
		return nil, err
	}
	e.logger.Info("rendering engine launched")
	e.browser = browser
	return browser, nil
}

// isLive probes the connection with a cheap version call.
func (e *BrowserEngine) isLive(browser *rod.Browser) bool {
	_, err := browser.Version()
	return err == nil
}

// launch starts the browser process and connects to it, bounded by the
// launch timeout. The launch runs in its own goroutine so the deadline is
// enforced even if process startup wedges; a late success is closed rather
// than leaked.
func (e *BrowserEngine) launch() (*rod.Browser, error) {
	type launchResult struct {
		browser *rod.Browser
		err     error
	}
	done := make(chan launchResult, 1)

	go func() {
		l := launcher.New().
			Headless(true).
			Leakless(true).
			Set("no-sandbox").
			Set("disable-dev-shm-usage").
			Set("disable-gpu").
			Set("no-first-run").
			Set("disable-extensions")
		if e.browserBin != "" {
			l = l.Bin(e.browserBin)
		}

		u, err := l.Launch()
		if err != nil {
			done <- launchResult{err: err}
			return
		}

		browser := rod.New().ControlURL(u)
		if err := browser.Connect(); err != nil {
			done <- launchResult{err: err}
			return
		}
		done <- launchResult{browser: browser}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, types.NewAppError(types.ErrCodeEngineLaunchFailed, "rendering engine failed to start", res.err)
		}
		return res.browser, nil
	case <-time.After(e.launchTimeout):
		// Reap a late success in the background so the process is not
		// orphaned.
		go func() {
			if res := <-done; res.browser != nil {
				_ = res.browser.Close()
			}
		}()
		return nil, types.NewAppError(
			types.ErrCodeConvertTimeout,
			fmt.Sprintf("rendering engine launch exceeded %s", e.launchTimeout),
			nil,
		)
	}
}

// mapPageError classifies a page operation failure: deadline expiry is a
// conversion timeout, anything else is an engine failure.
func (e *BrowserEngine) mapPageError(message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewAppError(
			types.ErrCodeConvertTimeout,
			fmt.Sprintf("%s within %s", message, e.settleTimeout),
			err,
		)
	}
	return types.NewAppError(types.ErrCodeEngineUnavailable, message, err)
}

// pdfRequest translates DocumentOptions into a PrintToPDF request. Paper
// dimensions and margins are expressed in inches per the CDP contract.
func pdfRequest(opts types.DocumentOptions) *proto.PagePrintToPDF {
	opts = opts.Normalized()

	size, ok := paperSizes[opts.PageSize]
	if !ok {
		size = paperSizes[types.PageA4]
	}

	return &proto.PagePrintToPDF{
		Landscape:       opts.Orientation == types.OrientationLandscape,
		PrintBackground: true,
		PaperWidth:      f64(size[0]),
		PaperHeight:     f64(size[1]),
		MarginTop:       f64(cssLengthToInches(opts.Margins.Top)),
		MarginRight:     f64(cssLengthToInches(opts.Margins.Right)),
		MarginBottom:    f64(cssLengthToInches(opts.Margins.Bottom)),
		MarginLeft:      f64(cssLengthToInches(opts.Margins.Left)),
	}
}

// cssLengthToInches converts a CSS length string (cm, mm, in, px, or a bare
// number treated as inches) to inches. Unparseable values fall back to the
// 1cm default rather than failing the conversion.
func cssLengthToInches(length string) float64 {
	const defaultInches = 1.0 / 2.54 // 1cm

	s := strings.TrimSpace(strings.ToLower(length))
	if s == "" {
		return defaultInches
	}

	unit := ""
	for _, u := range []string{"cm", "mm", "in", "px"} {
		if strings.HasSuffix(s, u) {
			unit = u
			s = strings.TrimSuffix(s, u)
			break
		}
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return defaultInches
	}

	switch unit {
	case "cm":
		return value / 2.54
	case "mm":
		return value / 25.4
	case "px":
		return value / 96
	default: // "in" or bare number
		return value
	}
}

func f64(v float64) *float64 {
	return &v
}
