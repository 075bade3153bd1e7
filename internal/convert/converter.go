package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"docgen/internal/types"
)

// Converter dispatches rendered markup to the encoder for the requested
// output format. PDF conversions go through the shared engine behind a
// circuit breaker: when the engine flaps, further conversions fail fast
// instead of queueing on a dead browser. The breaker never retries --
// conversions are strict-once-per-request and a rejected caller must
// resubmit.
type Converter struct {
	engine  Engine
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// NewConverter creates a Converter over the given engine.
func NewConverter(engine Engine, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "rendering-engine",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &Converter{
		engine:  engine,
		breaker: cb,
		logger:  logger,
	}
}

// Convert turns markup into the byte payload for the requested format.
//
//   - HTML: direct byte encoding of the markup, no engine involvement.
//   - PDF: shared-engine conversion with per-conversion rendering surface.
//   - DOCX: always fails with convert_not_supported; the engine is never
//     touched. This is a deliberate stub, not a bug.
func (c *Converter) Convert(ctx context.Context, markup string, format types.OutputFormat, opts types.DocumentOptions) ([]byte, error) {
	switch format {
	case types.FormatHTML:
		return []byte(markup), nil

	case types.FormatPDF:
		return c.convertPDF(ctx, markup, opts)

	case types.FormatDOCX:
		return nil, types.NewAppError(
			types.ErrCodeConvertNotSupported,
			"DOCX conversion is not implemented",
			nil,
		)

	default:
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidFormat,
			fmt.Sprintf("unsupported output format %q", format),
			nil,
		)
	}
}

// convertPDF runs the engine conversion through the circuit breaker and maps
// breaker rejections to an engine-unavailable error.
func (c *Converter) convertPDF(ctx context.Context, markup string, opts types.DocumentOptions) ([]byte, error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.engine.RenderPDF(ctx, markup, opts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("rendering engine circuit open, rejecting conversion")
			return nil, types.NewAppError(
				types.ErrCodeEngineUnavailable,
				"rendering engine is temporarily unavailable",
				err,
			)
		}
		return nil, err
	}
	return data, nil
}
