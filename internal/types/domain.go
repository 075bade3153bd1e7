// Package types defines the shared domain model for the docgen service:
// document requests and options, output formats, plan tiers, and the
// application error taxonomy. It has no dependencies on other internal
// packages so that every layer can import it freely.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OutputFormat identifies the requested document encoding.
type OutputFormat string

const (
	FormatPDF  OutputFormat = "pdf"
	FormatHTML OutputFormat = "html"
	FormatDOCX OutputFormat = "docx"
)

// ParseOutputFormat converts a string to an OutputFormat, case-insensitively.
// An empty string defaults to PDF, matching the request model default.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FormatPDF, nil
	case "pdf":
		return FormatPDF, nil
	case "html":
		return FormatHTML, nil
	case "docx":
		return FormatDOCX, nil
	default:
		return "", NewAppErrorWithDetails(
			ErrCodeValidationInvalidFormat,
			fmt.Sprintf("unsupported output format %q", s),
			nil,
			map[string]any{"format": s},
		)
	}
}

// UnmarshalJSON accepts the format as a case-insensitive JSON string.
func (f *OutputFormat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOutputFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ContentType returns the MIME type used when returning a document of this
// format. DOCX has a content type even though DOCX conversion is not
// implemented; the type is fixed by the format alone.
func (f OutputFormat) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatHTML:
		return "text/html"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// DefaultFileName returns the fallback download name for this format.
func (f OutputFormat) DefaultFileName() string {
	return "document." + string(f)
}

// PageSize identifies the paper size for paginated output.
type PageSize string

const (
	PageA4     PageSize = "A4"
	PageLetter PageSize = "Letter"
	PageLegal  PageSize = "Legal"
)

// ParsePageSize converts a string to a PageSize, case-insensitively.
// An empty string defaults to A4.
func ParsePageSize(s string) (PageSize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "a4":
		return PageA4, nil
	case "letter":
		return PageLetter, nil
	case "legal":
		return PageLegal, nil
	default:
		return "", NewAppErrorWithDetails(
			ErrCodeValidationInvalidFormat,
			fmt.Sprintf("unsupported page size %q", s),
			nil,
			map[string]any{"page_size": s},
		)
	}
}

// UnmarshalJSON accepts the page size as a case-insensitive JSON string.
func (p *PageSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePageSize(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Orientation identifies the page orientation for paginated output.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// ParseOrientation converts a string to an Orientation, case-insensitively.
// An empty string defaults to portrait.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "portrait":
		return OrientationPortrait, nil
	case "landscape":
		return OrientationLandscape, nil
	default:
		return "", NewAppErrorWithDetails(
			ErrCodeValidationInvalidFormat,
			fmt.Sprintf("unsupported orientation %q", s),
			nil,
			map[string]any{"orientation": s},
		)
	}
}

// UnmarshalJSON accepts the orientation as a case-insensitive JSON string.
func (o *Orientation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOrientation(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// defaultMargin is applied to any margin side the caller leaves empty.
const defaultMargin = "1cm"

// PageMargins holds CSS length strings for each page edge.
type PageMargins struct {
	Top    string `json:"top,omitempty"`
	Right  string `json:"right,omitempty"`
	Bottom string `json:"bottom,omitempty"`
	Left   string `json:"left,omitempty"`
}

// DocumentOptions controls the physical layout and download name of a
// generated document.
type DocumentOptions struct {
	FileName    string      `json:"fileName,omitempty" validate:"omitempty,max=255"`
	PageSize    PageSize    `json:"pageSize,omitempty"`
	Orientation Orientation `json:"orientation,omitempty"`
	Margins     PageMargins `json:"margins,omitempty"`
}

// Normalized returns a copy of the options with defaults applied:
// A4 portrait with 1cm margins on every side.
func (o DocumentOptions) Normalized() DocumentOptions {
	out := o
	if out.PageSize == "" {
		out.PageSize = PageA4
	}
	if out.Orientation == "" {
		out.Orientation = OrientationPortrait
	}
	if out.Margins.Top == "" {
		out.Margins.Top = defaultMargin
	}
	if out.Margins.Right == "" {
		out.Margins.Right = defaultMargin
	}
	if out.Margins.Bottom == "" {
		out.Margins.Bottom = defaultMargin
	}
	if out.Margins.Left == "" {
		out.Margins.Left = defaultMargin
	}
	return out
}

// DocumentRequest is the immutable description of one generation request.
// Exactly one of TemplateContent or TemplateID must be non-empty; when both
// are supplied, the inline content wins.
type DocumentRequest struct {
	TemplateID      string          `json:"templateId,omitempty" validate:"omitempty,max=128"`
	TemplateContent string          `json:"templateContent,omitempty"`
	Data            map[string]any  `json:"data,omitempty"`
	Format          OutputFormat    `json:"format,omitempty"`
	Options         DocumentOptions `json:"options,omitempty"`
}

// Validate checks the structural invariants of the request.
func (r *DocumentRequest) Validate() error {
	if strings.TrimSpace(r.TemplateContent) == "" && strings.TrimSpace(r.TemplateID) == "" {
		return NewAppError(
			ErrCodeValidationMissingTemplate,
			"either templateContent or templateId must be provided",
			nil,
		)
	}
	return nil
}

// RenderedDocument is the transient result of a generation: the encoded bytes
// plus the response metadata derived from the request. It is never persisted.
type RenderedDocument struct {
	Bytes       []byte
	ContentType string
	FileName    string
}

// PlanTier is a named service level bounding requests-per-minute and
// generations-per-month.
type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanStarter PlanTier = "starter"
	PlanGrowth  PlanTier = "growth"
	PlanScale   PlanTier = "scale"
)

// PlanLimits holds the numeric ceilings derived from a plan tier.
type PlanLimits struct {
	// RequestsPerMinute is the fixed-window rate limit ceiling.
	RequestsPerMinute int
	// GenerationsPerMonth is the monthly usage ceiling for document generation.
	GenerationsPerMonth int
}
