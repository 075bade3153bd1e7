package render

import (
	"embed"
	"fmt"

	"docgen/internal/types"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateStore resolves a template identifier to its source. The current
// implementation is a stub collaborator serving the embedded sample
// templates; a real store would sit behind the same interface.
type TemplateStore interface {
	// Lookup returns the template source for the given identifier, or an
	// AppError with code not_found_template.
	Lookup(id string) (string, error)
}

// embeddedStore serves the sample templates compiled into the binary.
type embeddedStore struct {
	sources map[string]string
}

// sampleTemplates lists the identifiers served by the embedded store and the
// files backing them.
var sampleTemplates = map[string]string{
	"invoice": "templates/invoice.html",
	"receipt": "templates/receipt.html",
}

// NewEmbeddedStore loads the sample templates from the embedded filesystem.
// It fails only if the binary was built without the template files, which is
// a programming error caught at startup.
func NewEmbeddedStore() (TemplateStore, error) {
	sources := make(map[string]string, len(sampleTemplates))
	for id, path := range sampleTemplates {
		raw, err := templateFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading embedded template %s: %w", path, err)
		}
		sources[id] = string(raw)
	}
	return &embeddedStore{sources: sources}, nil
}

// Lookup implements TemplateStore.
func (s *embeddedStore) Lookup(id string) (string, error) {
	source, ok := s.sources[id]
	if !ok {
		return "", types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundTemplate,
			fmt.Sprintf("template %q not found", id),
			nil,
			map[string]any{"template_id": id},
		)
	}
	return source, nil
}
