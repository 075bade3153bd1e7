package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"docgen/internal/types"
)

// Validator wraps go-playground/validator for request DTO validation.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidateStruct validates the struct tags on v and translates failures into
// a single AppError with per-field details, suitable for the 400 envelope.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError means the argument was not a struct, which
		// is a programming error, not caller input.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		fields = append(fields, field)
		details[field] = fmt.Sprintf("failed %q validation", fe.Tag())
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"invalid request: "+strings.Join(fields, ", "),
		err,
		details,
	)
}
