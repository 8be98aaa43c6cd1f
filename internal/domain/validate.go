package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// Validate enforces interval_minutes ∈ [1,1440] and non-empty keyword/
// template pools before a video is admitted to the due-selection pool
// (spec.md §3). A video failing validation is a ConfigurationInvalid case
// per spec.md §7: skipped, never retried.
func (s VideoSettings) Validate() error {
	if err := structValidator.Struct(s); err != nil {
		return fmt.Errorf("op=domain.VideoSettings.Validate: %w: %s", ErrConfigurationInvalid, err.Error())
	}
	return nil
}
