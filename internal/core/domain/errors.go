package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrTemporary          = errors.New("temporary failure")
	ErrModelNotFound      = errors.New("model version not found")
	ErrModelCorrupt       = errors.New("model artifact corrupt")
	ErrBackendUnavailable = errors.New("prediction backend unavailable")
	ErrJobNotFound        = errors.New("job not found")
	ErrDatasetNotFound    = errors.New("dataset not found")
	ErrMissingLabelColumn = errors.New("missing 'sentiment' column")
	ErrMissingTextColumn  = errors.New("missing 'text' column")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
