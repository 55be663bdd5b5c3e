package report

import (
	"errors"
	"fmt"
)

var ErrEmptyDistribution = errors.New("empty_distribution")

// GenerationError is returned whenever a report could not be produced. No
// document bytes accompany it.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("report generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func generationError(stage string, err error) error {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &GenerationError{Stage: stage, Err: err}
}
