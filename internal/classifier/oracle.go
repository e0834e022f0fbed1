// Package classifier assigns one of the fixed categories to a message.
package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/brandon/mailsync/pkg/types"
)

// Oracle classifies a message by subject and body. Implementations return
// a valid category or an error, never an out-of-set label.
type Oracle interface {
	Classify(ctx context.Context, subject, body string) (types.Category, error)
}

// ClassificationError is returned when the oracle call fails or its answer
// is not one of the known categories.
type ClassificationError struct {
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err == nil {
		return "classification error: " + e.Reason
	}
	return fmt.Sprintf("classification error: %s: %v", e.Reason, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// IsClassificationError reports whether err is, or wraps, a ClassificationError.
func IsClassificationError(err error) bool {
	var classErr *ClassificationError
	return errors.As(err, &classErr)
}

// Disabled is the oracle used when no classifier is configured.
type Disabled struct{}

// Classify always returns Uncategorized.
func (Disabled) Classify(context.Context, string, string) (types.Category, error) {
	return types.CategoryUncategorized, nil
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, subject, body string) (types.Category, error)

func (f Func) Classify(ctx context.Context, subject, body string) (types.Category, error) {
	return f(ctx, subject, body)
}
