package capture

import (
	"fmt"
	"time"

	"github.com/capture/backend/internal/domain/integration"
	"github.com/capture/backend/internal/domain/shared"
)

// ErrSettingsStoreDisabled is returned when settings are written while no
// settings store is configured.
var ErrSettingsStoreDisabled = shared.NewDomainError("SETTINGS_STORE_DISABLED", "Capture settings store is not configured")

// ComputationError is returned by a failed computation. It never accompanies
// a partial result.
type ComputationError struct {
	Kind    integration.ErrorKind
	Message string
	Elapsed time.Duration
	Err     error
}

func newComputationError(err error, elapsed time.Duration) *ComputationError {
	return &ComputationError{
		Kind:    integration.KindOf(err),
		Message: err.Error(),
		Elapsed: elapsed,
		Err:     err,
	}
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("capture computation failed after %s (%s): %s", e.Elapsed.Round(time.Millisecond), e.Kind, e.Message)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the computation later may succeed.
func (e *ComputationError) Retryable() bool {
	return e.Kind.Retryable()
}
