package capture

import "github.com/capture/backend/internal/domain/shared"

// Capture errors
var (
	ErrNoGuestSKUs      = shared.NewDomainError("NO_GUEST_SKUS", "At least one guest-count SKU is required")
	ErrSettingsNotFound = shared.NewDomainError("SETTINGS_NOT_FOUND", "Capture settings have not been configured")
)
