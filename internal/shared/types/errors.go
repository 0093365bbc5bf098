package types

import "errors"

// Terminal error surface of the engine. Component-local failures wrap
// these so callers can errors.Is against a stable taxonomy.
var (
	ErrNotFound          = errors.New("extension not found")
	ErrAlreadyRegistered = errors.New("extension already registered")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidManifest   = errors.New("invalid manifest")
	ErrInvalidExtension  = errors.New("invalid extension")
	ErrMessaging         = errors.New("messaging error")
	ErrContentScript     = errors.New("content script error")
)
