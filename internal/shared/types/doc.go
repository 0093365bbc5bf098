// Package types provides shared data structures for the extension engine.
//
// This package defines core types used across all engine components,
// ensuring type safety and consistent data structures.
//
// Core Types:
//   - Extension: Installed extension package
//   - Permission, PermissionSet: Capability vocabulary and membership
//   - ContentScript, InjectionScript: Script injection rules and results
//   - RequestDetails, RequestFilter, RequestAction: WebRequest lifecycle
//   - ExtensionMessage, MessageTarget, MessageSender: Messaging
//
// State Management:
//   - ExtensionState: Lifecycle enum (disabled, enabled, installing, error)
//   - RunAt: Content script injection timing
//
// Error Taxonomy:
//   - ErrNotFound, ErrAlreadyRegistered, ErrPermissionDenied,
//     ErrInvalidManifest, ErrInvalidExtension, ErrMessaging,
//     ErrContentScript
package types
