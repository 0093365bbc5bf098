// Package manifest turns declarative extension descriptors into validated
// Extension entities.
//
// Parsing is a pure function over the manifest JSON document with no I/O.
// Supported manifest versions are 2 and 3; v3's `action` key takes
// precedence over v2's `browser_action` when both are present.
//
// Failure modes are deliberately asymmetric: structural problems (missing
// name/version, unsupported version, bad JSON) reject the manifest, while
// data-quality problems degrade gracefully — an unrecognized run_at falls
// back to document_idle, non-numeric icon keys are dropped, unknown
// permission tokens become Unknown permissions.
package manifest
