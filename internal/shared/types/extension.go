package types

// AllURLs is the sentinel pattern matching every syntactically valid URL.
const AllURLs = "<all_urls>"

// ExtensionState represents extension lifecycle states
type ExtensionState string

const (
	StateDisabled ExtensionState = "disabled"
	StateEnabled  ExtensionState = "enabled"
	// StateInstalling is the state of a parsed extension that has not
	// been registered yet.
	StateInstalling ExtensionState = "installing"
	// StateError is terminal until an explicit reset.
	StateError ExtensionState = "error"
)

// RunAt represents content script injection timing
type RunAt string

const (
	RunAtDocumentStart RunAt = "document_start"
	RunAtDocumentEnd   RunAt = "document_end"
	RunAtDocumentIdle  RunAt = "document_idle"
)

// ParseRunAt maps a manifest timing string to the enum. Absent or
// unrecognized values degrade to document_idle rather than erroring.
func ParseRunAt(s string) RunAt {
	switch RunAt(s) {
	case RunAtDocumentStart, RunAtDocumentEnd, RunAtDocumentIdle:
		return RunAt(s)
	default:
		return RunAtDocumentIdle
	}
}

// ScriptKind discriminates injected sources
type ScriptKind string

const (
	ScriptJS  ScriptKind = "js"
	ScriptCSS ScriptKind = "css"
)

// ContentScript is one declarative injection rule from a manifest.
type ContentScript struct {
	JS             []string `json:"js,omitempty"`
	CSS            []string `json:"css,omitempty"`
	Matches        []string `json:"matches"`
	ExcludeMatches []string `json:"exclude_matches,omitempty"`
	RunAt          RunAt    `json:"run_at"`
	AllFrames      bool     `json:"all_frames"`
}

// InjectionScript is the derived, ephemeral product of evaluating content
// script rules against one URL. One entry per source file.
type InjectionScript struct {
	ExtensionID string     `json:"extension_id"`
	Source      string     `json:"source"`
	Kind        ScriptKind `json:"kind"`
	RunAt       RunAt      `json:"run_at"`
	AllFrames   bool       `json:"all_frames"`
}

// BrowserAction describes a toolbar button contribution.
// Rendering is owned by the host shell; this is data only.
type BrowserAction struct {
	Title      string         `json:"title,omitempty"`
	Popup      string         `json:"popup,omitempty"`
	Icons      map[int]string `json:"icons,omitempty"`
	BadgeText  string         `json:"badge_text,omitempty"`
	BadgeColor string         `json:"badge_color,omitempty"`
}

// ContextMenuItem is a context-menu contribution, added programmatically
// after install rather than declared in the manifest.
type ContextMenuItem struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Contexts []string `json:"contexts,omitempty"`
	ParentID string   `json:"parent_id,omitempty"`
}

// ContentSecurityPolicy holds per-surface CSP strings.
type ContentSecurityPolicy struct {
	ExtensionPages string `json:"extension_pages,omitempty"`
	Sandbox        string `json:"sandbox,omitempty"`
}

// Extension represents an installed extension package. The registry owns
// these exclusively; content scripts and permissions live and die with it.
type Extension struct {
	ID                  string                 `json:"id"` // deterministic, derived from the package name
	Name                string                 `json:"name"`
	DisplayName         string                 `json:"display_name"`
	Version             string                 `json:"version"`
	Description         string                 `json:"description,omitempty"`
	ManifestVersion     int                    `json:"manifest_version"`
	State               ExtensionState         `json:"state"`
	Permissions         PermissionSet          `json:"permissions"`
	OptionalPermissions PermissionSet          `json:"optional_permissions"`
	Action              *BrowserAction         `json:"action,omitempty"`
	ContentScripts      []ContentScript        `json:"content_scripts,omitempty"`
	ContextMenus        []ContextMenuItem      `json:"context_menus,omitempty"`
	Icons               map[int]string         `json:"icons,omitempty"`
	CSP                 *ContentSecurityPolicy `json:"csp,omitempty"`
}

// RequiresConsent reports whether enabling the extension needs explicit
// user consent first.
func (e *Extension) RequiresConsent() bool {
	return len(e.Permissions.Dangerous()) > 0
}
