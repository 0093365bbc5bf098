package manifest

import (
	"encoding/json"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/lumen-browser/extengine/internal/shared/types"
	"github.com/lumen-browser/extengine/internal/shared/utils"
)

// rawManifest mirrors the manifest JSON document. Unknown top-level keys
// are ignored by unmarshalling.
type rawManifest struct {
	Name                string             `json:"name"`
	ShortName           string             `json:"short_name"`
	Version             string             `json:"version"`
	Description         string             `json:"description"`
	ManifestVersion     int                `json:"manifest_version"`
	Permissions         []string           `json:"permissions"`
	OptionalPermissions []string           `json:"optional_permissions"`
	Action              *rawAction         `json:"action"`
	BrowserAction       *rawAction         `json:"browser_action"`
	ContentScripts      []rawContentScript `json:"content_scripts"`
	Icons               map[string]string  `json:"icons"`
	CSP                 json.RawMessage    `json:"content_security_policy"`
}

type rawAction struct {
	DefaultTitle string            `json:"default_title"`
	DefaultPopup string            `json:"default_popup"`
	DefaultIcon  map[string]string `json:"default_icon"`
}

type rawContentScript struct {
	JS             []string `json:"js"`
	CSS            []string `json:"css"`
	Matches        []string `json:"matches"`
	ExcludeMatches []string `json:"exclude_matches"`
	RunAt          string   `json:"run_at"`
	AllFrames      bool     `json:"all_frames"`
}

// rawCSP is the object form of content_security_policy.
type rawCSP struct {
	ExtensionPages string `json:"extension_pages"`
	Sandbox        string `json:"sandbox"`
}

// Parser converts manifest documents into Extension entities.
type Parser struct {
	ident *utils.ExtensionIdentifier
}

// NewParser creates a manifest parser.
func NewParser() *Parser {
	return &Parser{ident: utils.NewExtensionIdentifier(utils.DefaultHasher())}
}

// Parse validates a manifest document and builds the Extension. The
// result is mid-install; registering it with the manager completes the
// transition to disabled. Context menus start empty and are contributed
// programmatically after install.
func (p *Parser) Parse(content []byte) (*types.Extension, error) {
	var raw rawManifest
	if err := sonic.Unmarshal(content, &raw); err != nil {
		return nil, jsonError(err)
	}

	if raw.Name == "" {
		return nil, missingField("name")
	}
	if raw.Version == "" {
		return nil, missingField("version")
	}
	if raw.ManifestVersion != 2 && raw.ManifestVersion != 3 {
		return nil, unsupportedVersion(raw.ManifestVersion)
	}

	perms := types.NewPermissionSet()
	for _, token := range raw.Permissions {
		perms.Add(types.ParsePermission(token))
	}
	optional := types.NewPermissionSet()
	for _, token := range raw.OptionalPermissions {
		optional.Add(types.ParsePermission(token).AsOptional())
	}

	displayName := raw.ShortName
	if displayName == "" {
		displayName = raw.Name
	}

	csp, err := parseCSP(raw.CSP)
	if err != nil {
		return nil, err
	}

	ext := &types.Extension{
		ID:                  p.ident.DeriveID(raw.Name),
		Name:                raw.Name,
		DisplayName:         displayName,
		Version:             raw.Version,
		Description:         raw.Description,
		ManifestVersion:     raw.ManifestVersion,
		State:               types.StateInstalling,
		Permissions:         perms,
		OptionalPermissions: optional,
		Action:              parseAction(raw),
		ContentScripts:      parseContentScripts(raw.ContentScripts),
		ContextMenus:        []types.ContextMenuItem{},
		Icons:               parseIcons(raw.Icons),
		CSP:                 csp,
	}
	return ext, nil
}

// parseAction resolves the action descriptor. The v3 `action` key wins
// over v2's `browser_action` when both are present.
func parseAction(raw rawManifest) *types.BrowserAction {
	src := raw.Action
	if src == nil {
		src = raw.BrowserAction
	}
	if src == nil {
		return nil
	}
	return &types.BrowserAction{
		Title: src.DefaultTitle,
		Popup: src.DefaultPopup,
		Icons: parseIcons(src.DefaultIcon),
	}
}

func parseContentScripts(raws []rawContentScript) []types.ContentScript {
	if len(raws) == 0 {
		return nil
	}
	out := make([]types.ContentScript, 0, len(raws))
	for _, r := range raws {
		out = append(out, types.ContentScript{
			JS:             r.JS,
			CSS:            r.CSS,
			Matches:        r.Matches,
			ExcludeMatches: r.ExcludeMatches,
			RunAt:          types.ParseRunAt(r.RunAt),
			AllFrames:      r.AllFrames,
		})
	}
	return out
}

// parseIcons keeps only entries whose keys parse as pixel sizes.
func parseIcons(raw map[string]string) map[int]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[int]string, len(raw))
	for key, path := range raw {
		size, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out[size] = path
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseCSP accepts either a bare string (extension pages only) or an
// object with extension_pages/sandbox keys.
func parseCSP(raw json.RawMessage) (*types.ContentSecurityPolicy, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		return &types.ContentSecurityPolicy{ExtensionPages: s}, nil
	}
	var obj rawCSP
	if err := sonic.Unmarshal(raw, &obj); err != nil {
		return nil, invalidValue("content_security_policy", "expected string or object")
	}
	return &types.ContentSecurityPolicy{
		ExtensionPages: obj.ExtensionPages,
		Sandbox:        obj.Sandbox,
	}, nil
}

// Parse is a convenience wrapper around a fresh parser.
func Parse(content []byte) (*types.Extension, error) {
	return NewParser().Parse(content)
}
