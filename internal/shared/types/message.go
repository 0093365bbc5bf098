package types

// TargetKind discriminates message routing targets.
type TargetKind string

const (
	TargetBackground        TargetKind = "background"
	TargetContentScript     TargetKind = "content_script"
	TargetAllContentScripts TargetKind = "all_content_scripts"
	TargetExtension         TargetKind = "extension"
	TargetPopup             TargetKind = "popup"
	TargetOptions           TargetKind = "options"
	TargetResponse          TargetKind = "response"
	TargetNative            TargetKind = "native"
)

// MessageTarget selects the delivery channel for a message.
type MessageTarget struct {
	Kind        TargetKind `json:"kind"`
	TabID       int        `json:"tab_id,omitempty"`
	ExtensionID string     `json:"extension_id,omitempty"`
	Application string     `json:"application,omitempty"`
}

// MessageSender identifies where a message came from. Provenance only;
// authorization is permission-based and checked by the host before the
// bus sees the message.
type MessageSender struct {
	ExtensionID string `json:"extension_id"`
	TabID       int    `json:"tab_id,omitempty"`
	FrameID     int    `json:"frame_id,omitempty"`
	URL         string `json:"url,omitempty"`
}

// ExtensionMessage is one unit of cross-context communication. The
// payload is opaque JSON; the engine never interprets it.
type ExtensionMessage struct {
	ID              uint64        `json:"id"`
	Target          MessageTarget `json:"target"`
	Payload         interface{}   `json:"payload,omitempty"`
	ExpectsResponse bool          `json:"expects_response"`
	Sender          MessageSender `json:"sender"`
}

// MessageResponse resolves a pending correlator with either a success
// payload or an error string.
type MessageResponse struct {
	Data interface{} `json:"data,omitempty"`
	Err  string      `json:"error,omitempty"`
}
