package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ArtifactKind says how a systems map is delivered.
type ArtifactKind string

const (
	ArtifactRemoteURL ArtifactKind = "remote_url"
	ArtifactInline    ArtifactKind = "inline"
)

// Artifact is a systems map reference. The kind is fixed when the raw value
// is parsed; nothing downstream looks at the raw string again.
type Artifact struct {
	Kind      ArtifactKind `json:"kind"`
	URL       string       `json:"url,omitempty"`
	MediaType string       `json:"media_type,omitempty"`
	Payload   string       `json:"-"`
}

var ErrEmptyPayload = errors.New("inline image payload is empty")

// ParseArtifact classifies raw. Absolute http(s) URLs are remote. Anything
// else is inline data, where the text after the last comma is the base64
// payload (the whole string when there is no comma). ok is false for blank
// input.
func ParseArtifact(raw string) (Artifact, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Artifact{}, false
	}

	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return Artifact{Kind: ArtifactRemoteURL, URL: raw}, true
	}

	a := Artifact{Kind: ArtifactInline, MediaType: "image/png"}
	if idx := strings.LastIndex(raw, ","); idx >= 0 {
		a.Payload = raw[idx+1:]
		if mt := dataURLMediaType(raw[:idx]); mt != "" {
			a.MediaType = mt
		}
	} else {
		a.Payload = raw
	}
	return a, true
}

// dataURLMediaType extracts "image/png" from "data:image/png;base64".
func dataURLMediaType(header string) string {
	if !strings.HasPrefix(strings.ToLower(header), "data:") {
		return ""
	}
	mt := header[len("data:"):]
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = mt[:idx]
	}
	return strings.TrimSpace(mt)
}

// Decode returns the inline image bytes. Standard, raw and URL-safe base64
// alphabets are accepted.
func (a Artifact) Decode() ([]byte, error) {
	if a.Kind != ArtifactInline {
		return nil, fmt.Errorf("artifact is %s, not inline", a.Kind)
	}
	payload := strings.Join(strings.Fields(a.Payload), "")
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(payload)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("invalid base64 image payload: %w", firstErr)
}

// Ref is a short human-readable identity for logs and notifications.
func (a Artifact) Ref() string {
	if a.Kind == ArtifactRemoteURL {
		return a.URL
	}
	return fmt.Sprintf("inline %s (%d chars)", a.MediaType, len(a.Payload))
}

// DataURL re-encodes image bytes for clipboard and inline display.
func DataURL(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "image/png"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DiagramStatus is the view model's lifecycle state.
type DiagramStatus string

const (
	DiagramEmpty   DiagramStatus = "empty"
	DiagramLoading DiagramStatus = "loading"
	DiagramReady   DiagramStatus = "ready"
	DiagramError   DiagramStatus = "error"
)

// Zoom limits shared by the button and gesture paths.
const (
	MinScale  = 0.5
	MaxScale  = 4.0
	ZoomStep  = 0.5
	BaseScale = 1.0

	// scaleUnits is the resolution every stored scale is rounded to.
	scaleUnits = 1e6
)

// ViewTransform is the single authoritative diagram transform.
type ViewTransform struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translate_x"`
	TranslateY float64 `json:"translate_y"`
	Revision   uint64  `json:"revision"`
}

// IdentityTransform is scale 1 with no translation.
func IdentityTransform() ViewTransform {
	return ViewTransform{Scale: BaseScale}
}

// ClampScale bounds s to [MinScale, MaxScale] and rounds it to a millionth,
// so a zoom step followed by its inverse lands on the same float64.
func ClampScale(s float64) float64 {
	if math.IsNaN(s) {
		return BaseScale
	}
	if s < MinScale {
		return MinScale
	}
	if s > MaxScale {
		return MaxScale
	}
	return math.Round(s*scaleUnits) / scaleUnits
}

// DiagramState is what the presentation layer renders for the systems map.
type DiagramState struct {
	Status     DiagramStatus `json:"status"`
	Artifact   *Artifact     `json:"artifact,omitempty"`
	Image      []byte        `json:"-"`
	ImageType  string        `json:"image_type,omitempty"`
	Error      string        `json:"error,omitempty"`
	Generation uint64        `json:"generation"`
	Transform  ViewTransform `json:"transform"`
}

// ExportOutcome describes where an exported diagram ended up.
type ExportOutcome struct {
	Sink     string `json:"sink"`
	Location string `json:"location,omitempty"`
	Bytes    int    `json:"bytes"`
	Note     string `json:"note,omitempty"`
}
