package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types pushed to presentation clients.
const (
	EventConversationUpdated   = "conversation_updated"
	EventInputUpdated          = "input_updated"
	EventDocumentsUpdated      = "documents_updated"
	EventDiagramUpdated        = "diagram_updated"
	EventTransformUpdated      = "transform_updated"
	EventBusyChanged           = "busy_changed"
	EventNotification          = "notification"
	EventNotificationDismissed = "notification_dismissed"
	EventSessionStarted        = "session_started"

	// EventSnapshot is sent once to each new WebSocket connection.
	EventSnapshot = "snapshot"
)

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Activity names one self-serialized component.
type Activity string

const (
	ActivityExchange Activity = "exchange"
	ActivityUpload   Activity = "upload"
	ActivityExport   Activity = "export"
)

type BusyFlags struct {
	Exchange bool `json:"exchange"`
	Upload   bool `json:"upload"`
	Export   bool `json:"export"`
}

type ConversationUpdate struct {
	Conversation []Message `json:"conversation"`
	Analysis     string    `json:"analysis"`
	HasPlot      bool      `json:"has_plot"`
}

type DocumentsUpdate struct {
	Documents []DocumentRef `json:"documents"`
	Added     []string      `json:"added"`
}

type DiagramUpdate struct {
	Status     DiagramStatus `json:"status"`
	Artifact   *Artifact     `json:"artifact,omitempty"`
	Error      string        `json:"error,omitempty"`
	Generation uint64        `json:"generation"`
}

// NotificationKind groups user-facing errors by the component that raised them.
type NotificationKind string

const (
	NotifySession  NotificationKind = "session"
	NotifyExchange NotificationKind = "exchange"
	NotifyUpload   NotificationKind = "upload"
	NotifyArtifact NotificationKind = "artifact"
	NotifyExport   NotificationKind = "export"
	NotifyInfo     NotificationKind = "info"
)

// Notification is a transient, dismissible message for the user.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// Snapshot is the whole presentation state at one instant.
type Snapshot struct {
	SessionID     string         `json:"session_id,omitempty"`
	Conversation  []Message      `json:"conversation"`
	Analysis      string         `json:"analysis"`
	Plot          *Artifact      `json:"plot,omitempty"`
	Input         string         `json:"input"`
	Documents     []DocumentRef  `json:"documents"`
	Diagram       DiagramState   `json:"diagram"`
	Busy          BusyFlags      `json:"busy"`
	Notifications []Notification `json:"notifications"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
