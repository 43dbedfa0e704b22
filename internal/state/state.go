// Package state holds the client's single, owned application state.
//
// Every mutation is one atomic replace-or-append under the state lock and is
// followed by an event on the Publisher, so presentation clients observe the
// change before they act on it. Getters return copies.
package state

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"systemsmap-client/internal/models"
)

// Publisher receives an event after every mutation.
type Publisher interface {
	Publish(msg models.WSMessage)
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.WSMessage) {}

// maxNotifications bounds the undismissed notification list.
const maxNotifications = 50

type AppState struct {
	mu sync.RWMutex

	sessionID     string
	conversation  []models.Message
	analysis      string
	plot          *models.Artifact
	input         string
	documents     []models.DocumentRef
	diagram       models.DiagramState
	busy          models.BusyFlags
	notifications []models.Notification

	publisher Publisher
	now       func() time.Time
}

func New(publisher Publisher) *AppState {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &AppState{
		conversation: []models.Message{},
		documents:    []models.DocumentRef{},
		diagram: models.DiagramState{
			Status:    models.DiagramEmpty,
			Transform: models.IdentityTransform(),
		},
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *AppState) publish(eventType string, payload interface{}) {
	s.publisher.Publish(models.WSMessage{Type: eventType, Payload: payload})
}

// ──── Session ────

func (s *AppState) SetSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()

	s.publish(models.EventSessionStarted, map[string]string{"session_id": id})
}

func (s *AppState) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// ──── Busy guards ────

// TryBegin marks activity as running. It returns false, changing nothing,
// when the activity is already running.
func (s *AppState) TryBegin(activity models.Activity) bool {
	s.mu.Lock()
	flag := s.busyFlag(activity)
	if flag == nil || *flag {
		s.mu.Unlock()
		return false
	}
	*flag = true
	busy := s.busy
	s.mu.Unlock()

	s.publish(models.EventBusyChanged, busy)
	return true
}

// End clears the busy flag set by a successful TryBegin.
func (s *AppState) End(activity models.Activity) {
	s.mu.Lock()
	flag := s.busyFlag(activity)
	if flag == nil || !*flag {
		s.mu.Unlock()
		return
	}
	*flag = false
	busy := s.busy
	s.mu.Unlock()

	s.publish(models.EventBusyChanged, busy)
}

func (s *AppState) Busy() models.BusyFlags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

func (s *AppState) busyFlag(activity models.Activity) *bool {
	switch activity {
	case models.ActivityExchange:
		return &s.busy.Exchange
	case models.ActivityUpload:
		return &s.busy.Upload
	case models.ActivityExport:
		return &s.busy.Export
	}
	return nil
}

// ──── Conversation ────

// ReplaceConversation swaps in the server's history and clears the input.
func (s *AppState) ReplaceConversation(msgs []models.Message, analysis string, plot *models.Artifact) {
	history := append([]models.Message(nil), msgs...)
	if history == nil {
		history = []models.Message{}
	}

	s.mu.Lock()
	s.conversation = history
	s.analysis = analysis
	s.plot = plot
	inputChanged := s.input != ""
	s.input = ""
	update := models.ConversationUpdate{
		Conversation: append([]models.Message(nil), history...),
		Analysis:     analysis,
		HasPlot:      plot != nil,
	}
	s.mu.Unlock()

	s.publish(models.EventConversationUpdated, update)
	if inputChanged {
		s.publish(models.EventInputUpdated, map[string]string{"input": ""})
	}
}

func (s *AppState) Conversation() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message{}, s.conversation...)
}

func (s *AppState) Plot() *models.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.plot == nil {
		return nil
	}
	p := *s.plot
	return &p
}

func (s *AppState) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()

	s.publish(models.EventInputUpdated, map[string]string{"input": text})
}

func (s *AppState) Input() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.input
}

// ──── Documents ────

// AppendDocuments adds names in order and returns the full list.
func (s *AppState) AppendDocuments(names []string) []models.DocumentRef {
	if len(names) == 0 {
		return s.Documents()
	}

	s.mu.Lock()
	for _, name := range names {
		s.documents = append(s.documents, models.DocumentRef{DisplayName: name})
	}
	docs := append([]models.DocumentRef(nil), s.documents...)
	s.mu.Unlock()

	s.publish(models.EventDocumentsUpdated, models.DocumentsUpdate{
		Documents: docs,
		Added:     append([]string(nil), names...),
	})
	return docs
}

func (s *AppState) Documents() []models.DocumentRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.DocumentRef{}, s.documents...)
}

// ──── Diagram ────

// Diagram returns a copy of the diagram state, image bytes included.
func (s *AppState) Diagram() models.DiagramState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyDiagram(s.diagram)
}

// UpdateDiagram runs fn on the live diagram state under the lock. When fn
// returns false nothing is published. The returned state is a copy taken
// after fn ran.
func (s *AppState) UpdateDiagram(fn func(d *models.DiagramState) bool) models.DiagramState {
	s.mu.Lock()
	before := s.diagram
	changed := fn(&s.diagram)
	after := copyDiagram(s.diagram)
	s.mu.Unlock()

	if !changed {
		return after
	}
	if after.Transform != before.Transform {
		s.publish(models.EventTransformUpdated, after.Transform)
	}
	if after.Status != before.Status || after.Generation != before.Generation ||
		after.Error != before.Error || len(after.Image) != len(before.Image) {
		s.publish(models.EventDiagramUpdated, models.DiagramUpdate{
			Status:     after.Status,
			Artifact:   after.Artifact,
			Error:      after.Error,
			Generation: after.Generation,
		})
	}
	return after
}

func copyDiagram(d models.DiagramState) models.DiagramState {
	out := d
	if d.Artifact != nil {
		a := *d.Artifact
		out.Artifact = &a
	}
	if d.Image != nil {
		out.Image = append([]byte(nil), d.Image...)
	}
	return out
}

// ──── Notifications ────

// Notify records a user-facing message and returns it.
func (s *AppState) Notify(kind models.NotificationKind, message string) models.Notification {
	n := models.Notification{
		ID:        uuid.New(),
		Kind:      kind,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	if len(s.notifications) > maxNotifications {
		s.notifications = append([]models.Notification(nil), s.notifications[len(s.notifications)-maxNotifications:]...)
	}
	s.mu.Unlock()

	s.publish(models.EventNotification, n)
	return n
}

// Dismiss removes a notification. It reports whether id was present.
func (s *AppState) Dismiss(id uuid.UUID) bool {
	s.mu.Lock()
	found := false
	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.publish(models.EventNotificationDismissed, map[string]string{"id": id.String()})
	}
	return found
}

func (s *AppState) Notifications() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Notification{}, s.notifications...)
}

// Snapshot returns the whole state for an initial render.
func (s *AppState) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var plot *models.Artifact
	if s.plot != nil {
		p := *s.plot
		plot = &p
	}
	return models.Snapshot{
		SessionID:     s.sessionID,
		Conversation:  append([]models.Message{}, s.conversation...),
		Analysis:      s.analysis,
		Plot:          plot,
		Input:         s.input,
		Documents:     append([]models.DocumentRef{}, s.documents...),
		Diagram:       copyDiagram(s.diagram),
		Busy:          s.busy,
		Notifications: append([]models.Notification{}, s.notifications...),
	}
}
