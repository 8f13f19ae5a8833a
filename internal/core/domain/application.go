package domain

import (
	"strings"
	"time"
)

const (
	DocumentTypeOfferLetter = "Offer Letter"

	SystemActorID = "system"
)

type Application struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	UserID        string        `json:"userId"`
	Destination   string        `json:"destination"`
	VisaType      string        `json:"visaType"`
	Documents     []Document    `json:"documents"`
	CurrentStatus Status        `json:"currentStatus"`
	StatusHistory []StatusEvent `json:"statusHistory"`
	AgentID       string        `json:"agentId,omitempty"`
	AgentName     string        `json:"agentName,omitempty"`
	AgentEmail    string        `json:"agentEmail,omitempty"`
	AcceptedAt    *time.Time    `json:"acceptedAt,omitempty"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

type Document struct {
	Type        string    `json:"type"`
	URL         string    `json:"url"`
	FileName    string    `json:"fileName,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size,omitempty"`
	UploadDate  time.Time `json:"uploadDate"`
}

// DocumentMetadata describes a stored file before it is attached to an application.
type DocumentMetadata struct {
	URL         string
	FileName    string
	ContentType string
	Size        int64
}

// StatusEvent is immutable once appended to Application.StatusHistory.
type StatusEvent struct {
	Status            Status    `json:"status"`
	Date              time.Time `json:"date"`
	Note              string    `json:"note"`
	TentativeDate     string    `json:"tentativeDate,omitempty"`
	RequiredDocuments []string  `json:"requiredDocuments,omitempty"`
	ActorID           string    `json:"actorId,omitempty"`
	ActorRole         Role      `json:"actorRole,omitempty"`
}

// AppendStatus appends event to the history and moves CurrentStatus to it.
func (a *Application) AppendStatus(event StatusEvent) {
	a.StatusHistory = append(a.StatusHistory, event)
	a.CurrentStatus = event.Status
	if event.Date.After(a.UpdatedAt) {
		a.UpdatedAt = event.Date
	}
}

func (a *Application) AppendDocument(doc Document) {
	a.Documents = append(a.Documents, doc)
	if doc.UploadDate.After(a.UpdatedAt) {
		a.UpdatedAt = doc.UploadDate
	}
}

// LatestRequirement returns the most recent "Additional Documents Needed" event
// that carries a non-empty document list. The latest date wins; on equal dates
// the event appended last wins.
func (a *Application) LatestRequirement() (StatusEvent, bool) {
	var (
		best  StatusEvent
		found bool
	)
	for _, event := range a.StatusHistory {
		if event.Status != StatusAdditionalDocumentsNeeded || len(event.RequiredDocuments) == 0 {
			continue
		}
		if !found || !event.Date.Before(best.Date) {
			best = event
			found = true
		}
	}
	return best, found
}

// MissingDocuments lists the required types not yet present among the uploaded
// documents. Types are compared case-insensitively after trimming.
func (a *Application) MissingDocuments(required []string) []string {
	uploaded := make(map[string]struct{}, len(a.Documents))
	for _, doc := range a.Documents {
		uploaded[DocumentTypeKey(doc.Type)] = struct{}{}
	}
	missing := make([]string, 0)
	for _, docType := range required {
		if _, ok := uploaded[DocumentTypeKey(docType)]; !ok {
			missing = append(missing, docType)
		}
	}
	return missing
}

func (a *Application) AssignedTo(agentID string) bool {
	return a.AgentID != "" && a.AgentID == agentID
}

// Clone returns a deep copy so callers can mutate without aliasing slices.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	out := *a
	out.Documents = append([]Document(nil), a.Documents...)
	out.StatusHistory = make([]StatusEvent, len(a.StatusHistory))
	for i, event := range a.StatusHistory {
		event.RequiredDocuments = append([]string(nil), event.RequiredDocuments...)
		out.StatusHistory[i] = event
	}
	if a.AcceptedAt != nil {
		acceptedAt := *a.AcceptedAt
		out.AcceptedAt = &acceptedAt
	}
	return &out
}

func DocumentTypeKey(docType string) string {
	return strings.ToLower(strings.TrimSpace(docType))
}

type ApplicationFilter struct {
	UserID            string
	// AgentID restricts to applications assigned to the agent.
	AgentID           string
	// IncludeUnassigned widens an AgentID filter to unassigned applications.
	IncludeUnassigned bool
	Status            Status
	Limit             int
}

// StatusChanged is published after every persisted status transition.
type StatusChanged struct {
	EventID       string    `json:"eventId"`
	ApplicationID string    `json:"applicationId"`
	UserID        string    `json:"userId"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	Note          string    `json:"note"`
	ActorRole     Role      `json:"actorRole,omitempty"`
	Automatic     bool      `json:"automatic"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Notification struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	UserID        string    `json:"userId"`
	Email         string    `json:"email"`
	Status        Status    `json:"status"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"createdAt"`
}
