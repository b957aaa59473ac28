package notification

import (
	"time"
)

// EventType identifies the domain transition an event reports.
type EventType string

const (
	TypeReviewRequest    EventType = "REVIEW_REQUEST"
	TypeReviewAssigned   EventType = "REVIEW_ASSIGNED"
	TypeReviewAccepted   EventType = "REVIEW_ACCEPTED"
	TypeReviewDeclined   EventType = "REVIEW_DECLINED"
	TypeReviewCompleted  EventType = "REVIEW_COMPLETED"
	TypeReviewExpired    EventType = "REVIEW_EXPIRED"
	TypeDocumentApproval EventType = "DOCUMENT_APPROVAL"
	TypeDocumentApproved EventType = "DOCUMENT_APPROVED"
	TypeDocumentRejected EventType = "DOCUMENT_REJECTED"
	TypeDocumentVerified EventType = "DOCUMENT_VERIFIED"
)

var knownTypes = map[EventType]struct{}{
	TypeReviewRequest:    {},
	TypeReviewAssigned:   {},
	TypeReviewAccepted:   {},
	TypeReviewDeclined:   {},
	TypeReviewCompleted:  {},
	TypeReviewExpired:    {},
	TypeDocumentApproval: {},
	TypeDocumentApproved: {},
	TypeDocumentRejected: {},
	TypeDocumentVerified: {},
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// Event is the durable record of a state change relevant to one user. Only
// ReadAt changes after creation, and only by the recipient.
type Event struct {
	ID              string                 `json:"id"`
	Type            EventType              `json:"type"`
	RecipientUserID string                 `json:"recipient_user_id"`
	Payload         map[string]interface{} `json:"payload"`
	CreatedAt       time.Time              `json:"created_at"`
	ReadAt          *time.Time             `json:"read_at"`
}

// Unread reports whether the recipient has not read the event yet.
func (e *Event) Unread() bool {
	return e.ReadAt == nil
}

// Clone returns a copy that can be handed to another goroutine.
func (e *Event) Clone() *Event {
	c := *e
	if e.Payload != nil {
		c.Payload = make(map[string]interface{}, len(e.Payload))
		for k, v := range e.Payload {
			c.Payload[k] = v
		}
	}
	if e.ReadAt != nil {
		t := *e.ReadAt
		c.ReadAt = &t
	}
	return &c
}

// MessageName is the stream event name a client switches on.
type MessageName string

const (
	MessageNotification MessageName = "notification"
	MessageUnreadCount  MessageName = "unread-count"
	MessageUpdated      MessageName = "updated"
)

// UnreadCount is the payload of an unread-count message.
type UnreadCount struct {
	Count int `json:"count"`
}

// Message is one frame delivered to a live connection. Data is an *Event for
// notification/updated and an UnreadCount for unread-count.
type Message struct {
	Name MessageName
	Data interface{}
}

// Page is one page of a user's notification history.
type Page struct {
	Items    []*Event `json:"items"`
	Total    int      `json:"total"`
	Unread   int      `json:"unread"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}
