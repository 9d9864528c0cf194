package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue contract shared by the user service (publisher) and the post
// service (consumer). Both sides must reference these constants.
const (
	// QueueName is the subject (NATS) or queue (AMQP) carrying user events.
	QueueName = "users.events"
	// StreamName is the JetStream stream that persists QueueName.
	StreamName = "USERS"
)

// Kind is the literal tag carried in the "event" field.
type Kind string

const (
	KindUserSignup Kind = "user_signup"
	KindUserDelete Kind = "user_delete"
)

var ErrMalformedEvent = errors.New("malformed event")

// Metadata is the envelope shared by every user event.
type Metadata struct {
	EventID   string
	Version   int64
	Timestamp int64
	Source    string
}

// Event is one of UserSignup or UserDelete.
type Event interface {
	Kind() Kind
	// Key returns the user id the event is about.
	Key() string
	Meta() Metadata
	sealed()
}

// UserSignup is published after a user record is committed.
type UserSignup struct {
	Metadata Metadata
	UserID   string
	Email    string
	Name     string
}

func (e UserSignup) Kind() Kind     { return KindUserSignup }
func (e UserSignup) Key() string    { return e.UserID }
func (e UserSignup) Meta() Metadata { return e.Metadata }
func (UserSignup) sealed()          {}

// UserDelete is published after a user record is removed.
type UserDelete struct {
	Metadata Metadata
	UserID   string
}

func (e UserDelete) Kind() Kind     { return KindUserDelete }
func (e UserDelete) Key() string    { return e.UserID }
func (e UserDelete) Meta() Metadata { return e.Metadata }
func (UserDelete) sealed()          {}

// wireEvent is the JSON body on the queue.
type wireEvent struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Event     Kind   `json:"event"`
	EventID   string `json:"eventId,omitempty"`
	Version   int64  `json:"version,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Source    string `json:"source,omitempty"`
}

// NewMetadata stamps a fresh event id and timestamp.
func NewMetadata(source string, version int64) Metadata {
	return Metadata{
		EventID:   uuid.NewString(),
		Version:   version,
		Timestamp: time.Now().Unix(),
		Source:    source,
	}
}

// Encode serializes an event into its queue body.
func Encode(e Event) ([]byte, error) {
	m := e.Meta()
	w := wireEvent{
		UserID:    e.Key(),
		Event:     e.Kind(),
		EventID:   m.EventID,
		Version:   m.Version,
		Timestamp: m.Timestamp,
		Source:    m.Source,
	}
	switch ev := e.(type) {
	case UserSignup:
		w.Email = ev.Email
		w.Name = ev.Name
	case UserDelete:
	default:
		return nil, fmt.Errorf("encode %T: %w", e, ErrMalformedEvent)
	}
	if w.UserID == "" {
		return nil, fmt.Errorf("encode %s: missing userId: %w", w.Event, ErrMalformedEvent)
	}
	return json.Marshal(w)
}

// Decode parses a queue body into one of the known variants. Anything that
// does not parse is reported as ErrMalformedEvent.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if w.Event == "" {
		return nil, fmt.Errorf("%w: missing event tag", ErrMalformedEvent)
	}
	if w.UserID == "" {
		return nil, fmt.Errorf("%w: %s missing userId", ErrMalformedEvent, w.Event)
	}

	meta := Metadata{
		EventID:   w.EventID,
		Version:   w.Version,
		Timestamp: w.Timestamp,
		Source:    w.Source,
	}

	switch w.Event {
	case KindUserSignup:
		if w.Email == "" || w.Name == "" {
			return nil, fmt.Errorf("%w: user_signup missing email or name", ErrMalformedEvent)
		}
		return UserSignup{Metadata: meta, UserID: w.UserID, Email: w.Email, Name: w.Name}, nil
	case KindUserDelete:
		return UserDelete{Metadata: meta, UserID: w.UserID}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event tag %q", ErrMalformedEvent, w.Event)
	}
}
