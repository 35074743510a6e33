package odm

import (
	"context"
	"fmt"
	"slices"

	"foundry/util/manifest"
)

// Document event types.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
	// EventAll subscribes to every event type.
	EventAll = "*"
)

// Event is delivered to subscribers after a document changes.
type Event struct {
	Type     string
	Document string
	ID       any
	Data     any
}

// SubscriberFunc handles a document event.
type SubscriberFunc func(ctx context.Context, e Event) error

// Subscriber binds a registered handler to events of one document.
//
//	name: audit-users
//	document: user
//	events: [insert, delete]
//	handler: audit
type Subscriber struct {
	Name     string   `yaml:"name" json:"name"`
	Document string   `yaml:"document" json:"document"`
	Events   []string `yaml:"events" json:"events"`
	Handler  string   `yaml:"handler" json:"handler"`

	Path string `yaml:"-" json:"path"`

	fn SubscriberFunc
}

// Wants reports whether the subscriber receives e.
func (s *Subscriber) Wants(e Event) bool {
	if s.Document != e.Document {
		return false
	}
	return slices.Contains(s.Events, EventAll) || slices.Contains(s.Events, e.Type)
}

func loadSubscriber(f manifest.File) (*Subscriber, error) {
	s := &Subscriber{}
	if err := manifest.Decode(f.Path, s); err != nil {
		return nil, err
	}
	s.Path = f.Path
	if s.Name == "" {
		s.Name = f.Name
	}
	if s.Handler == "" {
		s.Handler = s.Name
	}
	if s.Document == "" {
		return nil, fmt.Errorf("subscriber %s (%s): document is required", s.Name, f.Path)
	}
	if len(s.Events) == 0 {
		s.Events = []string{EventAll}
	}
	for _, e := range s.Events {
		switch e {
		case EventInsert, EventUpdate, EventDelete, EventAll:
		default:
			return nil, fmt.Errorf("subscriber %s (%s): unknown event %q", s.Name, f.Path, e)
		}
	}
	return s, nil
}
