package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgomes/vibectx/vibectx"
)

// Event is one published message.
type Event struct {
	ID      string         `json:"id"`
	Topic   string         `json:"topic"`
	Source  string         `json:"source,omitempty"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// EventHandler receives every published event on the host side.
type EventHandler func(Event)

// Events is an in-process publish capability. It records what was published
// and forwards each event to the host's handlers. Events learns the runtime
// it serves when injected, so it is meant to be created per runtime.
type Events struct {
	mu        sync.Mutex
	source    string
	published []Event
	handlers  []EventHandler
	now       func() time.Time
}

func NewEvents(handlers ...EventHandler) *Events {
	return &Events{handlers: handlers, now: time.Now}
}

func (e *Events) OnInject(rt *vibectx.Runtime, attr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = rt.Name() + "." + attr
	return nil
}

func (e *Events) OnDestroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = ""
	return nil
}

// Publish records an event and returns its id. Options given as keywords
// are merged into the payload under "options".
func (e *Events) Publish(ctx context.Context, topic string, payload map[string]any, options ...map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("events.publish expects a topic")
	}
	if len(options) > 1 {
		return "", fmt.Errorf("events.publish expects topic and payload")
	}
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	if len(options) == 1 && len(options[0]) > 0 {
		body["options"] = options[0]
	}

	e.mu.Lock()
	ev := Event{ID: uuid.NewString(), Topic: topic, Source: e.source, Payload: body, At: e.now()}
	e.published = append(e.published, ev)
	handlers := e.handlers
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return ev.ID, nil
}

// Published returns the events on topic, oldest first. An empty topic
// returns every event.
func (e *Events) Published(topic string) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.published {
		if topic == "" || ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

func (e *Events) MethodDocs() map[string]string {
	return map[string]string{
		"publish":   "Publishes payload on topic and returns the event id.",
		"published": "Lists events already published on topic.",
	}
}
