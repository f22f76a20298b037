// Package stream implements the Real-time Log Stream component: a
// per-project broadcast hub fed by the "new_log" database notification,
// with filter pushdown and bounded per-subscriber buffering.
package stream

import (
	"context"
	"strconv"
	"sync"

	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
	"github.com/sobshdev/altenia/pkg/pgnotify"
)

// subscriberBuffer bounds how many undelivered log entries a slow
// subscriber may accumulate; further entries for it are dropped while the
// buffer is full, so one stalled client cannot back-pressure the whole hub.
const subscriberBuffer = 256

// Filter narrows a subscription to a subset of a project's log stream.
type Filter struct {
	Levels []telemetry.LogLevel
	Source string
}

func (f Filter) matches(entry *telemetry.LogEntry) bool {
	if f.Source != "" && entry.Source != f.Source {
		return false
	}
	if len(f.Levels) == 0 {
		return true
	}
	for _, l := range f.Levels {
		if l == entry.Level {
			return true
		}
	}
	return false
}

type subscriber struct {
	id     string
	filter Filter
	ch     chan *telemetry.LogEntry
}

// Hub fans out newly ingested log entries to subscribers scoped to a single
// project, filtering server-side before delivery.
type Hub struct {
	projectID project.ID
	logger    *logging.Logger

	mu   sync.RWMutex
	subs map[string]*subscriber
	seq  int
}

// NewHub constructs a broadcast hub for a single project's log stream.
func NewHub(projectID project.ID, logger *logging.Logger) *Hub {
	return &Hub{
		projectID: projectID,
		logger:    logger,
		subs:      make(map[string]*subscriber),
	}
}

// Publish delivers entry to every subscriber whose filter matches it. A
// subscriber whose channel is full is skipped for this entry rather than
// blocking the publisher.
func (h *Hub) Publish(entry *telemetry.LogEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.filter.matches(entry) {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
			if h.logger != nil {
				h.logger.Warn(context.Background(), "log stream subscriber buffer full, dropping entry", map[string]interface{}{
					"project_id":    string(h.projectID),
					"subscriber_id": sub.id,
				})
			}
		}
	}
}

// Subscribe registers a new subscriber and returns its delivery channel and
// an unsubscribe function. The channel is closed when Unsubscribe is called.
func (h *Hub) Subscribe(filter Filter) (<-chan *telemetry.LogEntry, func()) {
	h.mu.Lock()
	h.seq++
	id := strconv.Itoa(h.seq)
	sub := &subscriber{id: id, filter: filter, ch: make(chan *telemetry.LogEntry, subscriberBuffer)}
	h.subs[id] = sub
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
	}
	return sub.ch, unsubscribe
}

// SubscriberCount reports how many active subscribers the hub has, for
// metrics and shutdown bookkeeping.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Manager owns one Hub per project and wires each to the "new_log" table
// change notification, so a single pgnotify listener fans out to every
// project's subscribers.
type Manager struct {
	bus    *pgnotify.Bus
	logger *logging.Logger
	decode func(row map[string]interface{}) (*telemetry.LogEntry, error)

	mu    sync.Mutex
	hubs  map[project.ID]*Hub
	subID *pgnotify.TableSubscription
}

// NewManager wires a Manager to the shared pgnotify bus. decode converts
// the raw NEW row payload of a "logs" table INSERT into a LogEntry.
func NewManager(bus *pgnotify.Bus, logger *logging.Logger, decode func(row map[string]interface{}) (*telemetry.LogEntry, error)) (*Manager, error) {
	m := &Manager{
		bus:    bus,
		logger: logger,
		decode: decode,
		hubs:   make(map[project.ID]*Hub),
	}

	sub, err := bus.OnInsert("logs", func(ctx context.Context, newRow map[string]interface{}) error {
		entry, err := m.decode(newRow)
		if err != nil {
			if m.logger != nil {
				m.logger.WithError(err).Warn("failed to decode new_log notification payload")
			}
			return nil
		}
		m.hubFor(entry.ProjectID).Publish(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.subID = sub
	return m, nil
}

// HubFor returns (creating if necessary) the broadcast hub for a project.
func (m *Manager) HubFor(projectID project.ID) *Hub {
	return m.hubFor(projectID)
}

func (m *Manager) hubFor(projectID project.ID) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hubs[projectID]
	if !ok {
		h = NewHub(projectID, m.logger)
		m.hubs[projectID] = h
	}
	return h
}

// Close tears down the underlying table subscription.
func (m *Manager) Close() error {
	if m.subID == nil {
		return nil
	}
	return m.bus.UnsubscribeTable(m.subID)
}
