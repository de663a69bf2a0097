package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/volume-sync/vsc/internal/config"
	"github.com/volume-sync/vsc/internal/dispatch"
)

// Event type names on the wire.
const (
	EventReady      = "ready"
	EventHeartbeat  = "heartbeat"
	EventTaskResult = "task_result"
)

// Event is one hub event with SSE formatting.
type Event struct {
	ID   int64       `json:"id,omitempty"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client represents an SSE client connection. Events is never closed;
// cancelling Context is the only disconnect signal, so publishers can
// always select on the channel safely.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Request *http.Request
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Events  chan Event
	mu      sync.Mutex // Protect Writer access
}

// Hub distributes task completion events two ways: synchronously to
// in-process subscribers (the dispatcher's event source), and buffered to
// SSE clients with Last-Event-ID resume.
//
// LOCK ORDERING (if multiple locks are ever used):
// 1. h.mu (Hub's RWMutex) - protects the clients map
// 2. h.handlersMu - protects the local handler list and serializes local delivery
// 3. EventBuffer.mu / Client locks - leaf locks
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	// Monotonic event id counter.
	nextID atomic.Int64

	// In-process completion handlers, delivered in publish order.
	handlersMu sync.Mutex
	handlers   []func(dispatch.Result)

	buffer *EventBuffer
	config *config.Config

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Compile-time assertion that Hub is a dispatch event source.
var _ dispatch.EventSource = (*Hub)(nil)

// EventBuffer maintains a circular buffer of events for replay.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewHub creates a new telemetry hub with the specified configuration.
func NewHub(cfg *config.Config) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  NewEventBuffer(cfg.Telemetry.EventBufferSize),
		config:  cfg,
		done:    make(chan struct{}),
	}
}

// SubscribeTaskResults registers an in-process handler for every future
// task_result event. Handlers run synchronously on the publisher's
// goroutine, one event at a time, in publish order.
func (h *Hub) SubscribeTaskResults(ctx context.Context, handler func(dispatch.Result)) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	select {
	case <-h.done:
		return fmt.Errorf("hub is stopped")
	default:
	}

	h.handlersMu.Lock()
	h.handlers = append(h.handlers, handler)
	h.handlersMu.Unlock()
	return nil
}

// PublishTaskResult publishes a task completion to in-process handlers and
// SSE clients.
func (h *Hub) PublishTaskResult(res dispatch.Result) error {
	// Local delivery first, under handlersMu so concurrent publishers
	// cannot reorder events as seen by the dispatcher.
	h.handlersMu.Lock()
	for _, handler := range h.handlers {
		handler(res)
	}
	h.handlersMu.Unlock()

	return h.Publish(Event{Type: EventTaskResult, Data: res})
}

// Publish fans an event out to all connected SSE clients.
func (h *Hub) Publish(event Event) error {
	if event.ID == 0 {
		event.ID = h.nextID.Inc()
	}

	if event.Type != EventHeartbeat {
		h.buffer.AddEvent(event)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case <-client.Context.Done():
			continue
		case <-h.done:
			return nil
		case client.Events <- event:
		case <-time.After(100 * time.Millisecond):
			// Drop event if client is slow to prevent blocking
		}
	}

	return nil
}

// Subscribe handles SSE client subscription with Last-Event-ID resume support.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	clientCtx, cancel := context.WithCancel(ctx)
	clientID := fmt.Sprintf("client_%d", time.Now().UnixNano())

	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	client := &Client{
		ID:      clientID,
		Writer:  w,
		Request: r,
		Context: clientCtx,
		Cancel:  cancel,
		LastID:  lastEventID,
		Events:  make(chan Event, 100),
	}

	h.mu.Lock()
	h.clients[clientID] = client
	h.mu.Unlock()

	if err := h.sendReadyEvent(client); err != nil {
		h.unregisterClient(clientID)
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	if lastEventID > 0 {
		if err := h.replayEvents(client, lastEventID); err != nil {
			h.unregisterClient(clientID)
			return fmt.Errorf("failed to replay events: %w", err)
		}
	}

	h.mu.Lock()
	if len(h.clients) == 1 && h.heartbeatTicker == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()

	// Blocks until the client disconnects.
	h.handleClient(client)

	return nil
}

// sendReadyEvent sends the initial ready event to a client.
func (h *Hub) sendReadyEvent(client *Client) error {
	readyEvent := Event{
		ID:   h.nextID.Inc(),
		Type: EventReady,
		Data: map[string]interface{}{
			"ts": time.Now().UTC().Format(time.RFC3339),
		},
	}
	return h.sendEventToClient(client, readyEvent)
}

// replayEvents replays buffered events newer than lastEventID.
func (h *Hub) replayEvents(client *Client, lastEventID int64) error {
	for _, event := range h.buffer.GetEventsAfter(lastEventID) {
		if err := h.sendEventToClient(client, event); err != nil {
			return err
		}
	}
	return nil
}

// sendEventToClient sends a single event to a client via SSE.
func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", string(data)); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	return nil
}

// handleClient manages a client connection and event delivery.
func (h *Hub) handleClient(client *Client) {
	defer h.unregisterClient(client.ID)

	for {
		select {
		case <-client.Context.Done():
			return
		default:
		}

		timeout := time.NewTimer(100 * time.Millisecond)
		select {
		case <-client.Context.Done():
			timeout.Stop()
			return
		case <-timeout.C:
			continue
		case event := <-client.Events:
			timeout.Stop()
			if err := h.sendEventToClient(client, event); err != nil {
				return
			}
		}
	}
}

// unregisterClient removes a client from the hub.
func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.clients[clientID]; exists {
		client.Cancel()
		delete(h.clients, clientID)

		if len(h.clients) == 0 && h.heartbeatTicker != nil {
			h.heartbeatTicker.Stop()
			h.heartbeatTicker = nil
			if h.stopHeartbeat != nil {
				close(h.stopHeartbeat)
				h.stopHeartbeat = nil
			}
		}
	}
}

// startHeartbeat starts the heartbeat ticker.
// Caller must hold h.mu and verify h.heartbeatTicker == nil.
func (h *Hub) startHeartbeat() {
	interval := h.config.Telemetry.HeartbeatInterval.Std()
	jitter := h.config.Telemetry.HeartbeatJitter.Std()

	// Add jitter to prevent thundering herd.
	actualInterval := interval + time.Duration(float64(jitter)*0.5)

	h.heartbeatTicker = time.NewTicker(actualInterval)
	h.stopHeartbeat = make(chan bool)

	ticker := h.heartbeatTicker
	stopChan := h.stopHeartbeat

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ticker.C:
				h.sendHeartbeat()
			case <-stopChan:
				return
			case <-h.done:
				return
			}
		}
	}()
}

// sendHeartbeat sends a heartbeat event to all clients.
func (h *Hub) sendHeartbeat() {
	h.Publish(Event{
		Type: EventHeartbeat,
		Data: map[string]interface{}{
			"ts": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Stop stops the telemetry hub and cleans up resources.
func (h *Hub) Stop() {
	select {
	case <-h.done:
		return
	default:
		close(h.done)
	}

	h.mu.Lock()
	for _, client := range h.clients {
		client.Cancel()
	}
	if h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
	}
	if h.stopHeartbeat != nil {
		close(h.stopHeartbeat)
		h.stopHeartbeat = nil
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		// Goroutines may be stuck on slow clients; give up after timeout.
	}

	h.mu.Lock()
	for _, client := range h.clients {
		client.Cancel()
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
}

// NewEventBuffer creates a new event buffer with the specified capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// AddEvent adds an event to the buffer, evicting the oldest at capacity.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns events with ids after lastID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// GetSize returns the current buffer size.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
