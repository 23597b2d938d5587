package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// sseRingBufferSize is the number of recent status changes kept for
	// Last-Event-ID reconnection.
	sseRingBufferSize = 256

	sseKeepaliveInterval = 15 * time.Second
)

// sseEvent is one status change, already encoded as JSON.
type sseEvent struct {
	ID         uint64
	Projection string
	Data       []byte
}

// sseHub fans status changes out to connected SSE clients and keeps a ring
// buffer for replay.
type sseHub struct {
	mu      sync.Mutex
	clients map[*sseClient]struct{}
	nextID  uint64
	ring    [sseRingBufferSize]sseEvent
	ringPos int
	ringLen int
}

// sseClient is one connected consumer. An empty filter receives every
// projection.
type sseClient struct {
	projections map[string]bool
	ch          chan *sseEvent
}

func newSSEHub() *sseHub {
	return &sseHub{clients: make(map[*sseClient]struct{})}
}

// broadcast records a change and offers it to every matching client.
// Slow clients miss events rather than block the projection that reported
// the change.
func (h *sseHub) broadcast(projection string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	evt := sseEvent{ID: h.nextID, Projection: projection, Data: payload}
	h.ring[h.ringPos] = evt
	h.ringPos = (h.ringPos + 1) % sseRingBufferSize
	if h.ringLen < sseRingBufferSize {
		h.ringLen++
	}

	for c := range h.clients {
		if c.matches(projection) {
			select {
			case c.ch <- &evt:
			default:
			}
		}
	}
}

func (h *sseHub) subscribe(projections []string) *sseClient {
	c := &sseClient{ch: make(chan *sseEvent, 64)}
	if len(projections) > 0 {
		c.projections = make(map[string]bool, len(projections))
		for _, p := range projections {
			c.projections[p] = true
		}
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns buffered events with ID > lastID, oldest first.
func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	var result []*sseEvent
	start := (h.ringPos - h.ringLen + sseRingBufferSize) % sseRingBufferSize
	for i := range h.ringLen {
		evt := h.ring[(start+i)%sseRingBufferSize]
		if evt.ID > lastID {
			result = append(result, &evt)
		}
	}
	return result
}

func (c *sseClient) matches(projection string) bool {
	return c.projections == nil || c.projections[projection]
}

// handleStatusStream handles GET /v1/projections/stream. The optional
// ?projections=a,b query limits the stream to the named projections.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var names []string
	for _, n := range strings.Split(r.URL.Query().Get("projections"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	client := s.hub.subscribe(names)
	defer s.hub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if lastID, err := strconv.ParseUint(lastIDStr, 10, 64); err == nil {
			for _, evt := range s.hub.eventsSince(lastID) {
				if client.matches(evt.Projection) {
					writeSSEEvent(w, evt)
				}
			}
			flusher.Flush()
		}
	}

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\n", evt.ID)
	fmt.Fprintf(w, "event:status\n")
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}
