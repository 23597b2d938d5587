package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/marketplace/internal/status"
)

func TestSSEHub_BroadcastAndReceive(t *testing.T) {
	hub := newSSEHub()
	c := hub.subscribe(nil)
	defer hub.unsubscribe(c)

	hub.broadcast("owner-index", []byte(`{"phase":"live"}`))

	select {
	case evt := <-c.ch:
		if evt.ID != 1 || evt.Projection != "owner-index" || string(evt.Data) != `{"phase":"live"}` {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSSEHub_ProjectionFilter(t *testing.T) {
	hub := newSSEHub()
	c := hub.subscribe([]string{"available-ads"})
	defer hub.unsubscribe(c)

	hub.broadcast("owner-index", []byte(`{}`))
	hub.broadcast("available-ads", []byte(`{}`))

	select {
	case evt := <-c.ch:
		if evt.Projection != "available-ads" {
			t.Fatalf("expected available-ads, got %q", evt.Projection)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	select {
	case evt := <-c.ch:
		t.Fatalf("unexpected extra event: %+v", evt)
	default:
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := newSSEHub()
	c := hub.subscribe(nil)
	hub.unsubscribe(c)

	hub.broadcast("owner-index", []byte(`{}`))
	select {
	case evt := <-c.ch:
		t.Fatalf("unsubscribed client received %+v", evt)
	default:
	}
}

func TestSSEHub_EventsSince(t *testing.T) {
	hub := newSSEHub()
	if got := hub.eventsSince(0); len(got) != 0 {
		t.Fatalf("expected no events, got %d", len(got))
	}

	for i := 0; i < 3; i++ {
		hub.broadcast("owner-index", []byte(`{}`))
	}
	got := hub.eventsSince(1)
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("unexpected replay: %+v", got)
	}
}

func TestSSEHub_RingBufferWrap(t *testing.T) {
	hub := newSSEHub()
	total := sseRingBufferSize + 10
	for i := 0; i < total; i++ {
		hub.broadcast("owner-index", []byte(`{}`))
	}

	got := hub.eventsSince(0)
	if len(got) != sseRingBufferSize {
		t.Fatalf("expected %d events, got %d", sseRingBufferSize, len(got))
	}
	if got[0].ID != 11 || got[len(got)-1].ID != uint64(total) {
		t.Fatalf("unexpected range: first=%d last=%d", got[0].ID, got[len(got)-1].ID)
	}
}

// streamFor runs the status stream until fn returns, then cancels it and
// returns the response body.
func streamFor(t *testing.T, env *testEnv, path, lastID string, fn func()) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest("GET", path, nil).WithContext(ctx)
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.handler.ServeHTTP(rec, req)
	}()

	// Give the handler time to register the subscription.
	time.Sleep(50 * time.Millisecond)
	fn()
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done
	return rec
}

func TestHandleStatusStream(t *testing.T) {
	env := newTestServer(t)

	rec := streamFor(t, env, "/v1/projections/stream", "", func() {
		env.tracker.SetPhase("owner-index", status.PhaseLive)
	})

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected Content-Type=text/event-stream, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event:status") {
		t.Fatalf("expected event:status in body, got:\n%s", body)
	}
	if !strings.Contains(body, `"projection":"owner-index"`) || !strings.Contains(body, `"phase":"live"`) {
		t.Fatalf("expected owner-index live status in body, got:\n%s", body)
	}
}

func TestHandleStatusStream_Filter(t *testing.T) {
	env := newTestServer(t)

	rec := streamFor(t, env, "/v1/projections/stream?projections=available-ads", "", func() {
		env.tracker.SetPhase("owner-index", status.PhaseLive)
		env.tracker.SetPhase("available-ads", status.PhaseRestarting)
	})

	body := rec.Body.String()
	if strings.Contains(body, "owner-index") {
		t.Fatalf("expected owner-index to be filtered out, got:\n%s", body)
	}
	if !strings.Contains(body, `"phase":"restarting"`) {
		t.Fatalf("expected available-ads status in body, got:\n%s", body)
	}
}

func TestHandleStatusStream_LastEventID(t *testing.T) {
	env := newTestServer(t)
	env.tracker.SetPhase("owner-index", status.PhaseStarting)
	env.tracker.SetPhase("owner-index", status.PhaseCatchingUp)
	env.tracker.SetPhase("owner-index", status.PhaseLive)

	rec := streamFor(t, env, "/v1/projections/stream", "1", func() {})

	body := rec.Body.String()
	if strings.Contains(body, `"phase":"starting"`) {
		t.Fatalf("expected event 1 to be skipped, got:\n%s", body)
	}
	if !strings.Contains(body, "id:2\n") || !strings.Contains(body, `"phase":"live"`) {
		t.Fatalf("expected events 2 and 3 in body, got:\n%s", body)
	}
}
