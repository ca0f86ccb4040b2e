package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"chatrelay/internal/relay"
	logx "chatrelay/pkg/logx"
)

// fakeAPI is a minimal Bot API server. getUpdates hands out the queued
// updates once, then returns empty batches.
type fakeAPI struct {
	mu      sync.Mutex
	pending []map[string]any
	copies  []map[string]string
	copyErr bool
	polls   atomic.Int64
	dropped atomic.Bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	var params map[string]any
	_ = json.NewDecoder(r.Body).Decode(&params)

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getUpdates":
		f.polls.Add(1)
		f.mu.Lock()
		batch := f.pending
		f.pending = nil
		f.mu.Unlock()
		if len(batch) == 0 {
			time.Sleep(20 * time.Millisecond)
			batch = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": batch})
	case "copyMessage":
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.copyErr {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message to copy not found"}`))
			return
		}
		rec := map[string]string{}
		for k, v := range params {
			rec[k], _ = v.(string)
		}
		f.copies = append(f.copies, rec)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":900}}`))
	case "deleteWebhook":
		if v := params["drop_pending_updates"]; v == true || v == "true" {
			f.dropped.Store(true)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func newTestAdapter(t *testing.T, api *fakeAPI) *Adapter {
	t.Helper()
	return newTestAdapterWith(t, api, Config{})
}

func newTestAdapterWith(t *testing.T, api *fakeAPI, cfg Config) *Adapter {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	cfg.Token, cfg.URL, cfg.Offline, cfg.PollTimeout = "123:abc", srv.URL, true, time.Second
	a, err := New(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestEventFromUpdate(t *testing.T) {
	chat := &tele.Chat{ID: -1001}
	tests := []struct {
		name string
		u    *tele.Update
		want relay.Event
		ok   bool
	}{
		{"nil", nil, relay.Event{}, false},
		{"message", &tele.Update{Message: &tele.Message{ID: 7, Chat: chat}},
			relay.Event{Kind: relay.KindMessage, ChatID: -1001, MessageID: 7}, true},
		{"channel post", &tele.Update{ChannelPost: &tele.Message{ID: 8, Chat: chat}},
			relay.Event{Kind: relay.KindChannelPost, ChatID: -1001, MessageID: 8}, true},
		{"edited", &tele.Update{EditedMessage: &tele.Message{ID: 9, Chat: chat}}, relay.Event{}, false},
		{"callback", &tele.Update{Callback: &tele.Callback{ID: "x"}}, relay.Event{}, false},
		{"message without chat", &tele.Update{Message: &tele.Message{ID: 1}}, relay.Event{}, false},
	}
	for _, tt := range tests {
		got, ok := eventFromUpdate(tt.u)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("%s: got (%+v, %v), want (%+v, %v)", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCopyMessageRequest(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(t, api)

	if err := a.CopyMessage(context.Background(), 222, -111, 42); err != nil {
		t.Fatalf("CopyMessage: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.copies) != 1 {
		t.Fatalf("copies = %d", len(api.copies))
	}
	got := api.copies[0]
	if got["chat_id"] != "222" || got["from_chat_id"] != "-111" || got["message_id"] != "42" {
		t.Fatalf("copyMessage params = %v", got)
	}
}

func TestCopyMessageError(t *testing.T) {
	api := &fakeAPI{copyErr: true}
	a := newTestAdapter(t, api)
	err := a.CopyMessage(context.Background(), 1, 2, 3)
	if err == nil || !strings.Contains(err.Error(), "message to copy not found") {
		t.Fatalf("want API error, got %v", err)
	}
}

func TestCopyMessageCancelled(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(t, api)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.CopyMessage(ctx, 1, 2, 3); err == nil {
		t.Fatalf("expected context error")
	}
	if len(api.copies) != 0 {
		t.Fatalf("request sent despite cancelled context")
	}
}

func TestAdapterDeliversPolledUpdates(t *testing.T) {
	api := &fakeAPI{pending: []map[string]any{
		{"update_id": 1, "message": map[string]any{"message_id": 10, "date": 1, "chat": map[string]any{"id": -111, "type": "group"}}},
		{"update_id": 2, "edited_message": map[string]any{"message_id": 10, "date": 1, "chat": map[string]any{"id": -111, "type": "group"}}},
		{"update_id": 3, "channel_post": map[string]any{"message_id": 11, "date": 1, "chat": map[string]any{"id": -333, "type": "channel"}}},
	}}
	a := newTestAdapter(t, api)

	out := make(chan relay.Event)
	if err := a.Start(context.Background(), out); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	}()

	want := []relay.Event{
		{Kind: relay.KindMessage, ChatID: -111, MessageID: 10},
		{Kind: relay.KindChannelPost, ChatID: -333, MessageID: 11},
	}
	for i, w := range want {
		select {
		case got := <-out:
			if got != w {
				t.Fatalf("event %d = %+v, want %+v", i, got, w)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestStartDropsPendingUpdates(t *testing.T) {
	for _, drop := range []bool{false, true} {
		api := &fakeAPI{}
		a := newTestAdapterWith(t, api, Config{DropPendingUpdates: drop})
		if err := a.Start(context.Background(), make(chan relay.Event)); err != nil {
			t.Fatalf("Start: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = a.Stop(ctx)
		cancel()
		if got := api.dropped.Load(); got != drop {
			t.Fatalf("drop_pending=%v: deleteWebhook dropped=%v", drop, got)
		}
	}
}

func TestStopUnblocksPendingDelivery(t *testing.T) {
	api := &fakeAPI{pending: []map[string]any{
		{"update_id": 1, "message": map[string]any{"message_id": 10, "date": 1, "chat": map[string]any{"id": 5, "type": "private"}}},
	}}
	a := newTestAdapter(t, api)

	// nobody reads out: the poll goroutine blocks inside intercept
	out := make(chan relay.Event)
	if err := a.Start(context.Background(), out); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for a.received.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if time.Since(start) > 2500*time.Millisecond {
		t.Fatalf("Stop took %v", time.Since(start))
	}
}
