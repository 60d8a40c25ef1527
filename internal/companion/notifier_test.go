package companion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNotifier_PostsAction(t *testing.T) {
	got := make(chan Action, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var a Action
		_ = json.NewDecoder(r.Body).Decode(&a)
		got <- a
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	n.Dispatch(Action{Action: ActionSpeak, Text: "Hola", UserID: "u1"})
	select {
	case a := <-got:
		if a.Action != ActionSpeak || a.Text != "Hola" || a.UserID != "u1" {
			t.Fatalf("unexpected action %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook not called")
	}
}

func TestNotifier_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewNotifier(srv.URL).Notify(context.Background(), Action{Action: ActionFiller}); err == nil {
		t.Fatalf("expected error on non-2xx")
	}
}

func TestNotifier_DisabledWithoutURL(t *testing.T) {
	n := NewNotifier("")
	if err := n.Notify(context.Background(), Action{Action: ActionSpeak}); err != nil {
		t.Fatalf("disabled notifier should be a no-op, got %v", err)
	}
	n.Dispatch(Action{Action: ActionSpeak})
}
