package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestWatcher_Step(t *testing.T) {
	w := &watcher{last: 50}
	cases := []struct {
		vol  int
		want []action
	}{
		{50, nil},
		{56, []action{{name: "cycle", direction: "up"}}},
		{50, []action{{name: "cycle", direction: "down"}}},
		{0, []action{{name: "select"}}},
		{0, nil},
		{6, []action{{name: "cycle", direction: "down"}}},
		{0, []action{{name: "select"}}},
	}
	for i, tc := range cases {
		got := w.step(tc.vol)
		if len(got) != len(tc.want) {
			t.Fatalf("step %d (vol=%d): got %v, want %v", i, tc.vol, got, tc.want)
		}
		for j := range got {
			if got[j] != tc.want[j] {
				t.Fatalf("step %d (vol=%d): got %v, want %v", i, tc.vol, got, tc.want)
			}
		}
	}
}

func TestRun_SendsActions(t *testing.T) {
	readings := []int{40, 40, 46, 0}
	var mu sync.Mutex
	i := 0
	read := func(context.Context) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		v := readings[len(readings)-1]
		if i < len(readings) {
			v = readings[i]
			i++
		}
		return v, nil
	}

	sent := make(chan action, 8)
	send := func(_ context.Context, name, dir string) error {
		sent <- action{name: name, direction: dir}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, read, send, time.Millisecond) }()

	want := []action{{name: "cycle", direction: "up"}, {name: "select"}}
	for _, w := range want {
		select {
		case got := <-sent:
			if got != w {
				t.Fatalf("got %v, want %v", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", w)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestControlClient_Send(t *testing.T) {
	var got controlRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &controlClient{url: srv.URL, user: "u1", token: "tok", http: srv.Client()}
	if err := c.send(context.Background(), "cycle", "down"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.UserID != "u1" || got.Action != "cycle" || got.Direction != "down" {
		t.Fatalf("body = %+v", got)
	}
	if auth != "Bearer tok" {
		t.Fatalf("auth = %q", auth)
	}
}

func TestControlClient_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	c := &controlClient{url: srv.URL, user: "u1", http: srv.Client()}
	if err := c.send(context.Background(), "select", ""); err == nil {
		t.Fatalf("expected error for 404")
	}
}
