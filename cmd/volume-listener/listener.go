package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// watcher turns volume readings into control actions.
type watcher struct {
	last  int
	muted bool
}

type action struct {
	name      string
	direction string
}

// step returns the actions implied by a new reading. Dropping to zero selects
// once until the volume comes back; any other change cycles in its direction.
func (w *watcher) step(vol int) []action {
	var out []action
	if vol == 0 && !w.muted {
		out = append(out, action{name: "select"})
		w.muted = true
	} else if vol > 0 {
		w.muted = false
	}
	if vol != w.last && vol > 0 {
		dir := "down"
		if vol > w.last {
			dir = "up"
		}
		out = append(out, action{name: "cycle", direction: dir})
		w.last = vol
	}
	return out
}

// run polls read every interval until ctx ends.
func run(ctx context.Context, read func(context.Context) (int, error), send func(context.Context, string, string) error, interval time.Duration) error {
	first, err := read(ctx)
	if err != nil {
		return fmt.Errorf("read volume: %w", err)
	}
	w := &watcher{last: first, muted: first == 0}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("stopped")
			return nil
		case <-ticker.C:
		}
		vol, err := read(ctx)
		if err != nil {
			log.Printf("read volume: %v", err)
			continue
		}
		for _, a := range w.step(vol) {
			if a.direction != "" {
				log.Printf("--> %s (%s)", a.name, a.direction)
			} else {
				log.Printf("--> %s", a.name)
			}
			if err := send(ctx, a.name, a.direction); err != nil {
				log.Printf("send %s: %v", a.name, err)
			}
		}
	}
}

func osascriptVolume(ctx context.Context) (int, error) {
	out, err := exec.CommandContext(ctx, "osascript", "-e", "output volume of (get volume settings)").Output()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(out)))
}

type controlClient struct {
	url   string
	user  string
	token string
	http  *http.Client
}

type controlRequest struct {
	UserID    string `json:"userId"`
	Action    string `json:"action"`
	Direction string `json:"direction,omitempty"`
}

func (c *controlClient) send(ctx context.Context, name, direction string) error {
	body, err := json.Marshal(controlRequest{UserID: c.user, Action: name, Direction: direction})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
