// Package display computes what the heads-up surface shows and throttles writes to it.
package display

import (
	"context"
	"fmt"
	"time"

	"github.com/chadiek/hudlink/internal/state"
)

// Compositor renders history plus the current fragment for one user.
// It is not safe for concurrent use; the owning session serialises calls.
type Compositor struct {
	user      string
	transport Transport
	store     *state.Store
	maxChars  int
	cooldown  time.Duration
	now       func() time.Time

	last      string
	lastWrite time.Time
}

// NewCompositor builds a compositor. transport may be nil for sessions with
// no physical display; writes then only update the shared state.
func NewCompositor(user string, transport Transport, store *state.Store, maxChars int, cooldown time.Duration) *Compositor {
	return &Compositor{
		user:      user,
		transport: transport,
		store:     store,
		maxChars:  maxChars,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (c *Compositor) WithClock(now func() time.Time) *Compositor {
	c.now = now
	return c
}

// Show renders Compose(history, current) and writes it if it differs from the
// last write and the cooldown has elapsed. force bypasses both checks.
// It reports whether a write happened.
func (c *Compositor) Show(ctx context.Context, history, current string, force bool) (bool, error) {
	return c.write(ctx, Compose(history, current, c.maxChars), force)
}

// ShowRaw writes text verbatim (tail-truncated), for candidate lists and selections.
func (c *Compositor) ShowRaw(ctx context.Context, text string, force bool) (bool, error) {
	return c.write(ctx, Tail(text, c.maxChars), force)
}

// Clear blanks the display. It is always forced.
func (c *Compositor) Clear(ctx context.Context) error {
	_, err := c.write(ctx, "", true)
	return err
}

// Reset forgets the last written text and write time.
func (c *Compositor) Reset() {
	c.last = ""
	c.lastWrite = time.Time{}
}

// Last returns the last text written.
func (c *Compositor) Last() string { return c.last }

func (c *Compositor) write(ctx context.Context, text string, force bool) (bool, error) {
	if !force {
		if text == c.last {
			return false, nil
		}
		if !c.lastWrite.IsZero() && c.now().Sub(c.lastWrite) < c.cooldown {
			return false, nil
		}
	}
	if c.transport != nil {
		if c.transport.State() == StateClosed {
			return false, ErrTransportClosed
		}
		if err := c.transport.ShowText(ctx, text); err != nil {
			if c.transport.State() == StateClosed {
				return false, fmt.Errorf("%w: %v", ErrTransportClosed, err)
			}
			return false, fmt.Errorf("display: show text: %w", err)
		}
	}
	c.last = text
	c.lastWrite = c.now()
	if c.store != nil {
		if text == "" {
			c.store.ClearText(c.user)
		} else {
			c.store.SetText(c.user, text)
		}
	}
	return true, nil
}
