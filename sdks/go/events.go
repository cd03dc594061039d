package portal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sapliy/pm-portal/internal/notification"
)

// EventsService opens the server-sent event push channel.
type EventsService struct {
	client *Client
}

// Stream is one live subscription to /events. Events are delivered in
// arrival order on a channel that is closed when the stream ends. The
// stream never reconnects.
type Stream struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Subscribe opens the push channel. It returns once the server accepted the
// subscription; events are then read on a background goroutine until ctx is
// cancelled, Close is called, or the transport fails.
func (s *EventsService) Subscribe(ctx context.Context) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := s.client.newRequest(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// The subscription outlives the request timeout of regular calls.
	hc := *s.client.httpClient
	hc.Timeout = 0

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		cancel()
		s.client.metrics.ObserveRequest(http.MethodGet, 0, time.Since(start))
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	s.client.metrics.ObserveRequest(http.MethodGet, resp.StatusCode, time.Since(start))
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		cancel()
		return nil, decodeError(resp)
	}

	st := &Stream{
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(st.done)
		defer close(st.events)
		defer func() { _ = resp.Body.Close() }()
		st.read(ctx, bufio.NewScanner(resp.Body), s.client)
	}()
	return st, nil
}

// Events returns the channel of parsed events.
func (st *Stream) Events() <-chan Event {
	return st.events
}

// Err returns the error that ended the stream, or nil if it is still open
// or was closed by the caller.
func (st *Stream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Close tears down the subscription and waits for the reader to exit.
func (st *Stream) Close() {
	st.cancel()
	<-st.done
}

// Done is closed once the stream has ended.
func (st *Stream) Done() <-chan struct{} {
	return st.done
}

func (st *Stream) setErr(err error) {
	st.mu.Lock()
	st.err = err
	st.mu.Unlock()
}

// read consumes the text/event-stream body. Consecutive data lines are
// joined with "\n" and dispatched on the blank line ending the event.
func (st *Stream) read(ctx context.Context, sc *bufio.Scanner, c *Client) {
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var data []string
	dispatch := func() bool {
		if len(data) == 0 {
			return true
		}
		payload := strings.Join(data, "\n")
		data = data[:0]

		ev, err := notification.ParseEvent([]byte(payload))
		if err != nil {
			// Unknown or malformed payloads are skipped, the stream stays up.
			c.metrics.ObserveEvent("invalid")
			return true
		}
		c.metrics.ObserveEvent(string(ev.Type()))
		select {
		case st.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if !dispatch() {
				return
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) {
		st.setErr(fmt.Errorf("read event stream: %w", err))
		return
	}
	st.setErr(ErrStreamClosed)
}

// ErrStreamClosed is recorded when the server ends the stream.
var ErrStreamClosed = errors.New("event stream closed by server")
