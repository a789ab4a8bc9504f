package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
)

// ErrDeferred is returned by a Sender that accepted a transfer but will
// report its outcome later through the resolve endpoint.
var ErrDeferred = errors.New("transfer outcome deferred")

// Sender moves tokens out of the ledger.
type Sender interface {
	Send(ctx context.Context, tr farm.Transfer) error
}

// LogSender logs transfers and reports every one as delivered. It stands in
// for a token backend in development.
type LogSender struct{}

func (LogSender) Send(_ context.Context, tr farm.Transfer) error {
	log.Printf("Transfer %s: %s %s to %s (%s)", tr.ID, tr.Amount, tr.Token, tr.Receiver, tr.Kind)
	return nil
}

// WebhookSender posts transfers as JSON to an external token service.
// 200 and 204 mean delivered, 202 means the outcome follows later. A
// deferred transfer is not posted again while the service runs, but it is
// posted again after a restart if still pending, so the receiver must
// de-duplicate by Transfer.ID.
type WebhookSender struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSender creates a sender posting to url.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *WebhookSender) Send(ctx context.Context, tr farm.Transfer) error {
	body, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("failed to encode transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post transfer: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusAccepted:
		return ErrDeferred
	}
	return fmt.Errorf("transfer webhook returned status %d", resp.StatusCode)
}

// Dispatcher hands committed transfers to a Sender one at a time and feeds
// the outcome back to the ledger as a separate call. A transfer stays
// tracked from Enqueue until its outcome is known, so it is never queued
// twice in one run.
type Dispatcher struct {
	sender Sender
	queue  chan farm.Transfer

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewDispatcher creates a dispatcher with a queue of the given size.
func NewDispatcher(sender Sender, size int) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	return &Dispatcher{
		sender:   sender,
		queue:    make(chan farm.Transfer, size),
		inflight: make(map[string]struct{}),
	}
}

// Enqueue schedules tr for delivery without blocking. It reports false when
// the queue is full; the transfer then stays pending in the ledger until
// the next Requeue pass picks it up.
func (d *Dispatcher) Enqueue(tr farm.Transfer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.inflight[tr.ID]; ok {
		return true
	}
	select {
	case d.queue <- tr:
		d.inflight[tr.ID] = struct{}{}
		return true
	default:
		return false
	}
}

// Done stops tracking a transfer whose outcome has been recorded.
func (d *Dispatcher) Done(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

// Tracked reports whether id is queued, being sent or awaiting a deferred
// outcome.
func (d *Dispatcher) Tracked(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[id]
	return ok
}

// Run delivers queued transfers until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, resolve func(id string, ok bool) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr := <-d.queue:
			d.deliver(ctx, tr, resolve)
		}
	}
}

// Requeue lists pending transfers every interval and enqueues the ones the
// dispatcher is not tracking, until ctx is done.
func (d *Dispatcher) Requeue(ctx context.Context, interval time.Duration, pending func() ([]farm.Transfer, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			transfers, err := pending()
			if err != nil {
				log.Printf("Failed to list pending transfers: %v", err)
				continue
			}
			for _, tr := range transfers {
				if d.Tracked(tr.ID) {
					continue
				}
				if !d.Enqueue(tr) {
					break
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, tr farm.Transfer, resolve func(id string, ok bool) error) {
	err := d.sender.Send(ctx, tr)
	if errors.Is(err, ErrDeferred) {
		// still tracked; the outcome arrives through the resolve endpoint
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			// shutting down; the transfer is still pending and is queued
			// again on the next start
			d.Done(tr.ID)
			return
		}
		log.Printf("Transfer %s failed: %v", tr.ID, err)
	}
	if rerr := resolve(tr.ID, err == nil); rerr != nil {
		log.Printf("Failed to resolve transfer %s: %v", tr.ID, rerr)
	}
	d.Done(tr.ID)
}
