// Package notify posts signed job events to a configured webhook.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docgen/internal/models"
)

const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// Event is the JSON body of one delivery. Content is never included; the
// receiver fetches it through the API.
type Event struct {
	Event       string           `json:"event"`
	JobID       uuid.UUID        `json:"job_id"`
	Status      models.JobStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	TemplateID  *uuid.UUID       `json:"template_id,omitempty"`
	CreatedBy   string           `json:"created_by,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Dispatcher delivers events from a bounded queue on one goroutine, so a
// slow receiver never holds up a worker.
type Dispatcher struct {
	url        string
	secret     string
	httpClient *http.Client
	deliveries chan Event
	logger     *slog.Logger
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(url, secret string, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		deliveries: make(chan Event, 1000),
		logger:     logger,
		done:       make(chan struct{}),
	}
	go d.processLoop()
	return d
}

// JobFinished queues an event for a job in a terminal state.
func (d *Dispatcher) JobFinished(_ context.Context, j *models.GenerationJob) {
	ev := Event{
		Event:       EventJobCompleted,
		JobID:       j.ID,
		Status:      j.Status,
		Error:       j.Error,
		TemplateID:  j.TemplateID,
		CreatedBy:   j.CreatedBy,
		CompletedAt: j.CompletedAt,
	}
	if j.Status == models.JobStatusFailed {
		ev.Event = EventJobFailed
	}
	d.Enqueue(ev)
}

// Enqueue queues ev without blocking. Events arriving after Close are
// dropped.
func (d *Dispatcher) Enqueue(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("notifier closed, dropping", "job_id", ev.JobID, "event", ev.Event)
		return
	}
	select {
	case d.deliveries <- ev:
	default:
		d.logger.Warn("notification queue full, dropping", "job_id", ev.JobID, "event", ev.Event)
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.deliveries)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) processLoop() {
	defer close(d.done)
	for ev := range d.deliveries {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("encode notification", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		d.logger.Error("notification request creation failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Docgen-Event", ev.Event)
	req.Header.Set("X-Docgen-Delivery", uuid.NewString())
	if d.secret != "" {
		req.Header.Set("X-Docgen-Signature", Sign(payload, d.secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Error("notification delivery failed", "error", err, "job_id", ev.JobID)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.logger.Warn("notification received non-success response", "status", resp.StatusCode, "job_id", ev.JobID)
	}
}

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
