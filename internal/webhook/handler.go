// Package webhook receives GLPI notification batches and triggers pipeline runs.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/logger"
	"github.com/harunnryd/autopdf/internal/pipeline"
)

const (
	itemTypeTicket = "Ticket"
	eventAdd       = "add"
	eventCreate    = "create"
	eventUpdate    = "update"

	maxBodyBytes = 1 << 20
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, ticketID int, mode pipeline.Mode) (pipeline.Result, error)
}

// Event is one validated notification of a batch.
type Event struct {
	Event    string
	ItemType string
	ItemsID  int
}

// Handler serves the webhook and liveness endpoints. Batches are handled one
// at a time; a delivery that arrives while another is running waits.
type Handler struct {
	runner      Runner
	serviceName string
	mux         *http.ServeMux
	mu          sync.Mutex
}

func NewHandler(runner Runner, serviceName string) *Handler {
	h := &Handler{runner: runner, serviceName: serviceName, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /webhook", h.handleWebhook)
	h.mux.HandleFunc("GET /{$}", h.handleRoot)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("%s is running!", h.serviceName)})
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, apperrors.InvalidInput(fmt.Sprintf("read body: %v", err)))
		return
	}

	events, err := ParseBatch(body)
	if err != nil {
		writeError(w, err)
		return
	}

	// Runs outlive a caller that hangs up mid-batch.
	if err := h.Process(context.WithoutCancel(r.Context()), events); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook received and processed"})
}

// Process runs the pipeline for each event in order and stops at the first
// failed run.
func (h *Handler) Process(ctx context.Context, events []Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	log := logger.FromContext(ctx)
	for i, ev := range events {
		mode, ok := modeFor(ev)
		if !ok {
			log.Debug("Ignoring webhook event", "index", i, "event", ev.Event, "itemtype", ev.ItemType, "items_id", ev.ItemsID)
			continue
		}

		log.Info("Webhook event received", "index", i, "event", ev.Event, "items_id", ev.ItemsID, "mode", mode)
		if _, err := h.runner.Run(ctx, ev.ItemsID, mode); err != nil {
			return runError(ev.ItemsID, err)
		}
	}
	return nil
}

// runError keeps the category of a failed run, except that invalid input
// raised inside a run is an internal failure: the batch was already accepted.
func runError(ticketID int, err error) error {
	if errors.Is(err, apperrors.ErrInvalidInput) {
		return apperrors.Internal(fmt.Sprintf("ticket %d: %v", ticketID, err))
	}
	return apperrors.Wrap(err, fmt.Sprintf("ticket %d", ticketID))
}

func modeFor(ev Event) (pipeline.Mode, bool) {
	if ev.ItemType != itemTypeTicket {
		return "", false
	}
	switch ev.Event {
	case eventAdd, eventCreate:
		return pipeline.ModeCreate, true
	case eventUpdate:
		return pipeline.ModeUpdate, true
	default:
		return "", false
	}
}

// ParseBatch decodes and validates a whole batch. Any invalid event rejects
// the batch.
func ParseBatch(body []byte) ([]Event, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		var syntaxErr *json.SyntaxError
		if len(strings.TrimSpace(string(body))) == 0 || errors.As(err, &syntaxErr) {
			return nil, apperrors.InvalidInput("Invalid JSON payload")
		}
		return nil, apperrors.InvalidInput("Invalid webhook payload format")
	}
	if raw == nil {
		return nil, apperrors.InvalidInput("Invalid webhook payload format")
	}

	events := make([]Event, 0, len(raw))
	for i, item := range raw {
		ev, err := parseEvent(item)
		if err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("event %d: %v", i, err))
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseEvent(item json.RawMessage) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return Event{}, fmt.Errorf("event is not an object")
	}

	var missing []string
	for _, name := range []string{"event", "itemtype", "items_id"} {
		if v, ok := fields[name]; !ok || string(v) == "null" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Event{}, fmt.Errorf("missing required fields in event: %s", strings.Join(missing, ", "))
	}

	var ev Event
	if err := json.Unmarshal(fields["event"], &ev.Event); err != nil {
		return Event{}, fmt.Errorf("event must be a string")
	}
	if err := json.Unmarshal(fields["itemtype"], &ev.ItemType); err != nil {
		return Event{}, fmt.Errorf("itemtype must be a string")
	}
	id, err := parseItemsID(fields["items_id"])
	if err != nil {
		return Event{}, err
	}
	ev.ItemsID = id
	return ev, nil
}

// parseItemsID accepts a positive JSON integer or numeric string.
func parseItemsID(v json.RawMessage) (int, error) {
	id, ok := 0, false
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		id, err = strconv.Atoi(n.String())
		ok = err == nil
	}
	var s string
	if !ok && json.Unmarshal(v, &s) == nil {
		var err error
		id, err = strconv.Atoi(strings.TrimSpace(s))
		ok = err == nil
	}
	if !ok {
		return 0, fmt.Errorf("items_id must be an integer")
	}
	if id <= 0 {
		return 0, fmt.Errorf("items_id must be positive, got %d", id)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "Internal server error: " + detail
	}
	writeJSON(w, status, map[string]string{
		"category": apperrors.Category(err),
		"detail":   detail,
	})
}
