package glpi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/incident"
	"github.com/harunnryd/autopdf/internal/logger"
)

// GetIncident reads a ticket with dropdown values expanded to their labels.
func (c *Client) GetIncident(ctx context.Context, id int) (incident.RawIncident, error) {
	var t ticketResponse
	params := url.Values{"expand_dropdowns": {"true"}}
	if err := c.Request(ctx, http.MethodGet, fmt.Sprintf("Ticket/%d", id), params, nil, &t); err != nil {
		return incident.RawIncident{}, err
	}

	raw := incident.RawIncident{
		ID:        int(t.ID),
		Name:      string(t.Name),
		Content:   string(t.Content),
		Status:    string(t.Status),
		Priority:  string(t.Priority),
		Urgency:   string(t.Urgency),
		Impact:    string(t.Impact),
		Date:      string(t.Date),
		SolveDate: string(t.SolveDate),
		Recipient: string(t.UsersIDRecipient),
	}
	if raw.ID == 0 {
		raw.ID = id
	}
	return raw, nil
}

// LatestDocumentID returns the most recently linked document of a ticket, or
// false when the ticket has none.
func (c *Client) LatestDocumentID(ctx context.Context, ticketID int) (int, bool, error) {
	var items []documentItemResponse
	err := c.Request(ctx, http.MethodGet, fmt.Sprintf("Ticket/%d/Document_Item", ticketID), nil, nil, &items)
	if errors.Is(err, apperrors.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	latest, documentID := 0, 0
	for _, item := range items {
		if int(item.ID) > latest && item.DocumentsID > 0 {
			latest = int(item.ID)
			documentID = int(item.DocumentsID)
		}
	}
	return documentID, documentID > 0, nil
}

// GetDocument reads document metadata and downloads its content. Malformed
// metadata, a missing document or a failed download yield empty bytes.
func (c *Client) GetDocument(ctx context.Context, id int) (incident.RawDocument, error) {
	log := logger.FromContext(ctx)
	doc := incident.RawDocument{ID: id}

	var meta documentResponse
	err := c.Request(ctx, http.MethodGet, fmt.Sprintf("Document/%d", id), nil, nil, &meta)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		log.Warn("Document not found", "document_id", id)
		return doc, nil
	case errors.Is(err, errDecode):
		log.Warn("Invalid document metadata", "document_id", id, "error", err)
		return doc, nil
	case err != nil:
		return doc, err
	}

	if meta.Filepath == "" || meta.Filename == "" {
		log.Warn("Invalid document metadata: missing filepath or filename", "document_id", id)
		return doc, nil
	}
	doc.Filename = string(meta.Filename)

	data, err := c.download(ctx, string(meta.Filepath))
	if err != nil {
		log.Warn("Document download failed", "document_id", id, "error", err)
		return doc, nil
	}
	doc.Bytes = data
	return doc, nil
}

// GetSolution returns the most recently added solution entry of a ticket.
func (c *Client) GetSolution(ctx context.Context, ticketID int) (incident.RawSolution, error) {
	solutions, err := c.solutions(ctx, ticketID)
	if err != nil {
		return incident.RawSolution{}, err
	}
	latest, ok := latestSolution(solutions)
	if !ok {
		return incident.RawSolution{}, nil
	}
	return incident.RawSolution{ID: int(latest.ID), Content: string(latest.Content)}, nil
}

// GetTasks returns the task entries of a ticket.
func (c *Client) GetTasks(ctx context.Context, ticketID int) (incident.RawTaskList, error) {
	var tasks []taskResponse
	err := c.Request(ctx, http.MethodGet, fmt.Sprintf("Ticket/%d/ITILTask", ticketID), nil, nil, &tasks)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	list := make(incident.RawTaskList, 0, len(tasks))
	for _, t := range tasks {
		list = append(list, incident.RawTask{
			ID:      int(t.ID),
			Content: string(t.Content),
			State:   string(t.State),
			UserID:  string(t.UsersID),
		})
	}
	return list, nil
}

// UpsertSolution writes content as the ticket's resolution. When the ticket
// already has solutions the most recent one is updated, and the update counts
// as successful when the API answers with an empty result. Otherwise a new
// solution is created, successful when the API returns its id.
func (c *Client) UpsertSolution(ctx context.Context, ticketID int, content string) (bool, error) {
	solutions, err := c.solutions(ctx, ticketID)
	if err != nil {
		return false, err
	}

	if latest, ok := latestSolution(solutions); ok {
		var result json.RawMessage
		body := map[string]any{"input": map[string]any{"content": content}}
		if err := c.Request(ctx, http.MethodPut, fmt.Sprintf("ITILSolution/%d", latest.ID), nil, body, &result); err != nil {
			return false, err
		}
		return isEmptyResult(result), nil
	}

	var created createResponse
	body := map[string]any{"input": map[string]any{
		"itemtype": "Ticket",
		"items_id": ticketID,
		"content":  content,
	}}
	if err := c.Request(ctx, http.MethodPost, "ITILSolution", nil, body, &created); err != nil {
		return false, err
	}
	return created.ID > 0, nil
}

func (c *Client) solutions(ctx context.Context, ticketID int) ([]solutionResponse, error) {
	var solutions []solutionResponse
	err := c.Request(ctx, http.MethodGet, fmt.Sprintf("Ticket/%d/ITILSolution", ticketID), nil, nil, &solutions)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return solutions, err
}

// latestSolution picks the most recently added entry: GLPI ids grow
// monotonically, while listing order depends on the server's sort settings.
func latestSolution(solutions []solutionResponse) (solutionResponse, bool) {
	if len(solutions) == 0 {
		return solutionResponse{}, false
	}
	latest := solutions[0]
	for _, s := range solutions[1:] {
		if s.ID > latest.ID {
			latest = s
		}
	}
	return latest, true
}

func isEmptyResult(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(bytes.TrimSpace(raw))) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}
