package process

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/autopdf/internal/classify"
	"github.com/harunnryd/autopdf/internal/clean"
	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/incident"
	"github.com/harunnryd/autopdf/internal/logger"
)

// TextExtractor turns attachment bytes into plain text. It never fails; an
// unreadable document yields an empty string.
type TextExtractor interface {
	Text(ctx context.Context, data []byte) string
}

// Inputs groups the fetched artifacts of one ticket.
type Inputs struct {
	Incident incident.RawIncident
	Document incident.RawDocument
	Solution incident.RawSolution
	Tasks    incident.RawTaskList
}

type Processor struct {
	extractor TextExtractor
}

func New(extractor TextExtractor) *Processor {
	return &Processor{extractor: extractor}
}

// Process builds a ProcessedIncident from the raw inputs. The result is either
// complete or an error is returned.
func (p *Processor) Process(ctx context.Context, in Inputs) (incident.ProcessedIncident, error) {
	if in.Incident.ID <= 0 {
		return incident.ProcessedIncident{}, apperrors.InvalidInput(fmt.Sprintf("invalid incident id %d", in.Incident.ID))
	}
	if err := ctx.Err(); err != nil {
		return incident.ProcessedIncident{}, apperrors.Wrap(err, "processing cancelled")
	}

	raw := in.Incident
	content := clean.HTML(raw.Content)
	solution := clean.HTML(in.Solution.Content)
	title := strings.TrimSpace(raw.Name)

	tasks := make([]incident.Task, 0, len(in.Tasks))
	for _, t := range in.Tasks {
		tasks = append(tasks, incident.Task{
			ID:      t.ID,
			Content: clean.HTML(t.Content),
			State:   t.State,
			Owner:   t.UserID,
		})
	}

	var documentText string
	if !in.Document.Empty() && p.extractor != nil {
		documentText = strings.TrimSpace(p.extractor.Text(ctx, in.Document.Bytes))
	}

	processed := incident.ProcessedIncident{
		IncidentID:   raw.ID,
		Title:        title,
		Content:      content,
		Status:       raw.Status,
		Priority:     raw.Priority,
		Urgency:      raw.Urgency,
		Impact:       raw.Impact,
		Date:         raw.Date,
		SolveDate:    raw.SolveDate,
		Recipient:    raw.Recipient,
		Solution:     solution,
		Tasks:        tasks,
		Category:     classify.Classify(content, solution, title),
		DocumentText: documentText,
	}

	logger.FromContext(ctx).Debug("Incident processed",
		"category", processed.Category,
		"tasks", len(tasks),
		"document_chars", len(documentText))

	return processed, nil
}
