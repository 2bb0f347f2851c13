// Package pipeline runs one ticket through extraction, processing,
// generation, rendering and storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/autopdf/internal/config"
	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/incident"
	"github.com/harunnryd/autopdf/internal/logger"
	"github.com/harunnryd/autopdf/internal/objectstore"
	"github.com/harunnryd/autopdf/internal/process"
	"github.com/harunnryd/autopdf/internal/render"
)

// Mode selects whether a run writes the drafted text back to the ticket.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

const (
	StepExtractIncident = "extractIncident"
	StepExtractSolution = "extractSolution"
	StepExtractTasks    = "extractTasks"
	StepExtractDocument = "extractDocument"
	StepProcess         = "process"
	StepGenerate        = "generate"
	StepRender          = "render"
	StepStoreAndIndex   = "storeAndIndex"
)

const closeTimeout = 10 * time.Second

// TicketSource is the ticketing system as seen by a run.
type TicketSource interface {
	GetIncident(ctx context.Context, id int) (incident.RawIncident, error)
	LatestDocumentID(ctx context.Context, ticketID int) (int, bool, error)
	GetDocument(ctx context.Context, id int) (incident.RawDocument, error)
	GetSolution(ctx context.Context, ticketID int) (incident.RawSolution, error)
	GetTasks(ctx context.Context, ticketID int) (incident.RawTaskList, error)
	UpsertSolution(ctx context.Context, ticketID int, content string) (bool, error)
	Close(ctx context.Context)
}

type Processor interface {
	Process(ctx context.Context, in process.Inputs) (incident.ProcessedIncident, error)
}

type Drafter interface {
	Generate(ctx context.Context, in incident.ProcessedIncident) (string, error)
}

type Renderer interface {
	Render(doc render.Document) (incident.GeneratedReport, error)
}

type ObjectStore interface {
	Put(ctx context.Context, category incident.Category, incidentID int, data []byte) (string, bool, error)
}

type Indexer interface {
	EnsureIndex(ctx context.Context, name string) error
	Upsert(ctx context.Context, name string, entry incident.IndexEntry) error
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Source    TicketSource
	Processor Processor
	Drafter   Drafter
	Renderer  Renderer
	Store     ObjectStore
	Index     Indexer
	IndexName string
	// ReportTitle is the PDF title; a %d verb receives the incident id.
	ReportTitle string
}

// Result summarises a completed run.
type Result struct {
	RunID          string            `json:"run_id"`
	IncidentID     int               `json:"incident_id"`
	Category       incident.Category `json:"category"`
	ObjectKey      string            `json:"object_key"`
	ContentAddress string            `json:"content_address"`
	EntryID        string            `json:"entry_id"`
	AlreadyExisted bool              `json:"already_existed"`
	WroteBack      bool              `json:"wrote_back"`
}

// runState carries the artifacts of one run between steps.
type runState struct {
	ticketID  int
	mode      Mode
	raw       incident.RawIncident
	solution  incident.RawSolution
	tasks     incident.RawTaskList
	document  incident.RawDocument
	processed incident.ProcessedIncident
	text      string
	report    incident.GeneratedReport
	result    Result
}

// Orchestrator executes the fixed step graph one step at a time.
type Orchestrator struct {
	deps  Dependencies
	graph *Graph
	steps map[string]StepFunc
}

func New(deps Dependencies) (*Orchestrator, error) {
	if deps.Source == nil || deps.Processor == nil || deps.Drafter == nil ||
		deps.Renderer == nil || deps.Store == nil || deps.Index == nil {
		return nil, apperrors.InvalidInput("pipeline dependencies are incomplete")
	}
	if deps.IndexName == "" {
		return nil, apperrors.InvalidInput("index name is required")
	}

	o := &Orchestrator{deps: deps}
	nodes := []Node{
		{Name: StepExtractIncident, Run: o.extractIncident},
		{Name: StepExtractSolution, Run: o.extractSolution},
		{Name: StepExtractTasks, Run: o.extractTasks},
		{Name: StepExtractDocument, Run: o.extractDocument},
		{Name: StepProcess, Run: o.process},
		{Name: StepGenerate, Run: o.generate},
		{Name: StepRender, Run: o.render},
		{Name: StepStoreAndIndex, Run: o.storeAndIndex},
	}
	edges := []Edge{
		{From: StepExtractIncident, To: StepExtractSolution},
		{From: StepExtractIncident, To: StepExtractTasks},
		{From: StepExtractIncident, To: StepProcess},
		{From: StepExtractSolution, To: StepProcess},
		{From: StepExtractTasks, To: StepProcess},
		{From: StepExtractDocument, To: StepProcess},
		{From: StepProcess, To: StepGenerate},
		{From: StepGenerate, To: StepRender},
		{From: StepRender, To: StepStoreAndIndex},
	}

	graph, err := NewGraph(nodes, edges)
	if err != nil {
		return nil, err
	}
	o.graph = graph
	o.steps = make(map[string]StepFunc, len(nodes))
	for _, n := range nodes {
		o.steps[n.Name] = n.Run
	}
	return o, nil
}

// Steps returns the step names in execution order.
func (o *Orchestrator) Steps() []string {
	return o.graph.TopologicalOrder()
}

// Run processes one ticket. A failing step aborts the run; artifacts already
// stored are kept. The ticketing session is closed when the run ends.
func (o *Orchestrator) Run(ctx context.Context, ticketID int, mode Mode) (Result, error) {
	if ticketID <= 0 {
		return Result{}, apperrors.InvalidInput(fmt.Sprintf("invalid ticket id %d", ticketID))
	}
	if mode != ModeCreate && mode != ModeUpdate {
		return Result{}, apperrors.InvalidInput(fmt.Sprintf("unknown run mode %q", mode))
	}

	runID := logger.NewRunID()
	ctx = logger.WithTicketID(logger.WithRunID(ctx, runID), ticketID)
	log := logger.FromContext(ctx)

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		o.deps.Source.Close(closeCtx)
	}()

	st := &runState{ticketID: ticketID, mode: mode}
	st.result.RunID = runID
	st.result.IncidentID = ticketID

	log.Info("Pipeline run started", "mode", mode)
	started := time.Now()

	for _, name := range o.graph.TopologicalOrder() {
		if err := ctx.Err(); err != nil {
			return st.result, apperrors.Wrap(err, "pipeline run cancelled")
		}

		stepStart := time.Now()
		if err := o.steps[name](ctx, st); err != nil {
			log.Error("Pipeline step failed", "step", name, "category", apperrors.Category(err), "error", err)
			return st.result, apperrors.Wrap(err, fmt.Sprintf("step %s", name))
		}
		log.Debug("Pipeline step completed", "step", name, "duration", time.Since(stepStart))
	}

	if mode == ModeUpdate {
		st.result.WroteBack = o.writeBack(ctx, st)
	}

	log.Info("Pipeline run completed",
		"object_key", st.result.ObjectKey,
		"already_existed", st.result.AlreadyExisted,
		"duration", time.Since(started))
	return st.result, nil
}

func (o *Orchestrator) extractIncident(ctx context.Context, st *runState) error {
	raw, err := o.deps.Source.GetIncident(ctx, st.ticketID)
	if err != nil {
		return err
	}
	st.raw = raw
	return nil
}

func (o *Orchestrator) extractSolution(ctx context.Context, st *runState) error {
	solution, err := o.deps.Source.GetSolution(ctx, st.raw.ID)
	if err != nil {
		return err
	}
	st.solution = solution
	return nil
}

func (o *Orchestrator) extractTasks(ctx context.Context, st *runState) error {
	tasks, err := o.deps.Source.GetTasks(ctx, st.raw.ID)
	if err != nil {
		return err
	}
	st.tasks = tasks
	return nil
}

// extractDocument does not depend on the incident; it looks up the ticket's
// latest linked document by the requested id.
// Attachments are optional: lookup failures other than auth or cancellation
// leave the document empty.
func (o *Orchestrator) extractDocument(ctx context.Context, st *runState) error {
	log := logger.FromContext(ctx)

	documentID, ok, err := o.deps.Source.LatestDocumentID(ctx, st.ticketID)
	if err != nil {
		return degradeDocument(ctx, err, "Document lookup failed, continuing without attachment")
	}
	if !ok {
		log.Debug("Ticket has no linked document")
		return nil
	}

	doc, err := o.deps.Source.GetDocument(ctx, documentID)
	if err != nil {
		return degradeDocument(ctx, err, "Document fetch failed, continuing without attachment", "document_id", documentID)
	}
	st.document = doc
	return nil
}

func degradeDocument(ctx context.Context, err error, msg string, attrs ...any) error {
	if errors.Is(err, apperrors.ErrAuth) || ctx.Err() != nil {
		return err
	}
	logger.FromContext(ctx).Warn(msg, append(attrs, "error", err)...)
	return nil
}

func (o *Orchestrator) process(ctx context.Context, st *runState) error {
	processed, err := o.deps.Processor.Process(ctx, process.Inputs{
		Incident: st.raw,
		Document: st.document,
		Solution: st.solution,
		Tasks:    st.tasks,
	})
	if err != nil {
		return err
	}
	st.processed = processed
	st.result.IncidentID = processed.IncidentID
	st.result.Category = processed.Category
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, st *runState) error {
	text, err := o.deps.Drafter.Generate(ctx, st.processed)
	if err != nil {
		return err
	}
	st.text = text
	return nil
}

func (o *Orchestrator) render(_ context.Context, st *runState) error {
	report, err := o.deps.Renderer.Render(render.Document{
		Title: o.title(st.processed),
		Body:  st.text,
		Date:  render.ParseDate(st.processed.Date),
	})
	if err != nil {
		return err
	}
	st.report = report
	return nil
}

// storeAndIndex writes the report and its index entry. The entry is upserted
// even when the object already existed so a run interrupted between the two
// writes is completed by the next one.
func (o *Orchestrator) storeAndIndex(ctx context.Context, st *runState) error {
	p := st.processed
	key, existed, err := o.deps.Store.Put(ctx, p.Category, p.IncidentID, st.report.Bytes)
	if err != nil {
		return err
	}
	address := objectstore.ContentAddress(st.report.Bytes)

	entry := incident.IndexEntry{
		ID:             incident.EntryID(p.IncidentID, address),
		IncidentID:     p.IncidentID,
		Category:       p.Category,
		ContentAddress: address,
		ObjectKey:      key,
		ReportText:     st.text,
		SolutionText:   p.Solution,
		Tasks:          p.Tasks,
		Date:           p.Date,
		Title:          p.Title,
	}
	if entry.Tasks == nil {
		entry.Tasks = []incident.Task{}
	}

	if err := o.deps.Index.EnsureIndex(ctx, o.deps.IndexName); err != nil {
		return err
	}
	if err := o.deps.Index.Upsert(ctx, o.deps.IndexName, entry); err != nil {
		return err
	}

	st.result.ObjectKey = key
	st.result.ContentAddress = address
	st.result.EntryID = entry.ID
	st.result.AlreadyExisted = existed
	return nil
}

// writeBack posts the drafted text as the ticket solution. Failures are
// logged only; the stored report stays.
func (o *Orchestrator) writeBack(ctx context.Context, st *runState) bool {
	log := logger.FromContext(ctx)
	ok, err := o.deps.Source.UpsertSolution(ctx, st.processed.IncidentID, st.text)
	if err != nil {
		log.Error("Solution write-back failed", "category", apperrors.Category(err), "error", err)
		return false
	}
	if !ok {
		log.Warn("Solution write-back was not accepted")
		return false
	}
	log.Info("Solution written back")
	return true
}

// title formats ReportTitle with the incident id when it carries a verb.
func (o *Orchestrator) title(p incident.ProcessedIncident) string {
	format := o.deps.ReportTitle
	if format == "" {
		format = config.DefaultPipelineReportTitle
	}
	if strings.Contains(format, "%d") {
		return fmt.Sprintf(format, p.IncidentID)
	}
	return fmt.Sprintf("%s #%d", format, p.IncidentID)
}
