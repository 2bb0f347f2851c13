// Package generate drafts the report text for a processed incident.
package generate

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/harunnryd/autopdf/internal/config"
	apperrors "github.com/harunnryd/autopdf/internal/errors"
	"github.com/harunnryd/autopdf/internal/incident"
	"github.com/harunnryd/autopdf/internal/logger"
	"github.com/harunnryd/autopdf/internal/model/contract"
)

// maxDocumentChars bounds how much attachment text goes into the prompt.
const maxDocumentChars = 8000

// Completer is the subset of the model router the generator needs.
type Completer interface {
	Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error)
}

type PromptConfig struct {
	System     string
	Guidelines string
}

type Options struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxIterations int
	Prompt        PromptConfig
}

type Generator struct {
	llm  Completer
	opts Options
}

func New(llm Completer, opts Options) *Generator {
	if strings.TrimSpace(opts.Prompt.System) == "" {
		opts.Prompt.System = config.DefaultReportSystemPrompt
	}
	if strings.TrimSpace(opts.Prompt.Guidelines) == "" {
		opts.Prompt.Guidelines = config.DefaultReportGuidelinesPrompt
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = config.DefaultPipelineMaxGenerationIteration
	}

	return &Generator{llm: llm, opts: opts}
}

// NewFromConfig builds a generator from the models, pipeline and prompt sections.
func NewFromConfig(llm Completer, cfg *config.Config) *Generator {
	return New(llm, Options{
		Model:         cfg.Models.Default,
		Temperature:   cfg.Models.Temperature,
		MaxTokens:     cfg.Models.MaxTokens,
		MaxIterations: cfg.Pipeline.MaxGenerationIterations,
		Prompt: PromptConfig{
			System:     cfg.Prompts.Report.System,
			Guidelines: cfg.Prompts.Report.Guidelines,
		},
	})
}

// Generate returns the drafted report body in markdown. An empty or failed
// completion is retried until MaxIterations attempts have been made.
func (g *Generator) Generate(ctx context.Context, in incident.ProcessedIncident) (string, error) {
	log := logger.FromContext(ctx)
	req := contract.CompletionRequest{
		Model: g.opts.Model,
		Messages: []contract.Message{
			{Role: contract.RoleSystem, Content: g.opts.Prompt.System},
			{Role: contract.RoleUser, Content: g.buildPrompt(in)},
		},
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	}

	var lastErr error
	for attempt := 1; attempt <= g.opts.MaxIterations; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", apperrors.Wrap(err, "generation cancelled")
		}

		resp, err := g.llm.Route(ctx, g.opts.Model, req)
		if err != nil {
			lastErr = err
			log.Warn("Report generation attempt failed", "attempt", attempt, "error", err)
			continue
		}

		text := stripFence(resp.Content)
		if text == "" {
			lastErr = fmt.Errorf("empty completion")
			log.Warn("Report generation returned empty content", "attempt", attempt)
			continue
		}

		log.Debug("Report drafted", "attempt", attempt, "chars", len(text))
		return text, nil
	}

	return "", apperrors.WrapWithCategory(lastErr,
		fmt.Sprintf("report generation failed after %d attempts", g.opts.MaxIterations),
		apperrors.ErrInternal)
}

func (g *Generator) buildPrompt(in incident.ProcessedIncident) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("INCIDENT: #%d %s\n", in.IncidentID, in.Title))
	sb.WriteString(fmt.Sprintf("CATEGORY: %s\n", in.Category))
	writeField(&sb, "STATUS", in.Status)
	writeField(&sb, "PRIORITY", in.Priority)
	writeField(&sb, "URGENCY", in.Urgency)
	writeField(&sb, "IMPACT", in.Impact)
	writeField(&sb, "OPENED", in.Date)
	writeField(&sb, "SOLVED", in.SolveDate)
	writeField(&sb, "RECIPIENT", in.Recipient)

	sb.WriteString(fmt.Sprintf("\nDESCRIPTION:\n%s\n", orNone(in.Content)))
	sb.WriteString(fmt.Sprintf("\nSOLUTION:\n%s\n", orNone(in.Solution)))

	sb.WriteString("\nTASKS:\n")
	if len(in.Tasks) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, t := range in.Tasks {
		sb.WriteString(fmt.Sprintf("- [%s] %s", t.State, t.Content))
		if t.Owner != "" {
			sb.WriteString(fmt.Sprintf(" (owner: %s)", t.Owner))
		}
		sb.WriteString("\n")
	}

	if in.DocumentText != "" {
		sb.WriteString(fmt.Sprintf("\nATTACHMENT:\n%s\n", truncate(in.DocumentText, maxDocumentChars)))
	}

	sb.WriteString("\n" + g.opts.Prompt.Guidelines + "\n")
	return sb.String()
}

// truncate cuts s to at most n bytes on a rune boundary and marks the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func writeField(sb *strings.Builder, name, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	sb.WriteString(fmt.Sprintf("%s: %s\n", name, value))
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

// stripFence removes a single surrounding ``` fence some models add.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
