package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ragproc/ragproc/engine/payload"
	"github.com/ragproc/ragproc/pkg/fn"
	"github.com/ragproc/ragproc/pkg/llm"
	"github.com/ragproc/ragproc/pkg/metrics"
)

// DefaultMaxConcurrency bounds in-flight LLM calls per payload.
const DefaultMaxConcurrency = 5

// Master fans a payload's nodes out to the LLM, one prompt per node, under
// a bounded concurrency gate. One node's failure never affects its peers:
// the node simply keeps its metadata unchanged.
type Master struct {
	llm            llm.Completer
	maxConcurrency int
	logger         *slog.Logger
}

// NewMaster creates a Master. maxConcurrency <= 0 uses the default.
func NewMaster(completer llm.Completer, maxConcurrency int, logger *slog.Logger) *Master {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Master{llm: completer, maxConcurrency: maxConcurrency, logger: logger}
}

// ProcessPayload enriches every node with non-empty content in place and
// returns once all per-node units have settled.
func (m *Master) ProcessPayload(ctx context.Context, p *payload.Payload) {
	strategies := StrategiesFor(p.Content.Instructions.EnrichmentMethods)
	if len(strategies) == 0 {
		return
	}

	var targets []*payload.Node
	for i := range p.Content.Nodes {
		if strings.TrimSpace(p.Content.Nodes[i].PageContent) != "" {
			targets = append(targets, &p.Content.Nodes[i])
		}
	}
	if len(targets) == 0 {
		return
	}

	m.logger.Info("enriching nodes", "nodes", len(targets), "max_concurrency", m.maxConcurrency)
	fn.ParMapCtx(ctx, targets, m.maxConcurrency, func(ctx context.Context, node *payload.Node) fn.Result[struct{}] {
		m.enrichNode(ctx, node, strategies)
		return fn.Ok(struct{}{})
	})
}

// enrichNode builds the node's prompt, calls the model, and merges the
// decoded fields into the node's metadata. All failures are contained here.
func (m *Master) enrichNode(ctx context.Context, node *payload.Node, strategies []Strategy) {
	prompt := BuildPrompt(node.PageContent, strategies)

	complete := fn.Traced("enrich.node", func(ctx context.Context, prompt string) fn.Result[string] {
		return fn.FromPair(m.llm.Complete(ctx, prompt))
	})
	response, err := complete(ctx, prompt).Unwrap()
	if err != nil {
		metrics.LLMCalls.WithLabelValues("error").Inc()
		m.logger.Error("node enrichment failed", "error", err)
		return
	}

	data := ParseResponse(response)
	if data == nil {
		metrics.LLMCalls.WithLabelValues("unparseable").Inc()
		m.logger.Error("unparseable enrichment response", "response_len", len(response))
		return
	}

	if node.Metadata == nil {
		node.Metadata = make(map[string]any, len(data))
	}
	for k, v := range data {
		node.Metadata[k] = v
	}
	metrics.LLMCalls.WithLabelValues("ok").Inc()
}

// BuildPrompt renders the single-node extraction prompt: the active task
// definitions, a consolidated JSON schema keyed by output field, and the
// text under analysis. The contract demands one bare JSON object back.
func BuildPrompt(content string, strategies []Strategy) string {
	var tasks []string
	schema := make(map[string]any, len(strategies))
	fallbacks := make(map[string]any, len(strategies))
	var rules []string

	for _, s := range strategies {
		tasks = append(tasks, fmt.Sprintf("- %s: %s", s.TaskName(), s.TaskDescription()))
		schema[s.OutputField()] = s.OutputSchema()
		fallbacks[s.OutputField()] = s.FailureFallback()
		for _, r := range s.QualityRules() {
			rules = append(rules, fmt.Sprintf("- [%s] %s", s.TaskName(), r))
		}
	}

	schemaJSON, _ := json.MarshalIndent(schema, "", "  ")
	fallbackJSON, _ := json.Marshal(fallbacks)

	var b strings.Builder
	b.WriteString("You are a structured information extraction system, not a chat assistant.\n")
	b.WriteString("Analyze the text below and extract metadata.\n\n")
	b.WriteString("Tasks:\n")
	b.WriteString(strings.Join(tasks, "\n"))
	b.WriteString("\n\n")
	if len(rules) > 0 {
		b.WriteString("Quality rules:\n")
		b.WriteString(strings.Join(rules, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("Output requirements:\n")
	b.WriteString("1. Return exactly one plain JSON object and nothing else.\n")
	b.WriteString("2. The object must match this schema:\n")
	b.Write(schemaJSON)
	b.WriteString("\n3. If the text does not support a task, return its fallback value instead of inventing content: ")
	b.Write(fallbackJSON)
	b.WriteString("\n4. No explanations, no Markdown.\n\n")
	b.WriteString("Text:\n---\n")
	b.WriteString(content)
	b.WriteString("\n---\n")
	return b.String()
}

// ParseResponse decodes a model response into a field map. It tolerates one
// level of ```json fencing. A nil return means the response was unusable.
func ParseResponse(response string) map[string]any {
	text := strings.TrimSpace(response)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.Index(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil
	}
	return data
}
