// Package enrich is the pipeline's third stage: it annotates each node's
// metadata with LLM-derived fields under bounded concurrency.
package enrich

import "github.com/ragproc/ragproc/engine/payload"

// Strategy declares one enrichment: what to ask the model for and where the
// answer lands in node metadata.
type Strategy interface {
	Method() payload.EnrichmentMethod
	// TaskName is the short label used in the prompt's task list.
	TaskName() string
	// TaskDescription tells the model what this enrichment means.
	TaskDescription() string
	// OutputField is the JSON key the model must answer under; it is also
	// the metadata key the value merges into.
	OutputField() string
	// OutputSchema is the structural constraint surfaced to the model.
	OutputSchema() map[string]any
	// QualityRules are optional style constraints.
	QualityRules() []string
	// FailureFallback is the value the model should return when the text
	// does not support the task.
	FailureFallback() any
}

// builtins maps each enrichment method to its strategy. The entities method
// is a recognised instruction value with no strategy yet; payloads asking
// for it simply get nothing under that key.
var builtins = map[payload.EnrichmentMethod]Strategy{
	payload.EnrichSummary:   summaryStrategy{},
	payload.EnrichKeywords:  keywordStrategy{},
	payload.EnrichQuestions: questionStrategy{},
}

// StrategiesFor resolves the active strategies for the requested methods,
// preserving request order and skipping unknown or none entries.
func StrategiesFor(methods []payload.EnrichmentMethod) []Strategy {
	var out []Strategy
	for _, m := range methods {
		if s, ok := builtins[m]; ok {
			out = append(out, s)
		}
	}
	return out
}

type summaryStrategy struct{}

func (summaryStrategy) Method() payload.EnrichmentMethod { return payload.EnrichSummary }
func (summaryStrategy) TaskName() string                 { return "summary" }
func (summaryStrategy) TaskDescription() string {
	return "Write a summary of the text in at most 100 characters."
}
func (summaryStrategy) OutputField() string { return "summary" }
func (summaryStrategy) OutputSchema() map[string]any {
	return map[string]any{"type": "string", "max_length": 100}
}
func (summaryStrategy) QualityRules() []string {
	return []string{
		"Do not copy sentences verbatim from the text.",
		"Do not speculate beyond what the text states.",
		"Keep a neutral tone.",
	}
}
func (summaryStrategy) FailureFallback() any { return "" }

type keywordStrategy struct{}

func (keywordStrategy) Method() payload.EnrichmentMethod { return payload.EnrichKeywords }
func (keywordStrategy) TaskName() string                 { return "keywords" }
func (keywordStrategy) TaskDescription() string {
	return "Extract the core keywords of the text as a list."
}
func (keywordStrategy) OutputField() string { return "keywords" }
func (keywordStrategy) OutputSchema() map[string]any {
	return map[string]any{"type": "array", "items": "string", "min_items": 5, "max_items": 8}
}
func (keywordStrategy) QualityRules() []string { return nil }
func (keywordStrategy) FailureFallback() any   { return []string{} }

type questionStrategy struct{}

func (questionStrategy) Method() payload.EnrichmentMethod { return payload.EnrichQuestions }
func (questionStrategy) TaskName() string                 { return "suggested_questions" }
func (questionStrategy) TaskDescription() string {
	return "Propose 3 questions a reader would ask that this text answers."
}
func (questionStrategy) OutputField() string { return "suggested_questions" }
func (questionStrategy) OutputSchema() map[string]any {
	return map[string]any{"type": "array", "items": "string", "exact_items": 3}
}
func (questionStrategy) QualityRules() []string {
	return []string{
		"Questions must be specific to this text.",
		"No yes/no questions.",
	}
}
func (questionStrategy) FailureFallback() any { return []string{} }
