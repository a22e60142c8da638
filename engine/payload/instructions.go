package payload

import "encoding/json"

// ChunkMethod selects the splitting strategy applied by the chunk stage.
type ChunkMethod string

const (
	ChunkNone      ChunkMethod = "none"
	ChunkSentence  ChunkMethod = "sentence"
	ChunkSemantic  ChunkMethod = "semantic"
	ChunkLLM       ChunkMethod = "llm"
	ChunkFixedSize ChunkMethod = "fixed_size"
)

// EnrichmentMethod selects a metadata extraction applied by the enrich stage.
type EnrichmentMethod string

const (
	EnrichNone      EnrichmentMethod = "none"
	EnrichSummary   EnrichmentMethod = "summary"
	EnrichQuestions EnrichmentMethod = "questions"
	EnrichEntities  EnrichmentMethod = "entities"
	EnrichKeywords  EnrichmentMethod = "keywords"
)

// Default instruction values.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Instructions is the mutable "what to do next" state embedded in a payload.
// A stage resets the instruction it honoured after processing, so replaying
// a payload through the same stage is a no-op. Option keys this version does
// not recognise survive a load/save round trip untouched.
type Instructions struct {
	ChunkMethod       ChunkMethod
	ChunkSize         int
	ChunkOverlap      int
	EnrichmentMethods []EnrichmentMethod

	// extra holds unrecognised option fields, preserved as-is.
	extra map[string]json.RawMessage
}

// DefaultInstructions returns the instruction set a fresh payload carries.
func DefaultInstructions() Instructions {
	return Instructions{
		ChunkMethod:       ChunkNone,
		ChunkSize:         DefaultChunkSize,
		ChunkOverlap:      DefaultChunkOverlap,
		EnrichmentMethods: []EnrichmentMethod{EnrichNone},
	}
}

// NeedsEnrichment reports whether any real enrichment method is requested.
func (in Instructions) NeedsEnrichment() bool {
	for _, m := range in.EnrichmentMethods {
		if m != EnrichNone && m != "" {
			return true
		}
	}
	return false
}

// known instruction keys; everything else passes through.
const (
	keyChunkMethod       = "chunk_method"
	keyChunkSize         = "chunk_size"
	keyChunkOverlap      = "chunk_overlap"
	keyEnrichmentMethods = "enrichment_methods"
)

// UnmarshalJSON decodes recognised options and stashes unknown keys.
func (in *Instructions) UnmarshalJSON(data []byte) error {
	*in = DefaultInstructions()

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, val := range raw {
		switch key {
		case keyChunkMethod:
			if err := json.Unmarshal(val, &in.ChunkMethod); err != nil {
				return err
			}
		case keyChunkSize:
			if err := json.Unmarshal(val, &in.ChunkSize); err != nil {
				return err
			}
		case keyChunkOverlap:
			if err := json.Unmarshal(val, &in.ChunkOverlap); err != nil {
				return err
			}
		case keyEnrichmentMethods:
			if err := json.Unmarshal(val, &in.EnrichmentMethods); err != nil {
				return err
			}
		default:
			if in.extra == nil {
				in.extra = make(map[string]json.RawMessage)
			}
			in.extra[key] = val
		}
	}
	if len(in.EnrichmentMethods) == 0 {
		in.EnrichmentMethods = []EnrichmentMethod{EnrichNone}
	}
	return nil
}

// MarshalJSON emits recognised options plus any pass-through keys.
func (in Instructions) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(in.extra)+4)
	for key, val := range in.extra {
		out[key] = val
	}

	set := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = b
		return nil
	}
	if err := set(keyChunkMethod, in.ChunkMethod); err != nil {
		return nil, err
	}
	if err := set(keyChunkSize, in.ChunkSize); err != nil {
		return nil, err
	}
	if err := set(keyChunkOverlap, in.ChunkOverlap); err != nil {
		return nil, err
	}
	methods := in.EnrichmentMethods
	if len(methods) == 0 {
		methods = []EnrichmentMethod{EnrichNone}
	}
	if err := set(keyEnrichmentMethods, methods); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}
