package run

import (
	"github.com/google/uuid"

	"github.com/BaSui01/runflow/types"
)

// InterruptMarker is the reserved key whose presence in an engine's
// terminal output marks the execution as suspended awaiting human input.
const InterruptMarker = "__interrupt__"

// OutcomeKind tags the classification of an engine's terminal output.
type OutcomeKind string

const (
	// OutcomeFinished means the workflow produced an answer.
	OutcomeFinished OutcomeKind = "finished"
	// OutcomeSuspended means the workflow is waiting on a human.
	OutcomeSuspended OutcomeKind = "suspended"
)

// Outcome is the tagged result of classifying an engine's terminal output.
// It is the single disambiguation point between "finished" and "suspended";
// all downstream status and webhook behavior derives from it.
type Outcome struct {
	Kind OutcomeKind

	// Output is the full terminal output. Set for finished outcomes.
	Output map[string]any

	// Payload is the suspension marker's value, verbatim. Set for suspended
	// outcomes; it is stored on the run and re-surfaced unchanged.
	Payload any

	// Interrupts is the payload parsed into pending interrupt requests.
	Interrupts []types.Interrupt
}

// Classify inspects an engine's terminal output. Presence of the reserved
// suspension marker classifies the run as suspended regardless of any other
// output content.
func Classify(output map[string]any) Outcome {
	if output == nil {
		return Outcome{Kind: OutcomeFinished}
	}
	payload, ok := output[InterruptMarker]
	if !ok {
		return Outcome{Kind: OutcomeFinished, Output: output}
	}
	return Outcome{
		Kind:       OutcomeSuspended,
		Payload:    payload,
		Interrupts: parseInterrupts(payload),
	}
}

// parseInterrupts converts the marker value into the ordered interrupt
// sequence. Unrecognized shapes become a single resumable interrupt wrapping
// the raw value, so nothing the engine reports is ever dropped.
func parseInterrupts(payload any) []types.Interrupt {
	switch v := payload.(type) {
	case []types.Interrupt:
		return v
	case []any:
		out := make([]types.Interrupt, 0, len(v))
		for _, item := range v {
			out = append(out, parseOne(item))
		}
		return out
	default:
		return []types.Interrupt{parseOne(payload)}
	}
}

func parseOne(item any) types.Interrupt {
	if in, ok := item.(types.Interrupt); ok {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		return in
	}

	m, ok := item.(map[string]any)
	if !ok {
		return types.Interrupt{ID: uuid.NewString(), Value: item, Resumable: true}
	}

	in := types.Interrupt{Resumable: true}
	if id, ok := m["id"].(string); ok {
		in.ID = id
	} else if id, ok := m["interrupt_id"].(string); ok {
		in.ID = id
	} else {
		in.ID = uuid.NewString()
	}
	if v, ok := m["value"]; ok {
		in.Value = v
	} else {
		in.Value = m
	}
	if r, ok := m["resumable"].(bool); ok {
		in.Resumable = r
	}
	return in
}
