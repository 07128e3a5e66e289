package run

import (
	"fmt"

	"github.com/BaSui01/runflow/types"
)

// Request is a raw run request as it arrives from the ingress layer.
// String-or-list fields keep their union form here; Validate normalizes
// them so no downstream component handles the union again.
type Request struct {
	AssistantID string         `json:"assistant_id"`
	ThreadID    string         `json:"thread_id,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Command     *types.Command `json:"command,omitempty"`

	// InterruptBefore and InterruptAfter accept a single node id or a list.
	InterruptBefore any `json:"interrupt_before,omitempty"`
	InterruptAfter  any `json:"interrupt_after,omitempty"`

	// StreamMode accepts a single mode tag or a list.
	StreamMode any `json:"stream_mode,omitempty"`

	MultitaskStrategy string         `json:"multitask_strategy,omitempty"`
	OnDisconnect      string         `json:"on_disconnect,omitempty"`
	OnCompletion      string         `json:"on_completion,omitempty"`
	Webhook           string         `json:"webhook,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// NormalizedRequest is a validated request with every union field resolved
// into its canonical form.
type NormalizedRequest struct {
	AssistantID     string
	ThreadID        string
	Input           map[string]any
	Command         *types.Command
	InterruptBefore []string
	InterruptAfter  []string
	StreamModes     []types.StreamMode
	Strategy        types.MultitaskStrategy
	OnDisconnect    types.DisconnectPolicy
	OnCompletion    types.OnCompletion
	Webhook         string
	Metadata        map[string]any
}

// Resuming reports whether the request carries a resume command rather
// than fresh input.
func (r *NormalizedRequest) Resuming() bool {
	return r.Command != nil
}

// Validate checks a raw request and normalizes it. It has no side effects
// and never touches storage.
func Validate(req *Request) (*NormalizedRequest, *types.Error) {
	if req.AssistantID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "assistant_id is required")
	}

	hasInput := req.Input != nil
	hasCommand := req.Command != nil && !req.Command.Empty()
	if hasInput && hasCommand {
		return nil, types.NewError(types.ErrInvalidRequest, "Cannot specify both 'input' and 'command'")
	}
	if !hasInput && !hasCommand {
		return nil, types.NewError(types.ErrInvalidRequest, "Must specify either 'input' or 'command'")
	}

	before, err := normalizeNodeSet("interrupt_before", req.InterruptBefore)
	if err != nil {
		return nil, err
	}
	after, err := normalizeNodeSet("interrupt_after", req.InterruptAfter)
	if err != nil {
		return nil, err
	}

	modes, err := normalizeStreamModes(req.StreamMode)
	if err != nil {
		return nil, err
	}

	strategy, err := normalizeStrategy(req.MultitaskStrategy)
	if err != nil {
		return nil, err
	}

	disconnect, err := normalizeDisconnect(req.OnDisconnect)
	if err != nil {
		return nil, err
	}

	completion, err := normalizeCompletion(req.OnCompletion)
	if err != nil {
		return nil, err
	}

	out := &NormalizedRequest{
		AssistantID:     req.AssistantID,
		ThreadID:        req.ThreadID,
		Input:           req.Input,
		InterruptBefore: before,
		InterruptAfter:  after,
		StreamModes:     modes,
		Strategy:        strategy,
		OnDisconnect:    disconnect,
		OnCompletion:    completion,
		Webhook:         req.Webhook,
		Metadata:        req.Metadata,
	}
	if hasCommand {
		out.Command = req.Command
	}
	return out, nil
}

// normalizeNodeSet turns a single node id or a list into an ordered set of
// unique identifiers.
func normalizeNodeSet(field string, v any) ([]string, *types.Error) {
	if v == nil {
		return nil, nil
	}

	var raw []string
	switch t := v.(type) {
	case string:
		raw = []string{t}
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, types.NewError(types.ErrInvalidRequest,
					fmt.Sprintf("%s must be a node id or a list of node ids", field))
			}
			raw = append(raw, s)
		}
	default:
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("%s must be a node id or a list of node ids", field))
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// ParseStreamModes resolves a stream-mode union (single tag, list, or nil)
// into the canonical ordered set. Exposed for query-parameter parsing in
// the ingress layer.
func ParseStreamModes(v any) ([]types.StreamMode, *types.Error) {
	return normalizeStreamModes(v)
}

// normalizeStreamModes turns a single tag or list into an ordered set of
// recognized stream modes, defaulting to values.
func normalizeStreamModes(v any) ([]types.StreamMode, *types.Error) {
	if v == nil {
		return []types.StreamMode{types.StreamModeValues}, nil
	}

	var raw []string
	switch t := v.(type) {
	case string:
		raw = []string{t}
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, types.NewError(types.ErrInvalidRequest, "stream_mode must be a tag or a list of tags")
			}
			raw = append(raw, s)
		}
	default:
		return nil, types.NewError(types.ErrInvalidRequest, "stream_mode must be a tag or a list of tags")
	}

	seen := make(map[types.StreamMode]struct{}, len(raw))
	out := make([]types.StreamMode, 0, len(raw))
	for _, tag := range raw {
		mode := types.StreamMode(tag)
		switch mode {
		case types.StreamModeValues, types.StreamModeUpdates, types.StreamModeMessages,
			types.StreamModeEvents, types.StreamModeDebug:
		default:
			return nil, types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("unrecognized stream mode: %s", tag))
		}
		if _, dup := seen[mode]; dup {
			continue
		}
		seen[mode] = struct{}{}
		out = append(out, mode)
	}
	if len(out) == 0 {
		out = []types.StreamMode{types.StreamModeValues}
	}
	return out, nil
}

func normalizeStrategy(s string) (types.MultitaskStrategy, *types.Error) {
	switch types.MultitaskStrategy(s) {
	case "":
		return types.MultitaskReject, nil
	case types.MultitaskReject, types.MultitaskEnqueue, types.MultitaskInterrupt, types.MultitaskParallel:
		return types.MultitaskStrategy(s), nil
	default:
		return "", types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unrecognized multitask strategy: %s", s))
	}
}

func normalizeDisconnect(s string) (types.DisconnectPolicy, *types.Error) {
	switch types.DisconnectPolicy(s) {
	case "":
		return types.DisconnectContinue, nil
	case types.DisconnectCancel, types.DisconnectContinue:
		return types.DisconnectPolicy(s), nil
	default:
		return "", types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unrecognized disconnect policy: %s", s))
	}
}

func normalizeCompletion(s string) (types.OnCompletion, *types.Error) {
	switch types.OnCompletion(s) {
	case "":
		return types.OnCompletionKeep, nil
	case types.OnCompletionKeep, types.OnCompletionDelete:
		return types.OnCompletion(s), nil
	default:
		return "", types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unrecognized on_completion: %s", s))
	}
}
