package messages

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// StepStatus is the lifecycle state of a reasoning step or nested description
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "inprogress"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// DefaultStepType is assumed when a meta_content event omits the step type
const DefaultStepType = "text"

// maxDescriptionDepth caps recursion over nested description trees. The
// backend does not promise a maximum nesting depth, so pathological input
// must not blow the stack; nodes past the cap are skipped and logged.
const maxDescriptionDepth = 32

// ThinkingStep is one step of the reasoning trace shown to the user.
// IDs are numeric-sortable strings assigned by the backend.
type ThinkingStep struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Status      StepStatus            `json:"status"`
	Type        string                `json:"type,omitempty"`
	Description []ThinkingDescription `json:"description"`
}

// ThinkingDescription is a node of the arbitrarily nested detail tree
// attached to a step
type ThinkingDescription struct {
	Title       string          `json:"title,omitempty"`
	Execution   string          `json:"execution,omitempty"`
	Status      StepStatus      `json:"status,omitempty"`
	Type        string          `json:"type,omitempty"`
	Description DescriptionBody `json:"description,omitempty"`
}

// DescriptionBody is either plain text or a nested description list on the
// wire. At most one of Text/Children is set.
type DescriptionBody struct {
	Text     string
	Children []ThinkingDescription
}

// UnmarshalJSON accepts a JSON string, an array of descriptions, or a single
// description object (normalized to a one-element list)
func (d *DescriptionBody) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '"':
		return json.Unmarshal(data, &d.Text)
	case '[':
		return json.Unmarshal(data, &d.Children)
	default:
		var one ThinkingDescription
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		d.Children = []ThinkingDescription{one}
		return nil
	}
}

// MarshalJSON writes back the same shape that was received
func (d DescriptionBody) MarshalJSON() ([]byte, error) {
	if d.Children != nil {
		return json.Marshal(d.Children)
	}
	return json.Marshal(d.Text)
}

// IsEmpty reports whether the body carries neither text nor children
func (d DescriptionBody) IsEmpty() bool {
	return d.Text == "" && len(d.Children) == 0
}

func (t *ThinkingDescription) hasError(depth int) bool {
	if t == nil {
		return false
	}
	if depth >= maxDescriptionDepth {
		zap.S().Debugw("thinking_description_depth_capped", "title", t.Title)
		return false
	}
	if t.Status == StepError {
		return true
	}
	for i := range t.Description.Children {
		if t.Description.Children[i].hasError(depth + 1) {
			return true
		}
	}
	return false
}

// HasNestedError reports whether any node of the description tree carries an
// error status, regardless of the statuses declared above it. A nested tool
// failure flips the owning step to error even when the event said otherwise.
func HasNestedError(descs []ThinkingDescription) bool {
	for i := range descs {
		if descs[i].hasError(0) {
			return true
		}
	}
	return false
}

// EffectiveStatus returns the step status after bottom-up error aggregation
func (s *ThinkingStep) EffectiveStatus() StepStatus {
	if s.Status == StepError || HasNestedError(s.Description) {
		return StepError
	}
	return s.Status
}

// numericID parses a step ID for ordering. Non-numeric IDs sort after all
// numeric ones so a stray ID never shuffles the trace.
func numericID(id string) (int, bool) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return 0, false
	}
	return n, true
}

func compareStepIDs(a, b string) int {
	an, aok := numericID(a)
	bn, bok := numericID(b)
	switch {
	case aok && bok:
		return an - bn
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// UpsertStep folds one incoming meta_content step into the ordered trace and
// returns the updated slice. The input slice is not modified.
//
// Rules, in order:
//   - nested description errors override the declared status
//   - steps are deduplicated by Title or ID, first existing match wins; an
//     error status on either side survives the merge, never the reverse
//   - when the incoming step is inprogress, every other inprogress step with
//     a lower ID is promoted to completed (or error, per its own tree)
//   - the trace stays sorted by numeric ID ascending
func UpsertStep(steps []ThinkingStep, incoming ThinkingStep) []ThinkingStep {
	if incoming.Type == "" {
		incoming.Type = DefaultStepType
	}
	incoming.Status = incoming.EffectiveStatus()

	out := make([]ThinkingStep, len(steps))
	copy(out, steps)

	found := -1
	for i := range out {
		if out[i].Title == incoming.Title || out[i].ID == incoming.ID {
			found = i
			break
		}
	}

	if found >= 0 {
		if out[found].Status == StepError {
			// error is sticky; everything else refreshes
			incoming.Status = StepError
		}
		out[found] = incoming
	} else {
		out = append(out, incoming)
	}

	if incoming.Status == StepInProgress {
		out = promoteEarlier(out, incoming.ID)
	}

	slices.SortStableFunc(out, func(a, b ThinkingStep) int {
		return compareStepIDs(a.ID, b.ID)
	})
	return out
}

// promoteEarlier finishes every inprogress step that precedes activeID, so
// at most one step is ever inprogress from the consumer's perspective
func promoteEarlier(steps []ThinkingStep, activeID string) []ThinkingStep {
	for i := range steps {
		if steps[i].ID == activeID || steps[i].Status != StepInProgress {
			continue
		}
		if compareStepIDs(steps[i].ID, activeID) >= 0 {
			continue
		}
		if HasNestedError(steps[i].Description) {
			steps[i].Status = StepError
		} else {
			steps[i].Status = StepCompleted
		}
	}
	return steps
}

// CompleteSteps forces the terminal shape of the trace: every step becomes
// completed except those carrying an error, which keep it
func CompleteSteps(steps []ThinkingStep) []ThinkingStep {
	out := make([]ThinkingStep, len(steps))
	copy(out, steps)
	for i := range out {
		if out[i].EffectiveStatus() == StepError {
			out[i].Status = StepError
			continue
		}
		out[i].Status = StepCompleted
	}
	return out
}

// AnyInProgress reports whether the trace still has an active step; this is
// the isThinking aggregate published with most patches
func AnyInProgress(steps []ThinkingStep) bool {
	for i := range steps {
		if steps[i].Status == StepInProgress {
			return true
		}
	}
	return false
}
