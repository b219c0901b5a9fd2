package projector

import (
	"sort"

	"caseledger/internal/op"
)

// Field is the projected record for one target (or designation key).
type Field struct {
	// Value is the field's current value, nil after nullification. When
	// States is non-nil the field is in superposition and Value is unset.
	Value     op.Value `json:"value"`
	SourceOp  string   `json:"source_op"`
	Epistemic string   `json:"epistemic"`
	TS        int64    `json:"ts"`
	// NullifiedBy is the id of the nullifying operation. The entry stays
	// in the map so the nullification itself remains visible.
	NullifiedBy string `json:"nullified_by,omitempty"`
	// States holds the candidate states of a superposition. Multiple
	// simultaneous interpretations are a legitimate terminal state, not an
	// error to resolve.
	States op.VArray `json:"states,omitempty"`
}

// State maps field names (and "<field>.designation" sibling keys) to their
// final projected records.
type State map[string]Field

// Project replays records whose frame type matches frameType into a
// field-state map.
//
// Records are stable-sorted by timestamp ascending before replay; records
// sharing a timestamp keep their relative input order, so the caller's
// assembly order is the tiebreak. For records read from one room timeline
// the store's event order makes this deterministic.
func Project(records []op.Record, frameType string) State {
	filtered := make([]op.Record, 0, len(records))
	for _, r := range records {
		if r.Frame.Type == frameType {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].TS < filtered[j].TS
	})

	state := State{}
	for _, r := range filtered {
		apply(state, r)
	}
	return state
}

// apply folds one record into the state map. The switch names every
// operator so adding a tenth is a compile-visible change here.
func apply(state State, r op.Record) {
	switch r.Op {
	case op.INS:
		// First writer establishes existence; later INS on the same field
		// is a recorded fact with no projection effect.
		if _, exists := state[r.Target]; exists {
			return
		}
		state[r.Target] = Field{
			Value:     r.Operand["value"],
			SourceOp:  r.ID,
			Epistemic: r.Frame.Epistemic,
			TS:        r.TS,
		}

	case op.ALT:
		// Alteration requires a prior insertion; on an absent field it is
		// a recorded no-op.
		field, exists := state[r.Target]
		if !exists {
			return
		}
		field.Value = r.Operand["to"]
		field.SourceOp = r.ID
		field.TS = r.TS
		state[r.Target] = field

	case op.NUL:
		// Nullification applies to absent fields too: the null entry with
		// its nullified_by stamp is the visible trace.
		field := state[r.Target]
		field.Value = nil
		field.States = nil
		field.SourceOp = r.ID
		field.Epistemic = r.Frame.Epistemic
		field.TS = r.TS
		field.NullifiedBy = r.ID
		state[r.Target] = field

	case op.SUP:
		states, _ := r.Operand["states"].(op.VArray)
		state[r.Target] = Field{
			SourceOp:  r.ID,
			Epistemic: r.Frame.Epistemic,
			TS:        r.TS,
			States:    states,
		}

	case op.DES:
		// Designation lives beside the field, never in it.
		state[r.Target+".designation"] = Field{
			Value:     r.Operand["designation"],
			SourceOp:  r.ID,
			Epistemic: r.Frame.Epistemic,
			TS:        r.TS,
		}

	case op.SEG, op.CON, op.SYN, op.REC:
		// Recorded facts with no field-state projection. They stay in the
		// log for provenance and audit; projection passes over them.
	}
}
