package op

import (
	"fmt"
)

// Frame is the epistemic context an operation is recorded under. Projection
// filters on Type, so operations recorded under different frames never mix
// into one field-state map.
type Frame struct {
	// Type is the frame discriminator (e.g. "observed", "institutional").
	Type string `json:"type"`
	// Epistemic qualifies how the fact is known (e.g. "self_reported",
	// "verified", "inferred").
	Epistemic string `json:"epistemic"`
	// Role is the recording actor's role at the time of the operation.
	Role string `json:"role"`
}

// Record is the immutable unit of the operation log.
//
// Provenance always ends with the id of the immediately preceding operation
// recorded locally for the same (room, target), when one exists. This is a
// local causal link, not a globally verified one: two writers with separate
// chains can fork the history, and the store's ultimate event order is what
// reconciles them.
type Record struct {
	ID           string   `json:"id"`
	Op           Operator `json:"op"`
	Target       string   `json:"target"`
	Operand      Operand  `json:"operand"`
	Frame        Frame    `json:"frame"`
	Provenance   []string `json:"provenance"`
	CreatedBy    string   `json:"created_by"`
	OriginServer string   `json:"origin_server"`
	// TS is a wall-clock timestamp in Unix milliseconds. Monotonic-ish:
	// callers stamp from a single clock per process, but cross-process skew
	// is possible and the projector's stable sort tolerates ties.
	TS int64 `json:"ts"`
}

// Validate checks structural invariants before a record is appended.
// Returns all problems, not just the first.
func (r Record) Validate() []error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, fmt.Errorf("id: must not be empty"))
	}
	if !r.Op.Valid() {
		errs = append(errs, fmt.Errorf("op: %d is not one of the nine operators", int(r.Op)))
	}
	if r.Target == "" {
		errs = append(errs, fmt.Errorf("target: must not be empty"))
	}
	if r.CreatedBy == "" {
		errs = append(errs, fmt.Errorf("created_by: must not be empty"))
	}
	if r.TS <= 0 {
		errs = append(errs, fmt.Errorf("ts: must be a positive Unix-millisecond timestamp"))
	}
	for i, p := range r.Provenance {
		if p == "" {
			errs = append(errs, fmt.Errorf("provenance[%d]: must not be empty", i))
		}
	}
	return errs
}

// CanonicalPayload converts the record into the canonical map shape written
// to the room timeline. The same bytes feed content fingerprints, so the
// field set here is the record's durable identity.
func (r Record) CanonicalPayload() (VObject, error) {
	operand := r.Operand
	if operand == nil {
		operand = VObject{}
	}

	provenance := make(VArray, len(r.Provenance))
	for i, p := range r.Provenance {
		provenance[i] = VString(p)
	}

	return VObject{
		"id":            VString(r.ID),
		"op":            VString(r.Op.String()),
		"target":        VString(r.Target),
		"operand":       operand,
		"frame":         VObject{"type": VString(r.Frame.Type), "epistemic": VString(r.Frame.Epistemic), "role": VString(r.Frame.Role)},
		"provenance":    provenance,
		"created_by":    VString(r.CreatedBy),
		"origin_server": VString(r.OriginServer),
		"ts":            VInt(r.TS),
	}, nil
}

// RecordFromPayload reverses CanonicalPayload for records read back from a
// room timeline.
func RecordFromPayload(payload VObject) (Record, error) {
	var r Record

	str := func(key string) (string, error) {
		v, ok := payload[key]
		if !ok {
			return "", fmt.Errorf("payload missing %q", key)
		}
		s, ok := v.(VString)
		if !ok {
			return "", fmt.Errorf("payload %q: expected string, got %T", key, v)
		}
		return string(s), nil
	}

	id, err := str("id")
	if err != nil {
		return r, err
	}
	r.ID = id

	opCode, err := str("op")
	if err != nil {
		return r, err
	}
	operator, err := ParseOperator(opCode)
	if err != nil {
		return r, err
	}
	r.Op = operator

	if r.Target, err = str("target"); err != nil {
		return r, err
	}
	if r.CreatedBy, err = str("created_by"); err != nil {
		return r, err
	}
	if r.OriginServer, err = str("origin_server"); err != nil {
		return r, err
	}

	ts, ok := payload["ts"].(VInt)
	if !ok {
		return r, fmt.Errorf("payload ts: expected integer, got %T", payload["ts"])
	}
	r.TS = int64(ts)

	if operand, ok := payload["operand"].(VObject); ok {
		r.Operand = operand
	} else {
		return r, fmt.Errorf("payload operand: expected object, got %T", payload["operand"])
	}

	frame, ok := payload["frame"].(VObject)
	if !ok {
		return r, fmt.Errorf("payload frame: expected object, got %T", payload["frame"])
	}
	if t, ok := frame["type"].(VString); ok {
		r.Frame.Type = string(t)
	}
	if e, ok := frame["epistemic"].(VString); ok {
		r.Frame.Epistemic = string(e)
	}
	if role, ok := frame["role"].(VString); ok {
		r.Frame.Role = string(role)
	}

	if provenance, ok := payload["provenance"].(VArray); ok {
		r.Provenance = make([]string, len(provenance))
		for i, p := range provenance {
			s, ok := p.(VString)
			if !ok {
				return r, fmt.Errorf("payload provenance[%d]: expected string, got %T", i, p)
			}
			r.Provenance[i] = string(s)
		}
	}

	return r, nil
}
