package op

import (
	"encoding/json"
	"fmt"
)

// Operator is the closed set of semantic actions an operation record can
// carry. The set is fixed at nine members; the projector matches on all of
// them exhaustively so that adding or removing an operator is a
// compile-visible change, not a silently ignored string.
type Operator int

const (
	// NUL nullifies a field's value while keeping the field entry visible.
	NUL Operator = iota + 1
	// DES attaches a designation to a field without touching its value.
	DES
	// INS establishes a field with an initial value (first writer wins).
	INS
	// SEG records a segmentation boundary on the target path.
	SEG
	// CON records a connection between the target and another entity.
	CON
	// SYN records a synchronization point with an external source.
	SYN
	// ALT overwrites the value of an already-established field.
	ALT
	// SUP places a field into superposition: multiple candidate states
	// coexist as a legitimate terminal state.
	SUP
	// REC records a free-standing fact that is never projected into field
	// state (audit-only).
	REC
)

// operatorNames maps operators to their three-letter wire codes.
var operatorNames = map[Operator]string{
	NUL: "NUL",
	DES: "DES",
	INS: "INS",
	SEG: "SEG",
	CON: "CON",
	SYN: "SYN",
	ALT: "ALT",
	SUP: "SUP",
	REC: "REC",
}

// operatorValues is the reverse of operatorNames for parsing.
var operatorValues = map[string]Operator{
	"NUL": NUL,
	"DES": DES,
	"INS": INS,
	"SEG": SEG,
	"CON": CON,
	"SYN": SYN,
	"ALT": ALT,
	"SUP": SUP,
	"REC": REC,
}

// Operators lists all nine operators in declaration order.
// The slice is reallocated on each call to prevent external mutation.
func Operators() []Operator {
	return []Operator{NUL, DES, INS, SEG, CON, SYN, ALT, SUP, REC}
}

// Valid reports whether o is one of the nine defined operators.
func (o Operator) Valid() bool {
	_, ok := operatorNames[o]
	return ok
}

// String returns the three-letter wire code, or "???" for unknown values.
func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "???"
}

// ParseOperator converts a wire code to an Operator.
// Returns an error for anything outside the nine-member set.
func ParseOperator(s string) (Operator, error) {
	if o, ok := operatorValues[s]; ok {
		return o, nil
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// MarshalJSON serializes the operator as its wire code.
func (o Operator) MarshalJSON() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid operator %d", int(o))
	}
	return json.Marshal(o.String())
}

// UnmarshalJSON parses the wire code form.
func (o *Operator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal operator: %w", err)
	}
	parsed, err := ParseOperator(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
