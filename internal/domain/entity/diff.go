package entity

// DiffKind distinguishes how endpoints disagree about a field.
type DiffKind string

const (
	// ValueMismatch means every endpoint carries the field but the canonical
	// values differ.
	ValueMismatch DiffKind = "value_mismatch"

	// MissingField means the field is present on some endpoints and absent
	// on others.
	MissingField DiffKind = "missing_field"
)

// FieldValue is one equality group inside a FieldDiff: a canonical value and
// the endpoints that reported it. Absent is set for the group of endpoints
// missing the field entirely.
type FieldValue struct {
	Value     CanonicalValue `json:"value"`
	Absent    bool           `json:"absent,omitempty"`
	Endpoints []string       `json:"endpoints"`
}

// FieldDiff is one mismatching field path. Groups are ordered largest first;
// the first group is the majority value, which is presentation only and does
// not imply correctness.
type FieldDiff struct {
	Path string   `json:"path"`
	Kind DiffKind `json:"kind"`

	// Informational marks diffs on informational-class fields: carried for
	// context, not a disagreement trigger.
	Informational bool `json:"informational,omitempty"`

	Groups []FieldValue `json:"groups"`
}

// DiffReport aggregates all field diffs for one block across the endpoint
// set. An empty Diffs slice is a meaningful "all endpoints agree" outcome.
type DiffReport struct {
	Ref BlockRef `json:"block"`

	// Endpoints lists the endpoints whose payloads were compared, i.e. those
	// that returned success for this block.
	Endpoints []string `json:"endpoints"`

	// Unavailable maps endpoints that failed for this block to the captured
	// failure detail. These never appear inside Diffs.
	Unavailable map[string]string `json:"unavailable,omitempty"`

	// Reference names the designated reference endpoint, when configured.
	Reference string `json:"reference,omitempty"`

	Diffs []FieldDiff `json:"diffs"`
}

// Agreement reports whether all compare-class fields matched. Informational
// diffs do not break agreement.
func (r *DiffReport) Agreement() bool {
	for _, d := range r.Diffs {
		if !d.Informational {
			return false
		}
	}
	return true
}

// MismatchCount returns the number of non-informational field diffs.
func (r *DiffReport) MismatchCount() int {
	n := 0
	for _, d := range r.Diffs {
		if !d.Informational {
			n++
		}
	}
	return n
}
