// Package normalize turns raw JSON-RPC payloads into comparison-stable
// field-path maps. Hex quantities collapse to canonical big integers, byte
// strings to a single hex casing, and policy-declared unordered arrays are
// re-indexed under a stable sort key, so formatting differences between
// endpoints never read as divergence.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/archon-research/jsonrpc-scan/internal/domain/entity"
	"github.com/archon-research/jsonrpc-scan/internal/pkg/hexutil"
)

// MalformedError reports a payload that cannot be normalized: not a JSON
// object, or a required consensus field absent or untypeable. This is a
// data-quality defect worth reporting, not a reason to abort a scan.
type MalformedError struct {
	Endpoint string
	Reason   string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed payload from %s: %s", e.Endpoint, e.Reason)
}

// Block normalizes one endpoint's block and receipt payloads. The result
// carries every non-ignored field as a path -> canonical value entry; block
// fields sit at the root, receipts under "receipts[i]".
func Block(raw *entity.RawBlockResult, policy *Policy) (*entity.NormalizedBlock, error) {
	fields := make(map[string]entity.CanonicalValue)

	blockObj, err := decodeObject(raw.Block)
	if err != nil {
		return nil, &MalformedError{Endpoint: raw.Endpoint, Reason: fmt.Sprintf("block payload: %v", err)}
	}
	walkValue("", blockObj, policy, fields)

	if len(raw.Receipts) > 0 {
		var receipts []interface{}
		if err := decodeInto(raw.Receipts, &receipts); err != nil {
			return nil, &MalformedError{Endpoint: raw.Endpoint, Reason: fmt.Sprintf("receipts payload: %v", err)}
		}
		walkValue("receipts", receipts, policy, fields)
	}

	for _, name := range policy.RequiredFields() {
		cv, ok := fields[name]
		if !ok {
			return nil, &MalformedError{Endpoint: raw.Endpoint, Reason: fmt.Sprintf("required field %q absent", name)}
		}
		if policy.IsQuantityField(name) && cv.Kind != entity.KindQuantity {
			return nil, &MalformedError{Endpoint: raw.Endpoint, Reason: fmt.Sprintf("required field %q untypeable: %q", name, cv.Raw)}
		}
	}

	return &entity.NormalizedBlock{
		Endpoint: raw.Endpoint,
		Ref:      raw.Ref,
		Fields:   fields,
	}, nil
}

// decodeObject decodes a JSON object preserving number formatting.
func decodeObject(data json.RawMessage) (map[string]interface{}, error) {
	var obj map[string]interface{}
	if err := decodeInto(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeInto(data json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// walkValue flattens a decoded JSON value into the field map.
func walkValue(path string, v interface{}, policy *Policy, out map[string]entity.CanonicalValue) {
	switch val := v.(type) {
	case map[string]interface{}:
		for key, child := range val {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if policy.ClassFor(childPath) == ClassIgnore {
				continue
			}
			walkValue(childPath, child, policy, out)
		}

	case []interface{}:
		elems := val
		if sortKey := policy.SetKey(path); sortKey != "" {
			elems = sortSetElements(val, sortKey)
		}
		for i, elem := range elems {
			walkValue(fmt.Sprintf("%s[%d]", path, i), elem, policy, out)
		}

	case string:
		out[path] = canonicalString(path, val, policy)

	case json.Number:
		out[path] = canonicalNumber(val)

	case bool:
		canon := "false"
		if val {
			canon = "true"
		}
		out[path] = entity.CanonicalValue{Kind: entity.KindBool, Canon: canon, Raw: canon}

	case nil:
		out[path] = entity.CanonicalValue{Kind: entity.KindNull, Canon: "null"}
	}
}

// sortSetElements orders array elements by the numeric value of the sort key
// field, leaving elements without the key at the back in original order.
func sortSetElements(elems []interface{}, sortKey string) []interface{} {
	sorted := make([]interface{}, len(elems))
	copy(sorted, elems)

	keyOf := func(elem interface{}) (int64, bool) {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			return 0, false
		}
		raw, ok := obj[sortKey].(string)
		if !ok {
			return 0, false
		}
		n, err := hexutil.ParseInt64(raw)
		if err != nil {
			return 0, false
		}
		return n, true
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		ki, oki := keyOf(sorted[i])
		kj, okj := keyOf(sorted[j])
		if oki && okj {
			return ki < kj
		}
		return oki && !okj
	})
	return sorted
}

// canonicalString canonicalizes a string leaf. Declared quantity fields
// parse to decimal big integers; addresses lower-case; every other hex
// string is a byte string, lower-cased with padding preserved whatever its
// rendered length, so a field's kind never depends on how an endpoint
// padded it. A declared quantity that fails to parse keeps its raw form as
// a plain string so the defect surfaces in the diff.
func canonicalString(path, s string, policy *Policy) entity.CanonicalValue {
	if policy.IsQuantityField(path) {
		if n, err := hexutil.ParseQuantity(s); err == nil {
			return entity.CanonicalValue{Kind: entity.KindQuantity, Canon: n.String(), Raw: s}
		}
		return entity.CanonicalValue{Kind: entity.KindString, Canon: s, Raw: s}
	}
	if hexutil.IsAddress(s) {
		canon, _ := hexutil.CanonicalAddress(s)
		return entity.CanonicalValue{Kind: entity.KindData, Canon: canon, Raw: s}
	}
	if hexutil.IsQuantity(s) {
		return entity.CanonicalValue{Kind: entity.KindData, Canon: strings.ToLower(s), Raw: s}
	}
	return entity.CanonicalValue{Kind: entity.KindString, Canon: s, Raw: s}
}

// canonicalNumber canonicalizes a plain JSON number.
func canonicalNumber(n json.Number) entity.CanonicalValue {
	if i, err := n.Int64(); err == nil {
		return entity.CanonicalValue{Kind: entity.KindQuantity, Canon: fmt.Sprintf("%d", i), Raw: n.String()}
	}
	return entity.CanonicalValue{Kind: entity.KindQuantity, Canon: n.String(), Raw: n.String()}
}
