package ingest

import "encoding/json"

// jsonSize returns the serialized byte size of a context/metadata map,
// the basis for the ≤1MB context-size limit.
func jsonSize(m map[string]any) (int, error) {
	if m == nil {
		return len("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
