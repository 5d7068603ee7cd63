package providers

import (
	"encoding/json"
	"fmt"
)

// NormalizeJSONValue coerces provider-native values (typed maps, protobuf
// structs, arbitrary SDK types) into plain JSON-encodable values. Anything
// the encoder refuses falls back to its string representation.
func NormalizeJSONValue(value any) any {
	switch v := value.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = NormalizeJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = NormalizeJSONValue(item)
		}
		return out
	default:
		if _, err := json.Marshal(v); err == nil {
			return v
		}
		return fmt.Sprintf("%v", v)
	}
}

// MarshalArguments encodes a function-call argument map, normalizing values
// first and defaulting to an empty object when encoding still fails.
func MarshalArguments(args map[string]any) json.RawMessage {
	normalized := map[string]any{}
	for k, v := range args {
		normalized[k] = NormalizeJSONValue(v)
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return payload
}
