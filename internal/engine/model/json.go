package model

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// EncodeMap serializes a map[string]any into a datatypes.JSON column value.
// A nil or empty map encodes as "{}" so callers never have to special-case
// null JSONB.
func EncodeMap(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}

// DecodeMap parses a datatypes.JSON column value into a map[string]any,
// never returning nil.
func DecodeMap(raw datatypes.JSON) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// EncodeStringSlice serializes a []string into a datatypes.JSON array value.
func EncodeStringSlice(s []string) datatypes.JSON {
	if len(s) == 0 {
		return datatypes.JSON([]byte("[]"))
	}
	b, err := json.Marshal(s)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(b)
}

func decodeStringSlice(raw datatypes.JSON) []string {
	var out []string
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
