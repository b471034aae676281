package jsonutil

import "encoding/json"

// RawValue converts a value into raw JSON bytes suitable for
// sjson.SetRawBytes. Strings and byte slices are assumed to already hold JSON;
// everything else is marshalled. The second return is false when the value is
// nil, empty, or cannot be represented.
func RawValue(value any) ([]byte, bool) {
	switch typed := value.(type) {
	case nil:
		return nil, false
	case string:
		if typed == "" {
			return nil, false
		}
		return []byte(typed), true
	case []byte:
		if len(typed) == 0 {
			return nil, false
		}
		return typed, true
	default:
		raw, errMarshal := json.Marshal(typed)
		if errMarshal != nil {
			return nil, false
		}
		return raw, true
	}
}
