// x/jsonx/jsonx.go
package jsonx

import "encoding/json"

// Decode coerces src into dst. Raw JSON arrives as []byte or string;
// in-process publishers hand over maps and structs, which take a
// marshal round trip.
func Decode[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
