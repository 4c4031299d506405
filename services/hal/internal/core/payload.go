package core

import (
	"github.com/marklacroix/dht/errcode"
	"github.com/marklacroix/dht/x/jsonx"
)

// DecodeParams fills dst from a payload that may be a typed struct, a
// decoded JSON map, or raw JSON bytes. Config published in-process arrives
// typed; config loaded from embedded JSON arrives as maps.
func DecodeParams[T any](src any, dst *T) errcode.Code {
	if src == nil {
		return errcode.InvalidParams
	}
	if v, ok := src.(T); ok {
		*dst = v
		return ""
	}
	if err := jsonx.Decode(src, dst); err != nil {
		return errcode.InvalidParams
	}
	return ""
}
