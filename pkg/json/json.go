// Package json is the JSON codec used for API bodies, persisted payloads and
// stream frames.
package json

import jsoniter "github.com/json-iterator/go"

var (
	// JSON is the instance of jsoniter.API that should be used throughout the codebase
	JSON = jsoniter.ConfigCompatibleWithStandardLibrary

	Marshal    = JSON.Marshal
	Unmarshal  = JSON.Unmarshal
	NewDecoder = JSON.NewDecoder
	NewEncoder = JSON.NewEncoder
)

// RawMessage is a pre-encoded JSON value.
type RawMessage = jsoniter.RawMessage

// MarshalString encodes v and returns it as a string. It is used for
// single-line wire frames where a []byte round trip is wasted.
func MarshalString(v interface{}) (string, error) {
	return JSON.MarshalToString(v)
}
