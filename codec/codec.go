// Package codec turns typed values into cache payloads and back.
package codec

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrDecode marks every failure to decode a payload into the requested type.
var ErrDecode = errors.New("codec: cannot decode payload")

// Codec serializes values for storage.
type Codec interface {
	Encode(v any) ([]byte, error)
	// Decode fills the value pointed to by v. Failures are marked with ErrDecode.
	Decode(data []byte, v any) error
	Name() string
}

// JSON encodes values as JSON. Decoding matches object keys to struct fields
// case-insensitively, so payloads written by other services with different
// casing conventions still decode.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(v any) ([]byte, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "codec: json encode")
	}
	return buf, nil
}

func (JSON) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Mark(errors.Wrap(err, "codec: json decode"), ErrDecode)
	}
	return nil
}

// Msgpack encodes values with msgpack. It is more compact than JSON but field
// names must match exactly (or via msgpack struct tags).
type Msgpack struct{}

var _ Codec = Msgpack{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Encode(v any) ([]byte, error) {
	buf, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "codec: msgpack encode")
	}
	return buf, nil
}

func (Msgpack) Decode(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return errors.Mark(errors.Wrap(err, "codec: msgpack decode"), ErrDecode)
	}
	return nil
}

// ByName returns the codec registered under name ("json" or "msgpack").
func ByName(name string) (Codec, bool) {
	switch name {
	case "", "json":
		return JSON{}, true
	case "msgpack":
		return Msgpack{}, true
	}
	return nil, false
}
