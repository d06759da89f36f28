package wire

import (
	"encoding/json"
	"time"
)

// Encode wraps a payload into an Envelope, stamping seq and timestamp only
// when this frame is a broadcast (seq != nil). Marshal errors can only come
// from unsupported types (channels, funcs); every payload type in this
// package is plain data, so callers treat this as infallible in practice.
func Encode(t Type, seq *uint64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}

	env := Envelope{Type: t, Payload: raw}
	if seq != nil {
		env.Seq = seq
		now := time.Now().UTC()
		env.Timestamp = &now
	}
	return env, nil
}

// Decode unmarshals an envelope's payload into dst.
func Decode(env Envelope, dst any) error {
	return json.Unmarshal(env.Payload, dst)
}
