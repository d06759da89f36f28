// Package wire defines the duplex connection's tagged message catalog: the
// closed set of frame types a client and the session hub exchange, with
// typed payload structs keyed by a Type constant, one struct per frame.
package wire

import (
	"encoding/json"
	"time"
)

// Type is one of the exact, closed set of frame type tags.
type Type string

const (
	TypeAuth             Type = "auth"
	TypeAuthSuccess      Type = "auth:success"
	TypeAuthFailed       Type = "auth:failed"
	TypeParamUpdate      Type = "param:update"
	TypeParamBroadcast   Type = "param:broadcast"
	TypeConflictResolved Type = "conflict:resolved"
	TypeConflictDetected Type = "conflict:detected"
	TypeSessionJoined    Type = "session:joined"
	TypeSessionLeft      Type = "session:left"
	TypeSessionResync    Type = "session:resync"
	TypeSessionState     Type = "session:state"
	TypePing             Type = "ping"
	TypePong             Type = "pong"
)

// Envelope is the outer shape of every frame exchanged over the
// connection. Seq and Timestamp are only populated on server broadcasts;
// inbound client frames never set them.
type Envelope struct {
	Type      Type            `json:"type"`
	Seq       *uint64         `json:"seq,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}
