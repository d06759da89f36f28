package wire

// User is the wire projection of a participant: identity plus presence
// cosmetics, matching the {id, name, color?, avatar?} shape used across
// auth:success and session:joined.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// AuthPayload is the client→server auth{} request.
type AuthPayload struct {
	Token string `json:"token"`
	Color string `json:"color,omitempty"`
}

// CurrentState is the embedded params+seq shape auth:success carries.
type CurrentState struct {
	Params map[string]float64 `json:"params"`
	Seq    uint64             `json:"seq"`
}

// AuthSuccessPayload is the server→client reply on successful auth.
type AuthSuccessPayload struct {
	SessionID    string       `json:"sessionId"`
	UserID       string       `json:"userId"`
	Users        []User       `json:"users"`
	CurrentState CurrentState `json:"currentState"`
}

// AuthFailedPayload is sent when the auth token fails verification.
type AuthFailedPayload struct {
	Error string `json:"error"`
}

// ParamUpdatePayload is the client proposal: any subset of mu/omega/kappa.
type ParamUpdatePayload map[string]float64

// ParamBroadcastPayload is fanned out to every other participant after an
// accepted update; the envelope carries seq/timestamp alongside it.
type ParamBroadcastPayload struct {
	UserID string             `json:"userId"`
	Params map[string]float64 `json:"params"`
}

// ConflictResolvedPayload is the client's chosen resolution for a
// previously reported conflict.
type ConflictResolvedPayload struct {
	Param         string  `json:"param"`
	ResolvedValue float64 `json:"resolvedValue"`
	Strategy      string  `json:"strategy,omitempty"`
}

// ConflictDetectedPayload is one per-parameter conflict descriptor, sent
// only to the proposing connection.
type ConflictDetectedPayload struct {
	Param         string  `json:"param"`
	YourValue     float64 `json:"yourValue"`
	TheirValue    float64 `json:"theirValue"`
	TheirUserID   string  `json:"theirUserId"`
	TheirUserName string  `json:"theirUserName"`
}

// SessionJoinedPayload announces a new participant to the rest of the room.
type SessionJoinedPayload struct {
	User User `json:"user"`
}

// SessionLeftPayload announces a participant's departure.
type SessionLeftPayload struct {
	UserID string `json:"userId"`
}

// SessionResyncPayload is the client's request to be brought current.
type SessionResyncPayload struct {
	LastSeenSeq uint64 `json:"lastSeenSeq"`
}

// SessionStatePayload is the full-snapshot reply to a resync request.
type SessionStatePayload struct {
	Params map[string]float64 `json:"params"`
	Seq    uint64             `json:"seq"`
}
