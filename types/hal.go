package types

// ------------------------
// Common HAL state (retained)
// ------------------------

type HALState struct {
	Level  string `json:"level"`  // "idle", "ready", "error", "stopped"
	Status string `json:"status"` // freeform short code
	TSms   int64  `json:"ts_ms"`
}

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TSms  int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"` // machine-readable short code
}

// ------------------------
// Polling (declarative)
// ------------------------

type PollSpec struct {
	Domain     string `json:"domain"`      // e.g. "env"
	Kind       Kind   `json:"kind"`        // e.g. "temperature"
	Name       string `json:"name"`        // capability name (device id)
	Verb       string `json:"verb"`        // "read", "stats", ...
	IntervalMs uint32 `json:"interval_ms"` // >0
	JitterMs   uint16 `json:"jitter_ms"`   // uniform [0..JitterMs]
}

// ------------------------
// HAL configuration
// ------------------------

type HALConfig struct {
	Devices []HALDevice `json:"devices"`
	Pollers []PollSpec  `json:"pollers,omitempty"`
}

type HALDevice struct {
	ID     string `json:"id"`     // logical device id
	Type   string `json:"type"`   // e.g. "dht"
	Params any    `json:"params"` // device-specific params (JSON-like)
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ------------------------
// Info envelope (retained)
// ------------------------

type Info struct {
	SchemaVersion int    `json:"schema_version"`
	Driver        string `json:"driver"`
	Detail        any    `json:"detail,omitempty"` // one of the *Info types
}
