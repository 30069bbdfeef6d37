package latency

// Measurement is one round-trip probe result. Immutable once created.
type Measurement struct {
	// RoundTripTimeMS is the elapsed time in milliseconds between
	// dispatching a probe and receiving its response. Never negative.
	RoundTripTimeMS float64 `json:"round_trip_time_ms"`

	// ClientTimestampMS is the local clock (Unix millis) when the probe
	// was dispatched.
	ClientTimestampMS int64 `json:"client_timestamp_ms"`

	// ServerTimestampMS is the server's reported clock (Unix millis) if
	// the probed endpoint returned one, nil otherwise. Informational
	// only - compensation never reads it.
	ServerTimestampMS *int64 `json:"server_timestamp_ms,omitempty"`
}
