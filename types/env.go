package types

// ------------------------
// Temperature & humidity
// ------------------------

type TemperatureInfo struct {
	Sensor string `json:"sensor"` // "dht11", "dht22", ...
	Pin    int    `json:"pin"`    // GPIO line number
}

type HumidityInfo struct {
	Sensor string `json:"sensor"`
	Pin    int    `json:"pin"`
}

type TemperatureValue struct {
	// Tenths of °C (e.g. 231 => 23.1°C).
	DeciC int16 `json:"deci_c"`
}

type HumidityValue struct {
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
}

// ------------------------
// Single-wire sensor devices
// ------------------------

// DHTParams configures one "dht" device.
type DHTParams struct {
	Pin     int    `json:"pin"`
	Variant string `json:"variant"` // "dht11","dht21","am2301","dht22","am2302","si7021"

	// PollMs > 0 samples the sensor on a schedule; 0 leaves reads
	// on demand only.
	PollMs uint32 `json:"poll_ms,omitempty"`

	// MinReadMs is the reuse window for the last reading; 0 selects
	// the driver default (2000).
	MinReadMs uint32 `json:"min_read_ms,omitempty"`
}

// SensorStats is the reply payload of the "stats" control verb and the
// monitor service's per-sensor summary.
type SensorStats struct {
	Reads         uint32 `json:"reads"`
	Successes     uint32 `json:"successes"`
	CacheHits     uint32 `json:"cache_hits"`
	SuccessMicros uint64 `json:"success_usecs"`
	LastAttemptMs int64  `json:"last_attempt_ms"` // 0 => no attempt yet
}
