package config

// Embedded profiles, keyed by the daemon's -profile flag. Each
// top-level key is one service's section.
//
// Regenerate or extend by hand; keep the JSON small, it ships in the
// binary.

const cfgGreenhouse = `{
  "hal": {
    "devices": [
      {"id": "gh1", "type": "dht", "params": {"pin": 4, "variant": "dht22", "poll_ms": 30000}},
      {"id": "gh2", "type": "dht", "params": {"pin": 6, "variant": "dht11", "poll_ms": 60000}}
    ],
    "pollers": [
      {"domain": "env", "kind": "temperature", "name": "gh1", "verb": "stats", "interval_ms": 300000, "jitter_ms": 5000}
    ]
  },
  "monitor": {
    "interval_ms": 60000,
    "temp_min_decic": -100,
    "temp_max_decic": 500,
    "rh_min_x100": 500,
    "rh_max_x100": 10000
  }
}`

const cfgBench = `{
  "hal": {
    "devices": [
      {"id": "bench", "type": "dht", "params": {"pin": 2, "variant": "si7021", "poll_ms": 5000, "min_read_ms": 2000}}
    ]
  },
  "monitor": {
    "interval_ms": 10000
  }
}`

var embeddedConfigs = map[string][]byte{
	"greenhouse": []byte(cfgGreenhouse),
	"bench":      []byte(cfgBench),
}
