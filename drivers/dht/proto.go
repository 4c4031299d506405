package dht

// Protocol timings, in the units the sensors are specified in.
const (
	settleMillis     = 10  // bus release before the start pulse
	startPulseMillis = 18  // start pulse, standard variants
	startPulseMicros = 500 // start pulse, SI7021
	busSettleMicros  = 40  // release-to-ack window
	ackTimeoutMicros = 90  // each ack phase is nominally 80 µs
	bitTimeoutMicros = 500 // per low/high phase of one bit

	cycleCount = 80 // 40 bits, one low + one high duration each
)

// Read performs one rate-limited read pass and reports whether the sensor's
// payload was captured and checksummed successfully. Calls within
// MinInterval of the last physical attempt return the cached result.
func (s *Sensor) Read() bool {
	if s == nil {
		return false
	}
	start := s.clk.Now()
	s.stats.Reads++
	if start.Sub(s.stats.LastAttempt) < s.minInterval {
		s.stats.CacheHits++
		return s.lastOK
	}
	s.stats.LastAttempt = start
	s.lastOK = false
	s.data = [5]byte{}

	var cycles [cycleCount]uint32
	if !s.sample(&cycles) {
		return false
	}
	if !s.decode(&cycles) {
		return false
	}

	s.lastOK = true
	s.stats.Successes++
	s.stats.SuccessMicros += uint64(s.clk.Now().Sub(start).Microseconds())
	return s.lastOK
}

// sample runs the handshake and captures the 80 raw pulse widths. It returns
// false when the sensor never acknowledges; sampling timeouts after the ack
// are left as zero entries for decode to reject.
func (s *Sensor) sample(cycles *[cycleCount]uint32) bool {
	// Let the bus settle high, then hold it low long enough for the sensor
	// to notice. SI7021 wants a much shorter pulse than the rest.
	_ = s.pin.ConfigureInput(PullUp)
	s.clk.SleepMillis(settleMillis)

	_ = s.pin.ConfigureOutput(false)
	if s.variant == SI7021 {
		s.clk.SleepMicros(startPulseMicros)
	} else {
		s.clk.SleepMillis(startPulseMillis)
	}

	// The sampling loop is microsecond-sensitive; suppress scheduling for
	// its duration. The guard must be released on every exit path.
	s.guard.Enter()
	defer s.guard.Exit()

	_ = s.pin.ConfigureInput(PullUp)
	s.clk.SleepMicros(busSettleMicros)

	// Ack: the sensor pulls the bus low ~80 µs, then high ~80 µs. Waiting
	// for high rides out the low phase; waiting for low ends the high phase
	// at the first data bit.
	if _, ok := s.waitLevel(true, ackTimeoutMicros); !ok {
		return false
	}
	if _, ok := s.waitLevel(false, ackTimeoutMicros); !ok {
		return false
	}

	// Each bit: ~50 µs low, then ~26 µs (0) or ~70 µs (1) high.
	for i := 0; i < cycleCount; i += 2 {
		if t, ok := s.waitLevel(true, bitTimeoutMicros); ok {
			cycles[i] = t
		}
		if t, ok := s.waitLevel(false, bitTimeoutMicros); ok {
			cycles[i+1] = t
		}
	}
	return true
}

// waitLevel busy-polls the line once per microsecond until it reads level,
// returning the elapsed count. ok is false when the budget is exhausted; the
// bound is inclusive, so elapsed == budget with the level still wrong fails.
func (s *Sensor) waitLevel(level bool, budget uint32) (uint32, bool) {
	var t uint32
	for s.pin.Get() != level {
		if t == budget {
			return 0, false
		}
		s.clk.SleepMicros(1)
		t++
	}
	return t, true
}

// decode packs the 40 bit-pairs into s.data and verifies the checksum. A
// zero duration means a sampling timeout leaked through; the whole read is
// rejected. Bit value: high phase longer than low phase.
func (s *Sensor) decode(cycles *[cycleCount]uint32) bool {
	for i := 0; i < cycleCount/2; i++ {
		low := cycles[2*i]
		high := cycles[2*i+1]
		if low == 0 || high == 0 {
			return false
		}
		j := i / 8
		s.data[j] <<= 1
		if high > low {
			s.data[j] |= 1
		}
	}
	return s.data[4] == s.data[0]+s.data[1]+s.data[2]+s.data[3]
}
