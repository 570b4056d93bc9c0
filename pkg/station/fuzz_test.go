// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// lineAlphabet is biased towards bytes that appear on the wire
const lineAlphabet = "0123456789,,,,..\n\n\r -xNaI"

func randomStream(rng *rand.Rand, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		if rng.Intn(20) == 0 {
			data[i] = byte(rng.Intn(256))
			continue
		}
		data[i] = lineAlphabet[rng.Intn(len(lineAlphabet))]
	}
	return data
}

func randomValues(rng *rand.Rand) [TelemetryFieldCount]float64 {
	var v [TelemetryFieldCount]float64
	v[FieldSITemp] = float64(rng.Intn(4500)) / 10
	v[FieldSIPower] = float64(rng.Intn(101))
	v[FieldSMDTemp] = rng.Float64() * 500
	v[FieldSMDPower] = float64(rng.Intn(101))
	v[FieldSMDOn] = float64(rng.Intn(2))
	v[FieldSMDAirFlow] = float64(rng.Intn(101))
	v[FieldLCDTemp] = float64(rng.Intn(2000)) / 8
	v[FieldLCDPower] = float64(rng.Intn(2) * rng.Intn(101))
	v[FieldVacuum] = float64(rng.Intn(2))
	return v
}

// ============================================================
// Frame Reader Fuzz Tests
// ============================================================

func TestFuzz_FrameReaderRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		f := NewFrameReader(rng.Intn(64))
		data := randomStream(rng, rng.Intn(512))
		f.Feed(data, func(record string) {
			if record == "" {
				t.Fatalf("round %d: empty record emitted", i)
			}
			if bytes.IndexByte([]byte(record), LineDelimiter) >= 0 {
				t.Fatalf("round %d: record %q contains a delimiter", i, record)
			}
			// Must not panic
			Decode(record)
		})
	}
}

func TestFuzz_FrameReaderChunking(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		data := randomStream(rng, rng.Intn(512))
		maxFrameSize := rng.Intn(32)

		var whole []string
		NewFrameReader(maxFrameSize).Feed(data, func(r string) { whole = append(whole, r) })

		var chunked []string
		f := NewFrameReader(maxFrameSize)
		for rest := data; len(rest) > 0; {
			n := 1 + rng.Intn(len(rest))
			f.Feed(rest[:n], func(r string) { chunked = append(chunked, r) })
			rest = rest[n:]
		}

		if len(whole) != len(chunked) {
			t.Fatalf("round %d: %d records whole, %d chunked", i, len(whole), len(chunked))
		}
		for j := range whole {
			if whole[j] != chunked[j] {
				t.Fatalf("round %d record %d: %q vs %q", i, j, whole[j], chunked[j])
			}
		}
	}
}

// ============================================================
// Telemetry Fuzz Tests
// ============================================================

func TestFuzz_TelemetryRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		want := StateFromValues(randomValues(rng))
		record := EncodeTelemetry(want)

		// Through the frame reader, as it arrives on the wire
		var got []DeviceState
		NewFrameReader(DefaultMaxFrameSize).Feed([]byte(record+"\r\n"), func(r string) {
			s, err := Decode(r)
			if err != nil {
				t.Fatalf("round %d: Decode(%q) error: %v", i, r, err)
			}
			got = append(got, s)
		})

		if len(got) != 1 || got[0] != want {
			t.Fatalf("round %d: %q decoded to %+v, want %+v", i, record, got, want)
		}
	}
}

func TestFuzz_CommandRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		var c Command
		switch rng.Intn(4) {
		case 0:
			c = PowerCommand([]Zone{ZoneSolderingIron, ZoneSMDRework, ZoneLCDRepair}[rng.Intn(3)], rng.Intn(2) == 1)
		case 1:
			c = SetpointCommand([]Zone{ZoneSolderingIron, ZoneSMDRework, ZoneLCDRepair}[rng.Intn(3)], rng.Intn(101))
		case 2:
			c = AirFlowCommand(rng.Intn(101))
		case 3:
			c = VacuumCommand(rng.Intn(2) == 1)
		}

		got, err := ParseCommand(Encode(c))
		if err != nil {
			t.Fatalf("round %d: ParseCommand(%q) error: %v", i, Encode(c), err)
		}
		if got != c {
			t.Fatalf("round %d: got %+v, want %+v", i, got, c)
		}
	}
}
