package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rfnode/rfnode.go/pkg/core/pool"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

func TestReduceKnownValues(t *testing.T) {
	samples := []pool.Sample{0, 3, -4, 0}
	var rec Record
	Reduce(samples, &rec)
	// Powers: 0, 9, 16, 0; sum 25, mean 25/4 = 6.
	assert.Equal(t, uint32(6), rec.MeanPower)
	assert.Equal(t, uint32(16), rec.PeakPower)
	assert.Equal(t, uint16(2), rec.PeakOffset)
}

func TestReduceDeterministic(t *testing.T) {
	samples := make([]pool.Sample, 1024)
	for i := range samples {
		samples[i] = pool.Sample(i*31 - 512)
	}
	var a, b Record
	Reduce(samples, &a)
	Reduce(samples, &b)
	assert.Equal(t, a, b)
}

func TestReduceEmpty(t *testing.T) {
	rec := Record{MeanPower: 7, PeakPower: 7, PeakOffset: 7}
	Reduce(nil, &rec)
	assert.Equal(t, uint32(0), rec.MeanPower)
	assert.Equal(t, uint32(0), rec.PeakPower)
	assert.Equal(t, uint16(0), rec.PeakOffset)
}

func TestReduceFullScale(t *testing.T) {
	samples := make([]pool.Sample, 64)
	for i := range samples {
		samples[i] = -32768
	}
	var rec Record
	Reduce(samples, &rec)
	// 32768^2 fits a uint32 without wrapping.
	assert.Equal(t, uint32(1<<30), rec.MeanPower)
	assert.Equal(t, uint32(1<<30), rec.PeakPower)
	for b := 0; b < wire.NumBins; b++ {
		assert.Equal(t, uint16(32768), rec.Bins[b])
	}
}

func TestReduceBins(t *testing.T) {
	// 32 samples, 16 bins: each bin averages one pair.
	samples := make([]pool.Sample, 32)
	for i := range samples {
		samples[i] = pool.Sample(10 * (i / 2))
		if i%2 == 1 {
			samples[i] = -samples[i]
		}
	}
	var rec Record
	Reduce(samples, &rec)
	for b := 0; b < wire.NumBins; b++ {
		assert.Equal(t, uint16(10*b), rec.Bins[b], "bin %d", b)
	}
}

func TestRecordTelemetryFlags(t *testing.T) {
	rec := Record{Seq: 9, Timestamp: 1024, Degraded: true, Gain: 33}
	tlm := rec.Telemetry()
	assert.Equal(t, uint32(9), tlm.Seq)
	assert.Equal(t, uint64(1024), tlm.Timestamp)
	assert.True(t, tlm.Degraded())
	assert.Equal(t, uint8(33), tlm.Gain)

	rec.Degraded = false
	tlm = rec.Telemetry()
	assert.False(t, tlm.Degraded())
}
