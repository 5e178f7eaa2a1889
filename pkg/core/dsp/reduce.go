// Package dsp reduces raw sample buffers into compact, transmittable
// records.
package dsp

import (
	"github.com/rfnode/rfnode.go/pkg/core/pool"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

// Record is the fixed-size reduction of one sample buffer. Produced once
// by the processing stage, consumed once by the framing layer.
type Record struct {
	Seq        uint32
	Timestamp  uint64
	Degraded   bool
	Gain       uint8
	MeanPower  uint32
	PeakPower  uint32
	PeakOffset uint16
	Bins       [wire.NumBins]uint16
}

// Telemetry converts the record for framing.
func (r *Record) Telemetry() wire.Telemetry {
	t := wire.Telemetry{
		Seq:        r.Seq,
		Timestamp:  r.Timestamp,
		Gain:       r.Gain,
		MeanPower:  r.MeanPower,
		PeakPower:  r.PeakPower,
		PeakOffset: r.PeakOffset,
		Bins:       r.Bins,
	}
	if r.Degraded {
		t.Flags |= wire.FlagDegraded
	}
	return t
}

// Reduce condenses one buffer into rec: mean and peak power over the whole
// buffer plus a coarse magnitude spectrum of wire.NumBins chunk averages.
// Deterministic, single pass, no allocation; the latency budget is one
// buffer fill time at the fastest configured rate.
func Reduce(samples []pool.Sample, rec *Record) {
	rec.MeanPower = 0
	rec.PeakPower = 0
	rec.PeakOffset = 0
	rec.Bins = [wire.NumBins]uint16{}
	if len(samples) == 0 {
		return
	}

	var sum uint64
	for i, s := range samples {
		p := uint32(int32(s) * int32(s))
		sum += uint64(p)
		if p > rec.PeakPower {
			rec.PeakPower = p
			rec.PeakOffset = uint16(i)
		}
	}
	rec.MeanPower = uint32(sum / uint64(len(samples)))

	chunk := (len(samples) + wire.NumBins - 1) / wire.NumBins
	for b := 0; b < wire.NumBins; b++ {
		lo := b * chunk
		if lo >= len(samples) {
			break
		}
		hi := lo + chunk
		if hi > len(samples) {
			hi = len(samples)
		}
		var mag uint64
		for _, s := range samples[lo:hi] {
			if s < 0 {
				mag += uint64(-int32(s))
			} else {
				mag += uint64(s)
			}
		}
		rec.Bins[b] = uint16(mag / uint64(hi-lo))
	}
}
