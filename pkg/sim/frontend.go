// Package sim provides a software front end standing in for capture
// hardware: a tone buried in deterministic noise, scaled by the configured
// gain and paced by the divided sample clock.
package sim

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rfnode/rfnode.go/pkg/core/acquire"
	"github.com/rfnode/rfnode.go/pkg/core/config"
	"github.com/rfnode/rfnode.go/pkg/core/pool"
)

// Defaults for the simulated signal.
const (
	DefaultBaseClock = 1000000 // samples per second before division
	DefaultToneHz    = 1500.0
	DefaultToneAmpl  = 0.5 // fraction of full scale at maximum gain
	DefaultNoiseAmpl = 0.02
)

// FrontEnd implements acquire.FrontEnd in software. The same seed always
// produces the same sample stream, so reductions are reproducible.
type FrontEnd struct {
	BaseClock int
	ToneHz    float64
	ToneAmpl  float64
	NoiseAmpl float64

	// Realtime paces Fill at the divided sample clock. Off, Fill
	// returns as fast as it is called.
	Realtime bool

	mu      sync.Mutex
	params  config.Params
	running bool
	phase   float64
	rng     uint64
	nextErr error
}

// New creates a FrontEnd with the default signal.
func New() *FrontEnd {
	return &FrontEnd{
		BaseClock: DefaultBaseClock,
		ToneHz:    DefaultToneHz,
		ToneAmpl:  DefaultToneAmpl,
		NoiseAmpl: DefaultNoiseAmpl,
		params:    config.Defaults,
		rng:       0x9e3779b97f4a7c15,
	}
}

// Start implements acquire.FrontEnd.
func (f *FrontEnd) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

// Stop implements acquire.FrontEnd.
func (f *FrontEnd) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

// Apply implements acquire.FrontEnd.
func (f *FrontEnd) Apply(p config.Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = p
	return nil
}

// InjectError makes the next Fill fail with err, for exercising the fault
// paths from the console.
func (f *FrontEnd) InjectError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextErr = err
}

// Fill implements acquire.FrontEnd.
func (f *FrontEnd) Fill(dst []pool.Sample) (int, error) {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return 0, &acquire.Error{Permanent: true, Err: errors.New("sim: not started")}
	}
	if err := f.nextErr; err != nil {
		f.nextErr = nil
		f.mu.Unlock()
		return 0, err
	}
	params := f.params
	realtime := f.Realtime
	f.mu.Unlock()

	div := float64(params.SampleRateDiv)
	if div < 1 {
		div = 1
	}
	rate := float64(f.BaseClock) / div
	step := 2 * math.Pi * f.ToneHz / rate
	ampl := f.ToneAmpl * float64(params.Gain) / config.MaxGain * math.MaxInt16
	noise := f.NoiseAmpl * math.MaxInt16

	for i := range dst {
		v := ampl * math.Sin(f.phase)
		v += noise * (f.rand() - 0.5)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		dst[i] = pool.Sample(v)
		f.phase += step
	}
	if f.phase > 2*math.Pi {
		f.phase = math.Mod(f.phase, 2*math.Pi)
	}

	if realtime {
		time.Sleep(time.Duration(float64(len(dst)) / rate * float64(time.Second)))
	}
	return len(dst), nil
}

// rand is xorshift64*, uniform in [0, 1).
func (f *FrontEnd) rand() float64 {
	x := f.rng
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	f.rng = x
	return float64(x*0x2545f4914f6cdd1d>>11) / (1 << 53)
}
