// Package config holds the node's runtime parameters: a single
// process-wide set, mutated only by the command dispatcher and read by the
// acquisition engine at transfer boundaries.
package config

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/spf13/viper"

	"github.com/rfnode/rfnode.go/pkg/wire"
)

// Parameter bounds. Commands with any field outside these are rejected in
// full.
const (
	MinSampleRateDiv  = 1
	MaxSampleRateDiv  = 4096
	MaxGain           = 63
	MinReportInterval = 1 // milliseconds
	MaxReportInterval = 60000
)

// Params is the full parameter set. It is always handled as a unit so a
// reader never observes a partial update.
type Params struct {
	// SampleRateDiv divides the front-end sample clock.
	SampleRateDiv uint16 `mapstructure:"sample_rate_div"`
	// Gain is the front-end gain code.
	Gain uint8 `mapstructure:"gain"`
	// ReportInterval is the fault-report period in milliseconds.
	ReportInterval uint16 `mapstructure:"report_interval"`
}

// Defaults apply when no boot file overrides them.
var Defaults = Params{
	SampleRateDiv:  64,
	Gain:           16,
	ReportInterval: 1000,
}

// FieldError reports the first out-of-range parameter of a set.
type FieldError struct {
	Field    wire.Field
	Value    int
	Min, Max int
}

// Error implements error.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%v out of range: %d not in [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

// Validate checks every bound, reporting the first violation as a
// FieldError naming the parameter.
func (p Params) Validate() error {
	if p.SampleRateDiv < MinSampleRateDiv || p.SampleRateDiv > MaxSampleRateDiv {
		return &FieldError{Field: wire.FieldSampleRateDiv, Value: int(p.SampleRateDiv), Min: MinSampleRateDiv, Max: MaxSampleRateDiv}
	}
	if p.Gain > MaxGain {
		return &FieldError{Field: wire.FieldGain, Value: int(p.Gain), Min: 0, Max: MaxGain}
	}
	if p.ReportInterval < MinReportInterval || p.ReportInterval > MaxReportInterval {
		return &FieldError{Field: wire.FieldReportInterval, Value: int(p.ReportInterval), Min: MinReportInterval, Max: MaxReportInterval}
	}
	return nil
}

// Store is the process-wide parameter state. The generation counter lets
// the acquisition engine latch changes only at transfer boundaries.
type Store struct {
	mu     sync.Mutex
	params Params
	gen    uint64
}

// NewStore creates a store with validated initial parameters.
func NewStore(p Params) (*Store, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Store{params: p, gen: 1}, nil
}

// Snapshot returns the current parameters and their generation. The
// critical section covers only the copy.
func (s *Store) Snapshot() (Params, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params, s.gen
}

// Apply validates and installs a full parameter set, all-or-nothing. A
// rejected set leaves both parameters and generation untouched.
func (s *Store) Apply(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.gen++
	s.mu.Unlock()
	return nil
}

// Load reads boot defaults from an optional rfnode.toml, looked up in
// /etc/rfnode and the working directory. Runtime changes arrive only via
// Command frames; the file merely seeds the store before acquisition
// starts. Absent or invalid files fall back to Defaults.
func Load() Params {
	v := viper.New()
	v.SetConfigName("rfnode")
	v.AddConfigPath("/etc/rfnode")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		glog.V(1).Infof("no boot config: %v, using defaults", err)
		return Defaults
	}
	p := Defaults
	if err := v.UnmarshalKey("digitizer", &p); err != nil {
		glog.Warningf("boot config unusable: %v, using defaults", err)
		return Defaults
	}
	if err := p.Validate(); err != nil {
		glog.Warningf("boot config rejected: %v, using defaults", err)
		return Defaults
	}
	glog.V(1).Infof("boot config loaded from %s", v.ConfigFileUsed())
	return p
}
