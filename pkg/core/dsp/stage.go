package dsp

import (
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/rfnode/rfnode.go/pkg/core/config"
	"github.com/rfnode/rfnode.go/pkg/core/fault"
	"github.com/rfnode/rfnode.go/pkg/core/pool"
	"github.com/rfnode/rfnode.go/pkg/core/queue"
	fx "github.com/rfnode/rfnode.go/pkg/framework"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

// DefaultBudget caps buffers reduced per loop iteration so one burst
// cannot starve the lower priority levels.
const DefaultBudget = 2

// Stage drains filled buffers oldest first, reduces each to a record and
// pushes the encoded telemetry frame onto the outbound queue. It runs at
// the processing priority level; every buffer it takes is released before
// the iteration ends.
type Stage struct {
	Pool   *pool.Pool
	Store  *config.Store
	Faults *fault.Monitor
	Out    *queue.Queue

	// Budget is the per-iteration buffer cap. When the backlog exceeds
	// it the excess oldest buffers are dropped unreduced, so the
	// freshest data survives a burst.
	Budget int

	rec Record
	raw wire.Raw

	// Produced counts records pushed since start, for the reporter's
	// underrun check.
	produced uint64
	lastTick uint64
}

// NewStage creates a Stage with the default per-iteration budget.
func NewStage(p *pool.Pool, store *config.Store, faults *fault.Monitor, out *queue.Queue) *Stage {
	return &Stage{Pool: p, Store: store, Faults: faults, Out: out, Budget: DefaultBudget}
}

// Name implements Named.
func (s *Stage) Name() string {
	return "dsp"
}

// AddToLoop implements LoopAdder.
func (s *Stage) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvProcess, s)
}

// Produced returns the number of records pushed so far.
func (s *Stage) Produced() uint64 {
	return atomic.LoadUint64(&s.produced)
}

// LastTick returns the sample-clock tick of the newest record pushed.
func (s *Stage) LastTick() uint64 {
	return atomic.LoadUint64(&s.lastTick)
}

// Control implements Controller.
func (s *Stage) Control(cc fx.ControlContext) error {
	backlog := s.Pool.FilledCount()
	if backlog == 0 {
		return nil
	}
	budget := s.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	for drop := backlog - budget; drop > 0; drop-- {
		h, ok := s.Pool.TakeOldestFilled()
		if !ok {
			break
		}
		s.Faults.Report(fault.Overrun, s.Pool.Tick(h))
		glog.V(2).Infof("dsp: backlog %d over budget %d, dropping seq %d",
			backlog, budget, s.Pool.Seq(h))
		s.Pool.Release(h)
	}
	for i := 0; i < budget; i++ {
		h, ok := s.Pool.TakeOldestFilled()
		if !ok {
			break
		}
		s.process(h)
	}
	return nil
}

func (s *Stage) process(h pool.Handle) {
	defer s.Pool.Release(h)

	Reduce(s.Pool.Data(h), &s.rec)
	s.rec.Seq = s.Pool.Seq(h)
	s.rec.Timestamp = s.Pool.Tick(h)
	s.rec.Degraded = s.Pool.Degraded(h)
	params, _ := s.Store.Snapshot()
	s.rec.Gain = params.Gain

	tlm := s.rec.Telemetry()
	if err := wire.EncodeMessage(&tlm, &s.raw); err != nil {
		s.Faults.Report(fault.EncodingTooLarge, s.rec.Timestamp)
		glog.Errorf("dsp: encode seq %d: %v", s.rec.Seq, err)
		return
	}
	if !s.Out.Push(&s.raw) {
		s.Faults.Report(fault.QueueFull, s.rec.Timestamp)
		return
	}
	atomic.AddUint64(&s.produced, 1)
	atomic.StoreUint64(&s.lastTick, s.rec.Timestamp)
}
