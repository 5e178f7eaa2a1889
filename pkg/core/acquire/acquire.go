// Package acquire drives the RF front end, filling pool buffers back to
// back. It is the producing side of the buffer pool: the single goroutine
// here owns every Filling buffer, and configuration changes latch only at
// transfer boundaries.
package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/rfnode/rfnode.go/pkg/core/config"
	"github.com/rfnode/rfnode.go/pkg/core/fault"
	"github.com/rfnode/rfnode.go/pkg/core/pool"
	fx "github.com/rfnode/rfnode.go/pkg/framework"
)

// FrontEnd is the capture peripheral boundary. Start and Stop bracket the
// capture session; Apply reconfigures, called only between transfers;
// Fill performs one transfer into dst and returns the sample count.
type FrontEnd interface {
	Start() error
	Stop() error
	Apply(config.Params) error
	Fill(dst []pool.Sample) (int, error)
}

// Error wraps a front-end failure. Permanent failures trigger one
// controlled restart of the capture session; everything else is counted
// and the transfer retried.
type Error struct {
	Permanent bool
	Err       error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Permanent {
		return fmt.Sprintf("front end failed permanently: %v", e.Err)
	}
	return fmt.Sprintf("front end transfer failed: %v", e.Err)
}

// DefaultStallPoll bounds the wait for a freed buffer while stalled, so a
// stalled engine still observes cancellation promptly.
const DefaultStallPoll = 5 * time.Millisecond

// Engine runs the capture loop. On pool exhaustion it reports one overrun,
// stalls until a buffer frees and marks the next fill degraded. A
// permanent front-end failure gets one controlled restart per failure
// episode; a second permanent error before any healthy transfer, or a
// failed restart, halts the engine with no frame transmitted after the
// failure.
type Engine struct {
	Front  FrontEnd
	Pool   *pool.Pool
	Store  *config.Store
	Faults *fault.Monitor

	// StallPoll overrides DefaultStallPoll when positive.
	StallPoll time.Duration

	gen         uint64
	tick        uint64
	degradeNext bool
	restarted   bool
}

// New creates an Engine.
func New(front FrontEnd, p *pool.Pool, store *config.Store, faults *fault.Monitor) *Engine {
	return &Engine{Front: front, Pool: p, Store: store, Faults: faults}
}

// Name implements Named.
func (e *Engine) Name() string {
	return "acquire"
}

// AddToLoop implements LoopAdder.
func (e *Engine) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(e)
}

// Run implements Runnable.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Front.Start(); err != nil {
		return fmt.Errorf("front end start: %v", err)
	}
	defer e.Front.Stop()
	e.latch(true)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		h, ok := e.Pool.AcquireFree()
		if !ok {
			// Overrun: one report per stall episode, then wait for
			// the processing side to free a buffer.
			e.Faults.Report(fault.Overrun, e.tick)
			e.degradeNext = true
			glog.V(2).Infof("acquire: pool exhausted at tick %d, stalling", e.tick)
			for !ok {
				if !e.waitFree(ctx) {
					return ctx.Err()
				}
				h, ok = e.Pool.AcquireFree()
			}
		}

		e.latch(false)
		n, err := e.Front.Fill(e.Pool.Samples(h))
		if err != nil {
			e.Pool.Cancel(h)
			if err = e.fillFailed(err); err != nil {
				return err
			}
			continue
		}

		e.tick += uint64(n)
		degraded := e.degradeNext || n < len(e.Pool.Samples(h))
		e.Pool.MarkFilled(h, n, e.tick, degraded)
		e.degradeNext = false
		// A healthy transfer closes the failure episode: a later
		// permanent error earns its own restart.
		e.restarted = false
		if ctl, inLoop := fx.LoopCtlFromOK(ctx); inLoop {
			ctl.TriggerNext()
		}
	}
}

// latch applies the current parameters when the generation moved, only
// ever between transfers.
func (e *Engine) latch(force bool) {
	params, gen := e.Store.Snapshot()
	if !force && gen == e.gen {
		return
	}
	e.gen = gen
	if err := e.Front.Apply(params); err != nil {
		e.Faults.Report(fault.PeripheralError, e.tick)
		glog.Warningf("acquire: apply generation %d: %v", gen, err)
	}
}

func (e *Engine) fillFailed(err error) error {
	fe, _ := err.(*Error)
	if fe == nil || !fe.Permanent {
		// Transient: count it, degrade the next fill, retry.
		e.Faults.Report(fault.PeripheralError, e.tick)
		e.degradeNext = true
		glog.V(1).Infof("acquire: transient fill failure at tick %d: %v", e.tick, err)
		return nil
	}
	e.Faults.Report(fault.PeripheralError, e.tick)
	if e.restarted {
		return fmt.Errorf("front end failed after restart: %v", err)
	}
	glog.Warningf("acquire: %v, restarting front end", err)
	e.Front.Stop()
	if serr := e.Front.Start(); serr != nil {
		return fmt.Errorf("front end restart: %v", serr)
	}
	e.restarted = true
	e.degradeNext = true
	e.latch(true)
	return nil
}

func (e *Engine) waitFree(ctx context.Context) bool {
	poll := e.StallPoll
	if poll <= 0 {
		poll = DefaultStallPoll
	}
	t := time.NewTimer(poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-e.Pool.Released():
		return true
	case <-t.C:
		return true
	}
}
