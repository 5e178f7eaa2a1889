package node

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/rfnode/rfnode.go/pkg/core/acquire"
	"github.com/rfnode/rfnode.go/pkg/core/command"
	"github.com/rfnode/rfnode.go/pkg/core/config"
	"github.com/rfnode/rfnode.go/pkg/core/dsp"
	"github.com/rfnode/rfnode.go/pkg/core/fault"
	"github.com/rfnode/rfnode.go/pkg/core/pool"
	"github.com/rfnode/rfnode.go/pkg/core/queue"
	fx "github.com/rfnode/rfnode.go/pkg/framework"
	"github.com/rfnode/rfnode.go/pkg/link"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

// DefaultQueueDepth is the default frame capacity of the transport
// queues.
const DefaultQueueDepth = 8

// Node wires the digitizer pipeline onto one loop: the acquisition engine
// fills pool buffers, the processing stage reduces them onto the outbound
// queue, the dispatcher answers inbound commands, and the drain and
// reporter ship frames out over the attached links.
type Node struct {
	Info   Info
	Pool   *pool.Pool
	Store  *config.Store
	Faults *fault.Monitor
	In     *queue.Queue
	Out    *queue.Queue

	Engine     *acquire.Engine
	Stage      *dsp.Stage
	Dispatcher *command.Dispatcher

	linksLock sync.Mutex
	links     []link.FrameReadWriter
	inLock    sync.Mutex

	lastReport   time.Time
	lastProduced uint64
	reportSeq    uint32

	outRaw wire.Raw
}

// New assembles a Node around a front end with validated boot parameters.
func New(info Info, front acquire.FrontEnd, params config.Params) (*Node, error) {
	store, err := config.NewStore(params)
	if err != nil {
		return nil, err
	}
	n := &Node{
		Info:   info,
		Pool:   pool.New(pool.DefaultBuffers, pool.DefaultBufferSamples),
		Store:  store,
		Faults: &fault.Monitor{},
		In:     queue.New(DefaultQueueDepth),
		Out:    queue.New(DefaultQueueDepth),
	}
	n.Engine = acquire.New(front, n.Pool, store, n.Faults)
	n.Stage = dsp.NewStage(n.Pool, store, n.Faults, n.Out)
	n.Dispatcher = command.New(n.In, n.Out, store, n.Faults)
	return n, nil
}

// AddLink attaches a frame link for the lifetime of the node. Telemetry
// and reports fan out to every link; commands are accepted from any of
// them. Links added before the loop runs get their reader pumped by the
// loop; for connections arriving later use ServeLink.
func (n *Node) AddLink(rw link.FrameReadWriter) *Node {
	n.linksLock.Lock()
	n.links = append(n.links, rw)
	n.linksLock.Unlock()
	return n
}

// ServeLink attaches a transient link, such as an accepted websocket
// connection, and pumps its inbound frames until the link or the context
// dies.
func (n *Node) ServeLink(ctx context.Context, rw link.FrameReadWriter) error {
	n.AddLink(rw)
	defer n.removeLink(rw)
	return (&linkReader{node: n, rw: rw}).Run(ctx)
}

func (n *Node) removeLink(rw link.FrameReadWriter) {
	n.linksLock.Lock()
	for i, l := range n.links {
		if l == rw {
			n.links = append(n.links[:i], n.links[i+1:]...)
			break
		}
	}
	n.linksLock.Unlock()
}

func (n *Node) snapshotLinks() []link.FrameReadWriter {
	n.linksLock.Lock()
	defer n.linksLock.Unlock()
	return append([]link.FrameReadWriter{}, n.links...)
}

// AddToLoop implements LoopAdder.
func (n *Node) AddToLoop(loop *fx.Loop) {
	loop.Add(n.Engine, n.Stage, n.Dispatcher)
	loop.AddController(fx.PrLvDrain, fx.ControlFunc(n.drain))
	loop.AddController(fx.PrLvReport, fx.ControlFunc(n.report))
	for _, rw := range n.snapshotLinks() {
		if runnable, ok := rw.(fx.Runnable); ok {
			loop.AddRunnable(runnable)
		}
		loop.AddRunnable(&linkReader{node: n, rw: rw})
	}
}

// Run assembles a loop and runs the node on it.
func (n *Node) Run(ctx context.Context) error {
	return fx.NewLoop().Add(n).Run(ctx)
}

// drain pops the outbound queue and fans each frame out to every link. A
// link write failure only logs; the transport owns reconnection and one
// slow link must not hold frames back from the others.
func (n *Node) drain(cc fx.ControlContext) error {
	links := n.snapshotLinks()
	for n.Out.Pop(&n.outRaw) {
		for _, rw := range links {
			if err := rw.WriteFrame(&n.outRaw); err != nil {
				glog.V(1).Infof("link write: %v", err)
			}
		}
	}
	return nil
}

// report queues a FaultReport every configured interval. A period with no
// fresh records while acquisition is supposed to run counts an underrun
// first, so the report it rides in already includes it.
func (n *Node) report(cc fx.ControlContext) error {
	params, _ := n.Store.Snapshot()
	interval := time.Duration(params.ReportInterval) * time.Millisecond
	if n.lastReport.IsZero() {
		n.lastReport = cc.Time()
		return nil
	}
	if cc.Time().Sub(n.lastReport) < interval {
		return nil
	}
	n.lastReport = cc.Time()

	produced := n.Stage.Produced()
	if produced == n.lastProduced {
		n.Faults.Report(fault.Underrun, n.Stage.LastTick())
	}
	n.lastProduced = produced

	report := wire.FaultReport{
		Seq:      n.reportSeq,
		Counters: n.Faults.Snapshot().WireCounters(),
	}
	n.reportSeq++
	var raw wire.Raw
	if err := wire.EncodeMessage(&report, &raw); err != nil {
		n.Faults.Report(fault.EncodingTooLarge, n.Stage.LastTick())
		return err
	}
	if !n.Out.Push(&raw) {
		n.Faults.Report(fault.QueueFull, n.Stage.LastTick())
	}
	return nil
}

// pushIn funnels inbound frames onto the command queue. The queue admits
// a single producer; every link reader goes through this lock so together
// they look like one.
func (n *Node) pushIn(raw *wire.Raw) bool {
	n.inLock.Lock()
	defer n.inLock.Unlock()
	return n.In.Push(raw)
}

// linkReader pumps one link's inbound frames onto the command queue.
type linkReader struct {
	node *Node
	rw   link.FrameReader
}

// Run implements Runnable.
func (r *linkReader) Run(ctx context.Context) error {
	var raw wire.Raw
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.rw.ReadFrame(&raw); err != nil {
			switch err {
			case wire.ErrIntegrity, wire.ErrVersion, wire.ErrTooLarge, wire.ErrBadPayload:
				// The stream decoder already resynced.
				r.node.Faults.Report(fault.MalformedFrame, 0)
				continue
			}
			return err
		}
		if !r.node.pushIn(&raw) {
			r.node.Faults.Report(fault.QueueFull, 0)
			continue
		}
		if ctl, inLoop := fx.LoopCtlFromOK(ctx); inLoop {
			ctl.TriggerNext()
		}
	}
}
