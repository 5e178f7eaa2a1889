// Package command applies inbound Command frames to the configuration
// store and answers every decodable command with a reply frame.
package command

import (
	"github.com/golang/glog"

	"github.com/rfnode/rfnode.go/pkg/core/config"
	"github.com/rfnode/rfnode.go/pkg/core/fault"
	"github.com/rfnode/rfnode.go/pkg/core/queue"
	fx "github.com/rfnode/rfnode.go/pkg/framework"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

// DefaultBudget caps commands handled per loop iteration.
const DefaultBudget = 4

// Dispatcher pops frames off the inbound queue, merges the masked fields
// of each command onto the current parameters and applies the result
// all-or-nothing. Every decodable command gets exactly one reply: Code OK
// on success, an error code naming the first offending field otherwise.
// Undecodable input produces no reply, only a MalformedFrame count.
type Dispatcher struct {
	In     *queue.Queue
	Out    *queue.Queue
	Store  *config.Store
	Faults *fault.Monitor

	// Budget overrides DefaultBudget when positive.
	Budget int

	raw   wire.Raw
	reply wire.Raw
}

// New creates a Dispatcher.
func New(in, out *queue.Queue, store *config.Store, faults *fault.Monitor) *Dispatcher {
	return &Dispatcher{In: in, Out: out, Store: store, Faults: faults}
}

// Name implements Named.
func (d *Dispatcher) Name() string {
	return "command"
}

// AddToLoop implements LoopAdder.
func (d *Dispatcher) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvDispatch, d)
}

// Control implements Controller.
func (d *Dispatcher) Control(cc fx.ControlContext) error {
	budget := d.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	for i := 0; i < budget; i++ {
		if !d.In.Pop(&d.raw) {
			return nil
		}
		d.dispatch()
	}
	return nil
}

func (d *Dispatcher) dispatch() {
	frame, _, err := wire.Decode(d.raw.Bytes())
	if err == wire.ErrVersion {
		// Integrity checked out, only the version is foreign. The seq
		// cannot be trusted across versions, so the reply carries 0.
		d.respond(0, wire.CodeUnsupportedVersion, wire.FieldNone)
		return
	}
	if err != nil {
		d.Faults.Report(fault.MalformedFrame, 0)
		glog.V(1).Infof("command: dropping frame: %v", err)
		return
	}
	msg, err := wire.DecodeMessage(frame)
	if err == wire.ErrUnknownKind {
		d.respond(0, wire.CodeUnknownKind, wire.FieldNone)
		return
	}
	if err != nil {
		d.Faults.Report(fault.MalformedFrame, 0)
		glog.V(1).Infof("command: dropping %v frame: %v", frame.Kind, err)
		return
	}
	cmd, ok := msg.(*wire.Command)
	if !ok {
		// Telemetry or fault frames looping back in are not commands.
		d.respond(0, wire.CodeUnknownKind, wire.FieldNone)
		return
	}
	d.apply(cmd)
}

// apply merges the masked fields onto a snapshot and installs the result.
// An out-of-range field rejects the whole command and leaves the store
// untouched, including its generation.
func (d *Dispatcher) apply(cmd *wire.Command) {
	params, _ := d.Store.Snapshot()
	if cmd.Mask&wire.MaskSampleRateDiv != 0 {
		params.SampleRateDiv = cmd.SampleRateDiv
	}
	if cmd.Mask&wire.MaskGain != 0 {
		params.Gain = cmd.Gain
	}
	if cmd.Mask&wire.MaskReportInterval != 0 {
		params.ReportInterval = cmd.ReportInterval
	}
	if err := d.Store.Apply(params); err != nil {
		field := wire.FieldNone
		if fe, ok := err.(*config.FieldError); ok {
			field = fe.Field
		}
		glog.V(1).Infof("command: seq %d rejected: %v", cmd.Seq, err)
		d.respond(cmd.Seq, wire.CodeBadField, field)
		return
	}
	glog.V(2).Infof("command: seq %d applied mask %#x", cmd.Seq, cmd.Mask)
	d.respond(cmd.Seq, wire.CodeOK, wire.FieldNone)
}

func (d *Dispatcher) respond(seq uint32, code wire.Code, field wire.Field) {
	reply := wire.ErrorReply{Seq: seq, Code: code, Field: field}
	if err := wire.EncodeMessage(&reply, &d.reply); err != nil {
		d.Faults.Report(fault.EncodingTooLarge, 0)
		return
	}
	if !d.Out.Push(&d.reply) {
		d.Faults.Report(fault.QueueFull, 0)
	}
}
