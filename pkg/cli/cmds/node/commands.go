// Package node provides console commands for driving a digitizer node:
// parameter changes, telemetry watching and fault inspection.
package node

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/rfnode/rfnode.go/pkg/cli/sh"
	"github.com/rfnode/rfnode.go/pkg/core/fault"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

func parseUint(c *ishell.Context, arg, name string, max uint64) (uint64, bool) {
	val, err := strconv.ParseUint(arg, 10, 16)
	if err != nil || val > max {
		c.Err(fmt.Errorf("invalid %s: %q", name, arg))
		return 0, false
	}
	return val, true
}

var (
	// SetGainCmd changes the front-end gain code.
	SetGainCmd = ishell.Cmd{
		Name:    "set-gain",
		Aliases: []string{"gain"},
		Help:    "GAIN(0..63)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("GAIN required"))
				return
			}
			val, ok := parseUint(c, c.Args[0], "GAIN", 255)
			if !ok {
				return
			}
			sh.DoCommand(c, &wire.Command{Mask: wire.MaskGain, Gain: uint8(val)})
		}),
	}

	// SetRateCmd changes the sample clock divider.
	SetRateCmd = ishell.Cmd{
		Name:    "set-rate",
		Aliases: []string{"rate"},
		Help:    "DIVIDER(1..4096)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("DIVIDER required"))
				return
			}
			val, ok := parseUint(c, c.Args[0], "DIVIDER", 65535)
			if !ok {
				return
			}
			sh.DoCommand(c, &wire.Command{Mask: wire.MaskSampleRateDiv, SampleRateDiv: uint16(val)})
		}),
	}

	// SetIntervalCmd changes the fault report period.
	SetIntervalCmd = ishell.Cmd{
		Name:    "set-interval",
		Aliases: []string{"interval"},
		Help:    "MILLISECONDS(1..60000)",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("MILLISECONDS required"))
				return
			}
			val, ok := parseUint(c, c.Args[0], "MILLISECONDS", 65535)
			if !ok {
				return
			}
			sh.DoCommand(c, &wire.Command{Mask: wire.MaskReportInterval, ReportInterval: uint16(val)})
		}),
	}

	// WatchCmd prints received telemetry for a while.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[COUNT]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			count := 10
			if len(c.Args) >= 1 {
				val, ok := parseUint(c, c.Args[0], "COUNT", 10000)
				if !ok {
					return
				}
				count = int(val)
			}
			s := sh.ShellFrom(c)
			tlmCh := s.Sess.Conn.Telemetry()
			for i := 0; i < count; i++ {
				select {
				case tlm := <-tlmCh:
					printTelemetry(c, s.OutputJSON, &tlm)
				case <-time.After(5 * time.Second):
					c.Err(fmt.Errorf("no telemetry"))
					return
				}
			}
		}),
	}

	// FaultsCmd waits for the next fault report and prints the counters.
	FaultsCmd = ishell.Cmd{
		Name:    "faults",
		Aliases: []string{"f"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			select {
			case rep := <-s.Sess.Conn.Faults():
				printFaults(c, s.OutputJSON, &rep)
			case <-time.After(65 * time.Second):
				c.Err(fmt.Errorf("no fault report"))
			}
		}),
	}
)

type telemetryView struct {
	Seq        uint32   `json:"seq"`
	Timestamp  uint64   `json:"timestamp"`
	Degraded   bool     `json:"degraded,omitempty"`
	Gain       uint8    `json:"gain"`
	MeanPower  uint32   `json:"mean_power"`
	PeakPower  uint32   `json:"peak_power"`
	PeakOffset uint16   `json:"peak_offset"`
	Bins       []uint16 `json:"bins"`
}

func printTelemetry(c *ishell.Context, asJSON bool, tlm *wire.Telemetry) {
	if asJSON {
		view := telemetryView{
			Seq:        tlm.Seq,
			Timestamp:  tlm.Timestamp,
			Degraded:   tlm.Degraded(),
			Gain:       tlm.Gain,
			MeanPower:  tlm.MeanPower,
			PeakPower:  tlm.PeakPower,
			PeakOffset: tlm.PeakOffset,
			Bins:       tlm.Bins[:],
		}
		out, err := json.Marshal(&view)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	mark := " "
	if tlm.Degraded() {
		mark = "!"
	}
	c.Printf("%s#%-8d t=%-12d gain=%-3d mean=%-10d peak=%d@%d\n",
		mark, tlm.Seq, tlm.Timestamp, tlm.Gain, tlm.MeanPower, tlm.PeakPower, tlm.PeakOffset)
}

func printFaults(c *ishell.Context, asJSON bool, rep *wire.FaultReport) {
	if asJSON {
		view := make(map[string]uint32, len(rep.Counters))
		for i, counter := range rep.Counters {
			view[fault.Kind(i).String()] = counter.Count
		}
		out, err := json.Marshal(view)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Printf("report #%d\n", rep.Seq)
	for i, counter := range rep.Counters {
		c.Printf("  %-20s %8d  last-tick=%d\n", fault.Kind(i), counter.Count, counter.LastTick)
	}
}

func init() {
	sh.AddCmds(
		&SetGainCmd,
		&SetRateCmd,
		&SetIntervalCmd,
		&WatchCmd,
		&FaultsCmd,
	)
}
