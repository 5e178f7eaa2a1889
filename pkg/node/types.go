// Package node assembles the digitizer: acquisition, processing, command
// handling and fault reporting wired onto one run loop, with frame links
// to the host side.
package node

import (
	"context"

	"github.com/denisbrodbeck/machineid"

	"github.com/rfnode/rfnode.go/pkg/wire"
)

// Ref identifies one node on the wire: a node type plus a unique device
// ID.
type Ref struct {
	// Type is the node type, such as "digitizer".
	Type string
	// ID is the unique device ID.
	ID string
}

// Name retrieves the name from ref.
func (r Ref) Name() string {
	return r.Type + "/" + r.ID
}

// IsValid indicates Ref is valid.
func (r Ref) IsValid() bool {
	return r.Type != "" && r.ID != ""
}

// Meta provides descriptive metadata published at registration.
type Meta struct {
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Info pairs a node reference with its metadata.
type Info struct {
	Ref  Ref
	Meta Meta
}

// MachineID retrieves the unique ID identifying the machine, the default
// device ID.
func MachineID() string {
	id, err := machineid.ID()
	if err != nil {
		panic(err)
	}
	return id
}

// Conn is a host-side connection to a node.
type Conn interface {
	// Send transmits a command and returns its future reply.
	Send(*wire.Command) Future
	// Telemetry returns the stream of received telemetry frames.
	Telemetry() <-chan wire.Telemetry
	// Faults returns the stream of received fault reports.
	Faults() <-chan wire.FaultReport
	// Close tears the connection down.
	Close() error
}

// Result is the outcome of a sent command.
type Result struct {
	Reply *wire.ErrorReply
	Err   error
}

// Future is the pending reply of a sent command.
type Future interface {
	ResultChan() <-chan Result
}

// Connector locates nodes and opens connections to them.
type Connector interface {
	// Discover enumerates registered nodes.
	Discover(context.Context) ([]Info, error)
	// Connect opens a connection to the specified node.
	Connect(context.Context, Ref) (Conn, error)
}
