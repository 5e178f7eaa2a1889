// Package host is the operator side of a frame link: it correlates
// command replies by sequence number and fans received telemetry and
// fault reports out to the caller.
package host

import (
	"container/list"
	"context"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/rfnode/rfnode.go/pkg/link"
	"github.com/rfnode/rfnode.go/pkg/node"
	"github.com/rfnode/rfnode.go/pkg/wire"
)

// DefaultExpiration is the default wait for a command reply.
const DefaultExpiration = 1 * time.Second

// RejectError is a command rejection carried in an ErrorReply.
type RejectError struct {
	Reply wire.ErrorReply
}

// Error implements error.
func (e *RejectError) Error() string {
	if e.Reply.Field != wire.FieldNone {
		return "rejected: " + e.Reply.Code.String() + " " + e.Reply.Field.String()
	}
	return "rejected: " + e.Reply.Code.String()
}

// Conn implements node.Conn over any frame link. Run must be pumping for
// replies and telemetry to flow.
type Conn struct {
	// Expiration bounds the wait for a command reply.
	Expiration time.Duration

	rw     link.FrameReadWriter
	seq    uint32
	seqMap map[uint32]*future
	window list.List
	lock   sync.Mutex

	tlmCh chan wire.Telemetry
	fltCh chan wire.FaultReport

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConn creates a Conn over rw.
func NewConn(rw link.FrameReadWriter) *Conn {
	return &Conn{
		Expiration: DefaultExpiration,
		rw:         rw,
		seqMap:     make(map[uint32]*future),
		tlmCh:      make(chan wire.Telemetry, 16),
		fltCh:      make(chan wire.FaultReport, 4),
	}
}

// Start runs the receive pump in the background until Close.
func (c *Conn) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		if err := c.Run(ctx); err != nil && ctx.Err() == nil {
			glog.Warningf("host conn: %v", err)
		}
	}()
}

// Send implements node.Conn. The future registers before the frame goes
// out so a fast reply cannot slip past it, and the write itself runs
// outside the lock: a slow transport must not stall reply correlation.
func (c *Conn) Send(cmd *wire.Command) node.Future {
	c.lock.Lock()
	c.seq++
	if c.seq == 0 {
		c.seq++
	}
	cmd.Seq = c.seq
	f := &future{
		seq:      cmd.Seq,
		expireAt: time.Now().Add(c.Expiration),
		result:   make(chan node.Result, 1),
	}
	f.elem = c.window.PushBack(f)
	c.seqMap[f.seq] = f
	c.lock.Unlock()

	var raw wire.Raw
	err := wire.EncodeMessage(cmd, &raw)
	if err == nil {
		err = c.rw.WriteFrame(&raw)
	}
	if err != nil {
		// Deregister unless a purge or close already settled it.
		c.lock.Lock()
		owned := c.seqMap[f.seq] == f
		if owned {
			c.window.Remove(f.elem)
			delete(c.seqMap, f.seq)
		}
		c.lock.Unlock()
		if owned {
			f.fail(err)
		}
	}
	return f
}

// Telemetry implements node.Conn.
func (c *Conn) Telemetry() <-chan wire.Telemetry {
	return c.tlmCh
}

// Faults implements node.Conn.
func (c *Conn) Faults() <-chan wire.FaultReport {
	return c.fltCh
}

// Close implements node.Conn.
func (c *Conn) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Run implements Runnable: the receive pump plus expiry sweep.
func (c *Conn) Run(ctx context.Context) error {
	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop() }()
	period := c.Expiration / 4
	if period <= 0 {
		period = DefaultExpiration / 4
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.failAll(ctx.Err())
			return ctx.Err()
		case err := <-readErr:
			c.failAll(err)
			return err
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

func (c *Conn) readLoop() error {
	var raw wire.Raw
	for {
		if err := c.rw.ReadFrame(&raw); err != nil {
			if err == wire.ErrIntegrity || err == wire.ErrVersion ||
				err == wire.ErrTooLarge || err == wire.ErrBadPayload {
				glog.V(1).Infof("host conn: bad frame: %v", err)
				continue
			}
			return err
		}
		c.handleFrame(&raw)
	}
}

func (c *Conn) handleFrame(raw *wire.Raw) {
	frame, _, err := wire.Decode(raw.Bytes())
	if err != nil {
		glog.V(1).Infof("host conn: bad frame: %v", err)
		return
	}
	msg, err := wire.DecodeMessage(frame)
	if err != nil {
		glog.V(1).Infof("host conn: bad %v frame: %v", frame.Kind, err)
		return
	}
	switch m := msg.(type) {
	case *wire.Telemetry:
		select {
		case c.tlmCh <- *m:
		default:
			glog.V(2).Info("host conn: telemetry dropped, consumer behind")
		}
	case *wire.FaultReport:
		select {
		case c.fltCh <- *m:
		default:
		}
	case *wire.ErrorReply:
		c.completeCommand(m)
	}
}

func (c *Conn) completeCommand(reply *wire.ErrorReply) {
	c.lock.Lock()
	defer c.lock.Unlock()
	f := c.seqMap[reply.Seq]
	if f == nil {
		return
	}
	c.window.Remove(f.elem)
	delete(c.seqMap, f.seq)
	result := node.Result{Reply: reply}
	if reply.Code != wire.CodeOK {
		result.Err = &RejectError{Reply: *reply}
	}
	f.result <- result
	close(f.result)
}

func (c *Conn) purgeExpired() {
	now := time.Now()
	c.lock.Lock()
	defer c.lock.Unlock()
	for c.window.Len() > 0 {
		elem := c.window.Front()
		f := elem.Value.(*future)
		if f.expireAt.After(now) {
			break
		}
		c.window.Remove(elem)
		delete(c.seqMap, f.seq)
		f.result <- node.Result{Err: context.DeadlineExceeded}
		close(f.result)
	}
}

func (c *Conn) failAll(err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for c.window.Len() > 0 {
		elem := c.window.Front()
		f := elem.Value.(*future)
		c.window.Remove(elem)
		delete(c.seqMap, f.seq)
		f.result <- node.Result{Err: err}
		close(f.result)
	}
}

type future struct {
	seq      uint32
	expireAt time.Time
	elem     *list.Element
	result   chan node.Result
}

func (f *future) ResultChan() <-chan node.Result {
	return f.result
}

func (f *future) fail(err error) {
	f.result <- node.Result{Err: err}
	close(f.result)
}
