package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/rfnode/rfnode.go/pkg/host"
	"github.com/rfnode/rfnode.go/pkg/node"
)

// Connector implements node.Connector using MQTT.
type Connector struct {
	DiscoverTimeout time.Duration

	options     *paho.ClientOptions
	topicPrefix string
}

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		DiscoverTimeout: DefaultDiscoverTimeout,
		options:         opts,
		topicPrefix:     topicPrefix,
	}, nil
}

// Discover implements Connector. It collects the retained meta topics
// visible within the discovery window.
func (c *Connector) Discover(ctx context.Context) (res []node.Info, err error) {
	q := NewQueue(c.options, c.topicPrefix)
	q.Connect()
	defer q.Close()
	resCh := make(chan node.Info, 1)
	q.Sub("+/+/meta", Handler(func(topic string, payload []byte) {
		items := strings.Split(topic, "/")
		if len(items) != 3 || len(payload) == 0 {
			return
		}
		info := node.Info{Ref: node.Ref{Type: items[0], ID: items[1]}}
		if err := json.Unmarshal(payload, &info.Meta); err != nil {
			glog.V(1).Infof("%s: unreadable meta: %v", topic, err)
		}
		select {
		case resCh <- info:
		case <-time.After(time.Second):
		}
	}))

	dur := c.DiscoverTimeout
	if dur == 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	for {
		select {
		case info := <-resCh:
			res = append(res, info)
		case <-timeout:
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Connect implements Connector. The returned connection owns its own
// client and pumps in the background until closed.
func (c *Connector) Connect(ctx context.Context, ref node.Ref) (node.Conn, error) {
	q := NewQueue(c.options, c.topicPrefix)
	token := q.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	rw := NewFrameReadWriter(q).ForHost(ref)
	conn := &nodeConn{Conn: host.NewConn(rw), queue: q, rw: rw}

	rctx, cancel := context.WithCancel(context.Background())
	conn.cancelRW = cancel
	go conn.rw.Run(rctx)
	conn.Start()
	return conn, nil
}

type nodeConn struct {
	*host.Conn
	queue    *Queue
	rw       *ReadWriter
	cancelRW context.CancelFunc
}

// Close implements node.Conn.
func (c *nodeConn) Close() error {
	err := c.Conn.Close()
	c.cancelRW()
	c.queue.Close()
	return err
}
