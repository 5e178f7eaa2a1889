package mqtt

import (
	"context"
	"encoding/json"

	"github.com/rfnode/rfnode.go/pkg/node"
)

// Registrar announces a node on the broker: retained metadata JSON on
// name/meta, cleared by the broker will when the node drops off, plus the
// frame topic pair. The zero-length retained payload is the deregistration.
type Registrar struct {
	Queue *Queue
	Info  node.Info
	RW    *ReadWriter

	metaJSON string
}

// NewRegistrar creates a Registrar from a broker URL.
func NewRegistrar(brokerURL string, info node.Info) (*Registrar, error) {
	meta, err := json.Marshal(&info.Meta)
	if err != nil {
		panic(err)
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+info.Ref.Name()+"/meta", nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("rfnode:" + info.Ref.Name())
	}
	r := &Registrar{
		Queue:    NewQueue(opts, topicPrefix),
		Info:     info,
		metaJSON: string(meta),
	}
	r.Queue.OnConnect = func(*Queue) { r.onConnected() }
	r.RW = NewFrameReadWriter(r.Queue).ForNode(info.Ref)
	return r, nil
}

// Run implements Runnable, holding the registration for the lifetime of
// the context. The frame ReadWriter runs separately, pumped by whoever
// attached the link.
func (r *Registrar) Run(ctx context.Context) error {
	r.Queue.Connect()
	<-ctx.Done()
	r.Queue.PubWith(r.Info.Ref.Name()+"/meta", nil, 1, true)
	r.Queue.Close()
	return ctx.Err()
}

func (r *Registrar) onConnected() {
	r.Queue.PubWith(r.Info.Ref.Name()+"/meta", []byte(r.metaJSON), 1, true)
}
