package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/rfnode/rfnode.go/pkg/core/config"
	fx "github.com/rfnode/rfnode.go/pkg/framework"
	wslink "github.com/rfnode/rfnode.go/pkg/link/websocket"
	"github.com/rfnode/rfnode.go/pkg/node"
	env "github.com/rfnode/rfnode.go/pkg/node/env"
	"github.com/rfnode/rfnode.go/pkg/sim"
)

var (
	listenWS string
	realtime = true
)

func init() {
	env.SetNodeType("digitizer", node.Meta{Description: "RF Digitizer"})
	env.SetupFlags()
	flag.StringVar(&listenWS, "listen-ws", listenWS, "Also serve frames over websocket at this address.")
	flag.BoolVar(&realtime, "realtime", realtime, "Pace the simulated front end at the sample clock.")
}

func main() {
	flag.Parse()

	nodeEnv := env.NewConfig().MustNewEnv()

	front := sim.New()
	front.Realtime = realtime
	n, err := node.New(nodeEnv.Config.Info, front, config.Load())
	if err != nil {
		log.Fatalln(err)
	}

	loop := fx.NewLoop()
	nodeEnv.Attach(n, loop)
	loop.Add(n)

	if listenWS != "" {
		http.Handle("/frames", websocket.Handler(func(c *websocket.Conn) {
			n.ServeLink(context.Background(), wslink.New(c))
		}))
		go func() {
			if err := http.ListenAndServe(listenWS, nil); err != nil {
				log.Fatalln(err)
			}
		}()
	}

	loop.RunOrFail()
}
