package main

//go-build: CGO_ENABLED=0

import (
	"github.com/rfnode/rfnode.go/pkg/cli/sh"
	env "github.com/rfnode/rfnode.go/pkg/host/env"

	_ "github.com/rfnode/rfnode.go/pkg/cli/cmds/node"
)

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
