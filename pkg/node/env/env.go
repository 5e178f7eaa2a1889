// Package env provides common setup for node daemons: identity, broker
// registration and link wiring, driven by flags and RFNODE_* environment
// variables.
package env

import (
	"flag"
	"fmt"
	"log"
	"os"

	fx "github.com/rfnode/rfnode.go/pkg/framework"
	"github.com/rfnode/rfnode.go/pkg/link/mqtt"
	"github.com/rfnode/rfnode.go/pkg/node"
)

// Config provides common options to set up the env for a node.
type Config struct {
	Info node.Info

	// MQTTBrokerURL specifies the MQTT broker to use.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
}

var defaultConfig = Config{
	MQTTBrokerURL: "mqtt://localhost:1883/rfnode/",
}

func init() {
	if val := os.Getenv("RFNODE_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	defaultConfig.Info.Ref.ID = node.MachineID()
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Info.Ref.Type, "type", defaultConfig.Info.Ref.Type, "Node type")
	flag.StringVar(&defaultConfig.Info.Ref.ID, "id", defaultConfig.Info.Ref.ID, "Node ID")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// SetNodeType should be called in init with basic info about the node.
func SetNodeType(typ string, meta node.Meta) {
	defaultConfig.Info.Ref.Type = typ
	defaultConfig.Info.Meta = meta
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Env is the runtime environment of a node daemon.
type Env struct {
	Config       *Config
	RegistryURLs []string
	Registrars   []*mqtt.Registrar
}

// NewEnv creates Env from config.
func (c *Config) NewEnv() (*Env, error) {
	if !c.Info.Ref.IsValid() {
		return nil, fmt.Errorf("node type and id must be specified")
	}
	env := &Env{Config: c}
	if c.MQTTBrokerURL != "" {
		reg, err := mqtt.NewRegistrar(c.MQTTBrokerURL, c.Info)
		if err != nil {
			return nil, fmt.Errorf("create MQTT registrar error: %v", err)
		}
		env.Registrars = append(env.Registrars, reg)
		env.RegistryURLs = append(env.RegistryURLs, c.MQTTBrokerURL)
	}
	if len(env.Registrars) == 0 {
		return nil, fmt.Errorf("at least one registrar is required")
	}
	return env, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

// Attach wires the registrar links onto the node and registers their
// lifetimes on the loop.
func (e *Env) Attach(n *node.Node, loop *fx.Loop) {
	for _, reg := range e.Registrars {
		n.AddLink(reg.RW)
		loop.AddRunnable(reg)
	}
}
