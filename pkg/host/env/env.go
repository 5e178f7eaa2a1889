// Package env provides common setup for host-side tools connecting to
// nodes, driven by flags and RFNODE_* environment variables.
package env

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/rfnode/rfnode.go/pkg/link/mqtt"
	"github.com/rfnode/rfnode.go/pkg/node"
)

// Config provides common options to set up Connectors.
type Config struct {
	Ref node.Ref

	// RegistryURL specifies the URL of the node registry.
	// e.g. mqtt://host:port/topic-prefix
	RegistryURL string
}

var defaultConfig = Config{
	RegistryURL: "mqtt://localhost:1883/rfnode/",
}

func init() {
	if val := os.Getenv("RFNODE_TYPE"); val != "" {
		defaultConfig.Ref.Type = val
	}
	if val := os.Getenv("RFNODE_ID"); val != "" {
		defaultConfig.Ref.ID = val
	}
	if val := os.Getenv("RFNODE_REGISTRY_URL"); val != "" {
		defaultConfig.RegistryURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Ref.Type, "node-type", defaultConfig.Ref.Type, "Node type to connect.")
	flag.StringVar(&defaultConfig.Ref.ID, "node-id", defaultConfig.Ref.ID, "Node ID to connect.")
	flag.StringVar(&defaultConfig.RegistryURL, "node-reg", defaultConfig.RegistryURL, "Node registry URL.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewConnector creates a Connector using the current config.
func (c *Config) NewConnector() (node.Connector, error) {
	parsedURL, err := url.Parse(c.RegistryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid registry URL: %v", err)
	}
	switch parsedURL.Scheme {
	case "mqtt":
		return mqtt.NewConnector(c.RegistryURL)
	default:
		return nil, fmt.Errorf("unknown registry URL scheme: %q", parsedURL.Scheme)
	}
}

// MustNewConnector creates a Connector and fails on error.
func (c *Config) MustNewConnector() node.Connector {
	conn, err := c.NewConnector()
	if err != nil {
		log.Fatalln(err)
	}
	return conn
}

// Connect directly connects to a node.
func (c *Config) Connect() (node.Conn, error) {
	if !c.Ref.IsValid() {
		return nil, fmt.Errorf("node type and id must be specified")
	}
	connector, err := c.NewConnector()
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.TODO(), c.Ref)
}

// MustConnect connects to a node or fails.
func (c *Config) MustConnect() node.Conn {
	conn, err := c.Connect()
	if err != nil {
		log.Fatalln(err)
	}
	return conn
}
