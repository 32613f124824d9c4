// Package config loads and validates the nodeforge provisioning
// configuration: the cluster description provisioning procedures read
// their parameters from.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the provisioning configuration for one cluster.
type Config struct {
	// Cluster describes the cluster being provisioned.
	Cluster Cluster `yaml:"cluster" validate:"required"`

	// Network describes the cluster's address plan.
	Network Network `yaml:"network" validate:"required"`

	// Nodes lists the bare-metal nodes to provision.
	Nodes []Node `yaml:"nodes" validate:"min=1,dive"`

	// Image describes the OS image to flash onto nodes.
	Image Image `yaml:"image" validate:"required"`
}

// Cluster identifies the cluster.
type Cluster struct {
	// Name is the cluster name.
	Name string `yaml:"name" validate:"required,hostname_rfc1123"`

	// AdminUser is the administrative user created on every node.
	AdminUser string `yaml:"admin_user" validate:"required"`
}

// Network is the cluster's address plan.
type Network struct {
	// CIDR is the cluster subnet.
	CIDR string `yaml:"cidr" validate:"required,cidr"`

	// StartAddress is the first address handed to a node.
	StartAddress string `yaml:"start_address" validate:"required,ip"`

	// Gateway is the default gateway.
	Gateway string `yaml:"gateway" validate:"required,ip"`
}

// Node is one bare-metal node.
type Node struct {
	// Name is the node's hostname.
	Name string `yaml:"name" validate:"required,hostname_rfc1123"`

	// Address is the node's address once provisioned.
	Address string `yaml:"address" validate:"required,ip"`

	// Role is the node's cluster role.
	Role string `yaml:"role" validate:"required,oneof=control worker"`
}

// Image describes the OS image.
type Image struct {
	// URL is where the image archive is downloaded from.
	URL string `yaml:"url" validate:"required,url"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs structural validation over the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := errors.As(err, &verrs); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid config: field %s failed %q validation", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Node returns the node with the given name.
func (c *Config) Node(name string) (*Node, bool) {
	for i := range c.Nodes {
		if c.Nodes[i].Name == name {
			return &c.Nodes[i], true
		}
	}
	return nil, false
}
