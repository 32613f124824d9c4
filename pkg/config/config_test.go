package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
cluster:
  name: lab
  admin_user: admin
network:
  cidr: 10.42.0.0/24
  start_address: 10.42.0.10
  gateway: 10.42.0.1
nodes:
  - name: node1
    address: 10.42.0.10
    role: control
  - name: node2
    address: 10.42.0.11
    role: worker
image:
  url: https://example.com/images/os.img.gz
`

// TestParseValid tests decoding a well-formed configuration
func TestParseValid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "lab", cfg.Cluster.Name)
	assert.Equal(t, "admin", cfg.Cluster.AdminUser)
	assert.Equal(t, "10.42.0.0/24", cfg.Network.CIDR)
	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, "control", cfg.Nodes[0].Role)
	assert.Equal(t, "https://example.com/images/os.img.gz", cfg.Image.URL)
}

// TestParseInvalid tests that structural validation rejects bad
// configurations with the failing field named
func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name      string
		mangle    func(string) string
		wantField string
	}{
		{
			name:      "bad node role",
			mangle:    func(s string) string { return strings.Replace(s, "role: worker", "role: storage", 1) },
			wantField: "Role",
		},
		{
			name:      "bad cidr",
			mangle:    func(s string) string { return strings.Replace(s, "10.42.0.0/24", "10.42.0.0", 1) },
			wantField: "CIDR",
		},
		{
			name:      "bad start address",
			mangle:    func(s string) string { return strings.Replace(s, "start_address: 10.42.0.10", "start_address: not-an-ip", 1) },
			wantField: "StartAddress",
		},
		{
			name:      "missing image url",
			mangle:    func(s string) string { return strings.Replace(s, "url: https://example.com/images/os.img.gz", "url: \"\"", 1) },
			wantField: "URL",
		},
		{
			name:      "no nodes",
			mangle:    func(s string) string { return strings.Split(s, "nodes:")[0] + "image:\n  url: https://example.com/os.img\n" },
			wantField: "Nodes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mangle(validYAML)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

// TestParseMalformedYAML tests that undecodable input is an error
func TestParseMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("cluster: [not: a: mapping"))
	require.Error(t, err)
}

// TestLoad tests reading a configuration file from disk
func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodeforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lab", cfg.Cluster.Name)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

// TestNodeLookup tests node lookup by name
func TestNodeLookup(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	node, ok := cfg.Node("node2")
	require.True(t, ok)
	assert.Equal(t, "10.42.0.11", node.Address)

	_, ok = cfg.Node("node9")
	assert.False(t, ok)
}
