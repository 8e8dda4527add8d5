package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "julea.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesServersAndBackends(t *testing.T) {
	path := writeConfig(t, `
servers:
  object:
    - 127.0.0.1:9001
    - 127.0.0.1:9002
  kv:
    - 127.0.0.1:9101
object:
  backend: memory
  path: /tmp/julea-object-{PORT}
max-connections: 4
stripe-size: 8192
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"127.0.0.1:9001", "127.0.0.1:9002"}, c.Servers.Object)
	assert.Equal(t, []string{"127.0.0.1:9101"}, c.Servers.KV)
	assert.Equal(t, "memory", c.Object.Backend)
	assert.EqualValues(t, 4, c.MaxConnections)
	assert.EqualValues(t, 8192, c.StripeSize)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
servers:
  object:
    - 127.0.0.1:9001
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, c.MaxConnections)
	assert.EqualValues(t, 4*1024*1024, c.StripeSize)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/julea.yaml")
	assert.Error(t, err)
}

func TestExpandPathSubstitutesPort(t *testing.T) {
	assert.Equal(t, "/var/julea-9001", ExpandPath("/var/julea-{PORT}", 9001))
}

func TestGetenvDefault(t *testing.T) {
	os.Unsetenv("JULEA_TEST_VAR_NOT_SET")
	assert.Equal(t, "fallback", Getenv("JULEA_TEST_VAR_NOT_SET", "fallback"))
}

func TestTraceBackendDefaultsOff(t *testing.T) {
	os.Unsetenv("TRACE")
	assert.Equal(t, "off", TraceBackend())
}
