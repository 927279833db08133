package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	c, err := load(nil, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Empty(t, c.DatabaseURL)
	assert.Equal(t, 30*time.Second, c.RoomGrace)
	assert.Equal(t, 24*time.Hour, c.RoomIdleTTL)
	assert.Equal(t, []string{"http://localhost:8080", "http://127.0.0.1:8080"}, c.AllowOrigins)
	assert.False(t, c.Debug)
}

func TestEnvironmentAndFlags(t *testing.T) {
	env := envMap(map[string]string{
		"PORT":              "9000",
		"DISCORD_CLIENT_ID": "abc",
		"ORIGIN_ALLOWLIST":  "https://a.example, https://b.example",
		"ROOM_GRACE":        "5s",
		"DEBUG":             "true",
	})
	c, err := load([]string{"-port", "9100", "-room-idle-ttl", "1h"}, env)
	require.NoError(t, err)
	assert.Equal(t, "9100", c.Port)
	assert.Equal(t, "abc", c.ClientID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowOrigins)
	assert.Equal(t, 5*time.Second, c.RoomGrace)
	assert.Equal(t, time.Hour, c.RoomIdleTTL)
	assert.True(t, c.Debug)
}

func TestBadDuration(t *testing.T) {
	_, err := load(nil, envMap(map[string]string{"ROOM_GRACE": "soon"}))
	assert.ErrorContains(t, err, "ROOM_GRACE")

	_, err = load([]string{"-sweep", "0s"}, envMap(nil))
	assert.Error(t, err)
}
