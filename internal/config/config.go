package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server settings.
type Config struct {
	Port          string
	DatabaseURL   string
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	AllowOrigins  []string
	RoomGrace     time.Duration
	RoomIdleTTL   time.Duration
	SweepInterval time.Duration
	Debug         bool
}

// Load parses args over defaults taken from the environment. Flags win over
// environment variables.
func Load(args []string) (Config, error) {
	return load(args, os.Getenv)
}

func load(args []string, env func(string) string) (Config, error) {
	get := func(k, d string) string {
		if v := env(k); v != "" {
			return v
		}
		return d
	}

	grace, err := durationEnv(get, "ROOM_GRACE", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	idle, err := durationEnv(get, "ROOM_IDLE_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	debug, _ := strconv.ParseBool(get("DEBUG", "false"))

	var c Config
	var origins string
	fs := flag.NewFlagSet("tableside", flag.ContinueOnError)
	fs.StringVar(&c.Port, "port", get("PORT", "8080"), "HTTP listen port")
	fs.StringVar(&c.DatabaseURL, "db", get("DATABASE_URL", ""), "postgres DSN; empty disables persistence")
	fs.StringVar(&c.ClientID, "client-id", get("DISCORD_CLIENT_ID", ""), "Discord OAuth2 client id")
	fs.StringVar(&c.ClientSecret, "client-secret", get("DISCORD_CLIENT_SECRET", ""), "Discord OAuth2 client secret")
	fs.StringVar(&c.RedirectURI, "redirect-uri", get("DISCORD_REDIRECT_URI", ""), "OAuth2 redirect URI")
	fs.StringVar(&origins, "origins", get("ORIGIN_ALLOWLIST", ""), "comma separated CORS origins")
	fs.DurationVar(&c.RoomGrace, "room-grace", grace, "how long finished rooms stay visible")
	fs.DurationVar(&c.RoomIdleTTL, "room-idle-ttl", idle, "idle time after which rooms are dropped")
	fs.DurationVar(&c.SweepInterval, "sweep", 5*time.Minute, "idle room sweep interval")
	fs.BoolVar(&c.Debug, "debug", debug, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if origins == "" {
		origins = "http://localhost:" + c.Port + ",http://127.0.0.1:" + c.Port
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			c.AllowOrigins = append(c.AllowOrigins, o)
		}
	}
	if c.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval)
	}
	return c, nil
}

func durationEnv(get func(k, d string) string, key string, def time.Duration) (time.Duration, error) {
	v := get(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
