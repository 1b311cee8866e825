package eventbridge

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/rolechain/internal/config"
)

const (
	// DefaultHost keeps the bridge on loopback unless configured otherwise.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the default TCP port for the bridge server.
	DefaultPort = 8765
	// DefaultMaxBodyBytes limits request payloads to 1 MB.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes, including wake long-polls.
	DefaultWriteTimeout = 90 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
	// DefaultWakeTimeout is how long a wake long-poll waits when the caller
	// does not ask for a specific timeout.
	DefaultWakeTimeout = 30 * time.Second
)

// Settings is the resolved bridge configuration.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// WakeTimeout is the long-poll wait used when a wake request names none.
	WakeTimeout time.Duration
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      true,
		Host:         DefaultHost,
		Port:         DefaultPort,
		MaxBodyBytes: DefaultMaxBodyBytes,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
		WakeTimeout:  DefaultWakeTimeout,
	}
}

// SettingsFromConfig layers the bridge section of config.yaml and then the
// ROLECHAIN_BRIDGE_* environment over the defaults.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := DefaultSettings()
	if cfg != nil {
		settings.applyConfig(cfg.Project.Bridge)
	}
	settings.applyEnv(os.LookupEnv)
	settings.normalize()
	return settings
}

func (s *Settings) applyConfig(raw config.BridgeConfig) {
	if raw.Enabled != nil {
		s.Enabled = *raw.Enabled
	}
	if host := strings.TrimSpace(raw.Host); host != "" {
		s.Host = host
	}
	if isValidPort(raw.Port) {
		s.Port = raw.Port
	}
	if d, err := time.ParseDuration(raw.WakeTimeout); err == nil && d > 0 {
		s.WakeTimeout = d
	}
}

type envOverride struct {
	key   string
	apply func(*Settings, string)
}

// envOverrides ignores values that do not parse.
var envOverrides = []envOverride{
	{"ROLECHAIN_BRIDGE_ENABLED", func(s *Settings, v string) {
		if enabled, err := strconv.ParseBool(v); err == nil {
			s.Enabled = enabled
		}
	}},
	{"ROLECHAIN_BRIDGE_HOST", func(s *Settings, v string) { s.Host = v }},
	{"ROLECHAIN_BRIDGE_PORT", func(s *Settings, v string) {
		if port, err := strconv.Atoi(v); err == nil && isValidPort(port) {
			s.Port = port
		}
	}},
	{"ROLECHAIN_BRIDGE_WAKE_TIMEOUT", func(s *Settings, v string) {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			s.WakeTimeout = d
		}
	}},
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) {
	for _, o := range envOverrides {
		if value, ok := lookup(o.key); ok && strings.TrimSpace(value) != "" {
			o.apply(s, strings.TrimSpace(value))
		}
	}
}

// normalize fills zero values with defaults and keeps the default wake
// within what WriteTimeout allows.
func (s *Settings) normalize() {
	defaults := DefaultSettings()
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = defaults.Host
	}
	if !isValidPort(s.Port) {
		s.Port = defaults.Port
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = defaults.ReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = defaults.WriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = defaults.IdleTimeout
	}
	if s.WakeTimeout <= 0 {
		s.WakeTimeout = defaults.WakeTimeout
	}
	if max := s.maxWake(); s.WakeTimeout > max {
		s.WakeTimeout = max
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

// defaultWake is the wait for wake requests without a timeout parameter.
func (s Settings) defaultWake() time.Duration {
	if s.WakeTimeout > 0 {
		return s.WakeTimeout
	}
	return DefaultWakeTimeout
}

// maxWake caps long-poll waits so responses are written before WriteTimeout.
func (s Settings) maxWake() time.Duration {
	if s.WriteTimeout <= 0 {
		return DefaultWakeTimeout
	}
	if limit := s.WriteTimeout - time.Second; limit > 0 {
		return limit
	}
	return s.WriteTimeout / 2
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
