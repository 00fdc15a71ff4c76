// Package config loads the daemon's startup configuration from an
// optional YAML file, then overlays it with the CCN_*/CCND_* process
// environment per spec.md s6 — env wins, matching the original
// env-var-first design (csrc/ccnd/ccnd.c), grounded on teacher's
// fw/cmd/cmd.go (toolutils.ReadYaml) pattern.
package config

import (
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
)

// Config holds every knob spec.md s6 names plus the daemon's file
// locations.
type Config struct {
	LocalPort string `yaml:"local_port"` // CCN_LOCAL_PORT suffix

	Debug            uint64 `yaml:"debug"`              // CCND_DEBUG bitmask
	ContentStoreCap  int    `yaml:"cap"`                 // CCND_CAP
	MTU              int    `yaml:"mtu"`                 // CCND_MTU, 0 disables stuffing, 8800 max
	DataPauseUsec    int    `yaml:"data_pause_microsec"` // CCND_DATA_PAUSE_MICROSEC
	TryFIB           bool   `yaml:"tryfib"`              // CCND_TRYFIB

	SocketDir  string `yaml:"socket_dir"`
	UnicastPort int   `yaml:"unicast_port"`

	KeystorePath string `yaml:"keystore_path"`

	StatusAddr     string `yaml:"status_addr"`      // plain HTTP /status.json
	StatusHTTP3Addr string `yaml:"status_http3_addr"` // optional HTTP/3 /status.json
	StatusTLSCert  string `yaml:"status_tls_cert"`
	StatusTLSKey   string `yaml:"status_tls_key"`

	WebSocketAddr    string `yaml:"websocket_addr"`     // optional browser/JS face listener
	WebTransportAddr string `yaml:"webtransport_addr"` // optional HTTP/3 WebTransport face listener
}

// Default mirrors the original daemon's built-in defaults before any
// file or environment overlay is applied.
func Default() *Config {
	return &Config{
		LocalPort:       "",
		Debug:           0,
		ContentStoreCap: 4000,
		MTU:             1280,
		DataPauseUsec:   2000,
		TryFIB:          false,
		SocketDir:       "/tmp",
		UnicastPort:     4485,
		KeystorePath:    "ccnd.keystore",
		StatusAddr:      ":9695",
	}
}

// MaxMTU is the cap spec.md s6 places on CCND_MTU.
const MaxMTU = 8800

// Load reads path (if non-empty) over Default(), then overlays the
// CCN_*/CCND_* environment (spec.md s6 "Environment").
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, err
		}
	}
	c.applyEnv()
	if c.MTU > MaxMTU {
		c.MTU = MaxMTU
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("CCN_LOCAL_PORT"); ok {
		c.LocalPort = v
	}
	if v, ok := envUint("CCND_DEBUG"); ok {
		c.Debug = v
	}
	if v, ok := envInt("CCND_CAP"); ok {
		c.ContentStoreCap = v
	}
	if v, ok := envInt("CCND_MTU"); ok {
		c.MTU = v
	}
	if v, ok := envInt("CCND_DATA_PAUSE_MICROSEC"); ok {
		c.DataPauseUsec = v
	}
	if _, ok := os.LookupEnv("CCND_TRYFIB"); ok {
		c.TryFIB = true
	}
}

func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envUint(name string) (uint64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SocketPath returns the local control socket path, suffixed by
// LocalPort when set (spec.md s6 "Local control socket").
func (c *Config) SocketPath() string {
	p := c.SocketDir + "/.ccnd.sock"
	if c.LocalPort != "" {
		p += "." + c.LocalPort
	}
	return p
}
