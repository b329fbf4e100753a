package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

// envOverlay carries the operational overrides the ambient stack layers on
// top of the parsed config file (SPEC_FULL.md "AMBIENT STACK"): these are
// things an operator typically wants to flip per-deployment (container,
// systemd unit) without editing the bouncer's own config grammar.
type envOverlay struct {
	ListenPort     int           `env:"DIRCPROXY_LISTEN_PORT"`
	PidFile        string        `env:"DIRCPROXY_PID_FILE"`
	LogDir         string        `env:"DIRCPROXY_LOG_DIR"`
	ClientTimeout  time.Duration `env:"DIRCPROXY_CLIENT_TIMEOUT"`
	ConnectTimeout time.Duration `env:"DIRCPROXY_CONNECT_TIMEOUT"`
}

// ApplyEnvOverlay overlays DIRCPROXY_* environment variables onto an
// already-parsed Config. Zero-valued overlay fields leave the file's
// setting untouched.
func ApplyEnvOverlay(cfg *Config) error {
	var overlay envOverlay
	if err := env.Parse(&overlay); err != nil {
		return err
	}
	if overlay.ListenPort != 0 {
		cfg.ListenPort = overlay.ListenPort
	}
	if overlay.PidFile != "" {
		cfg.PidFile = overlay.PidFile
	}
	if overlay.ClientTimeout != 0 {
		cfg.ClientTimeout = overlay.ClientTimeout
	}
	if overlay.ConnectTimeout != 0 {
		cfg.ConnectTimeout = overlay.ConnectTimeout
	}
	if overlay.LogDir != "" {
		for _, class := range cfg.Classes {
			if class.LogDir == "" {
				class.LogDir = overlay.LogDir
			}
		}
	}
	return nil
}
