package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/readyup/internal/graph"
	"github.com/loykin/readyup/internal/logger"
	tlsutil "github.com/loykin/readyup/internal/tls"
)

// FileConfig represents the top-level TOML structure of a service-graph
// definition file.
type FileConfig struct {
	Env      []string `toml:"env" mapstructure:"env"`
	EnvFiles []string `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool     `toml:"use_os_env" mapstructure:"use_os_env"`

	Log          *logger.Config      `toml:"log" mapstructure:"log"`
	Orchestrator *OrchestratorConfig `toml:"orchestrator" mapstructure:"orchestrator"`
	Server       *ServerConfig       `toml:"server" mapstructure:"server"`
	Services     []ServiceConfig     `toml:"services" mapstructure:"services"`
}

// OrchestratorConfig holds run-wide settings.
type OrchestratorConfig struct {
	MaxConcurrency int      `toml:"max_concurrency" mapstructure:"max_concurrency"`
	StoreDSN       string   `toml:"store" mapstructure:"store"`
	HistoryDSNs    []string `toml:"history" mapstructure:"history"`
	MetricsListen  string   `toml:"metrics_listen" mapstructure:"metrics_listen"`
}

// ServerConfig holds daemon-mode settings.
type ServerConfig struct {
	Listen   string                `toml:"listen" mapstructure:"listen"`
	BasePath string                `toml:"base_path" mapstructure:"base_path"`
	TLS      *tlsutil.ServerConfig `toml:"tls" mapstructure:"tls"`
}

// ServiceConfig mirrors graph.Spec for TOML parsing.
type ServiceConfig struct {
	Name         string                  `toml:"name" mapstructure:"name"`
	DependsOn    []string                `toml:"depends_on" mapstructure:"depends_on"`
	MaxWait      time.Duration           `toml:"max_wait" mapstructure:"max_wait"`
	PollInterval time.Duration           `toml:"poll_interval" mapstructure:"poll_interval"`
	Backoff      string                  `toml:"backoff" mapstructure:"backoff"`
	MaxInterval  time.Duration           `toml:"max_interval" mapstructure:"max_interval"`
	CrashGrace   time.Duration           `toml:"crash_grace" mapstructure:"crash_grace"`
	DiagEvery    int                     `toml:"diag_every" mapstructure:"diag_every"`
	MaxTransport int                     `toml:"max_transport_errors" mapstructure:"max_transport_errors"`
	Env          []string                `toml:"env" mapstructure:"env"`
	Probe        *graph.ProbeConfig      `toml:"probe" mapstructure:"probe"`
	CrashCheck   *graph.CrashCheckConfig `toml:"crash_check" mapstructure:"crash_check"`
	LogTail      *graph.LogTailConfig    `toml:"log_tail" mapstructure:"log_tail"`
}

// Load parses a TOML service-graph file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Specs converts the parsed services to graph specs. Descriptor
// validation happens later in graph.New / Spec.Build.
func (fc *FileConfig) Specs() []graph.Spec {
	specs := make([]graph.Spec, 0, len(fc.Services))
	for _, sc := range fc.Services {
		specs = append(specs, graph.Spec{
			Name:             sc.Name,
			DependsOn:        sc.DependsOn,
			MaxWait:          sc.MaxWait,
			PollInterval:     sc.PollInterval,
			Backoff:          graph.BackoffMode(sc.Backoff),
			MaxInterval:      sc.MaxInterval,
			CrashGrace:       sc.CrashGrace,
			DiagEvery:        sc.DiagEvery,
			MaxTransport:     sc.MaxTransport,
			Env:              sc.Env,
			ProbeConfig:      sc.Probe,
			CrashCheckConfig: sc.CrashCheck,
			LogTailConfig:    sc.LogTail,
		})
	}
	return specs
}

// GlobalEnv merges env from config: optionally the OS env as base, then
// env_files contents in order, then the top-level env list last.
func (fc *FileConfig) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				m[k] = v
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no
// export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("env file %s: %w", path, err)
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			m[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return m, nil
}
