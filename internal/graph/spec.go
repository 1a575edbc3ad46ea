package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/loykin/readyup/internal/detector"
	"github.com/loykin/readyup/internal/logtail"
	"github.com/loykin/readyup/internal/probe"
	tlsutil "github.com/loykin/readyup/internal/tls"
)

// Sentinel errors for graph-level validation failures. Both abort a run
// before any probing starts and map to CLI exit code 2.
var (
	ErrCyclicDependency = errors.New("cyclic dependency")
	ErrInvalidSpec      = errors.New("invalid spec")
)

// Defaults applied by Normalize when a spec leaves a field zero.
const (
	DefaultMaxWait      = 60 * time.Second
	DefaultPollInterval = time.Second
	DefaultDiagEvery    = 15
	DefaultMaxTransport = 5
)

// BackoffMode selects the wait policy between polls.
type BackoffMode string

const (
	// BackoffConstant waits PollInterval between every poll.
	BackoffConstant BackoffMode = "constant"
	// BackoffExponential doubles the wait after each unready poll, with
	// jitter, capped at MaxInterval (or 8x PollInterval when unset).
	BackoffExponential BackoffMode = "exponential"
)

// ProbeConfig describes a readiness probe so specs can be parsed from
// config files; Build turns it into a probe.Probe.
type ProbeConfig struct {
	Type    string        `json:"type" mapstructure:"type"`       // "http", "tcp", "command"
	URL     string        `json:"url" mapstructure:"url"`         // http
	Address string        `json:"address" mapstructure:"address"` // tcp host:port
	Command string        `json:"command" mapstructure:"command"` // command
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"` // per-call timeout

	// TLS applies to https probe targets (custom CA, skip-verify).
	TLS *tlsutil.ClientConfig `json:"tls,omitempty" mapstructure:"tls"`
}

// CrashCheckConfig describes how to detect that the unit behind a service
// has terminated abnormally.
type CrashCheckConfig struct {
	Type    string `json:"type" mapstructure:"type"` // "command", "pidfile", "pid"
	Command string `json:"command" mapstructure:"command"`
	Path    string `json:"path" mapstructure:"path"`
	PID     int    `json:"pid" mapstructure:"pid"`
}

// LogTailConfig describes where diagnostic log lines come from.
type LogTailConfig struct {
	Type    string `json:"type" mapstructure:"type"` // "file", "command"
	Path    string `json:"path" mapstructure:"path"`
	Command string `json:"command" mapstructure:"command"`
	Lines   int    `json:"lines" mapstructure:"lines"`
}

// Spec declares one service whose readiness must be confirmed.
type Spec struct {
	Name         string        `json:"name"`
	DependsOn    []string      `json:"depends_on"`
	MaxWait      time.Duration `json:"max_wait"`
	PollInterval time.Duration `json:"poll_interval"`
	Backoff      BackoffMode   `json:"backoff"`
	MaxInterval  time.Duration `json:"max_interval"` // cap for exponential backoff
	CrashGrace   time.Duration `json:"crash_grace"`  // suppress crash checks for this long after probing starts
	DiagEvery    int           `json:"diag_every"`   // emit a diagnostic snapshot every N polls
	MaxTransport int           `json:"max_transport_errors"`
	Env          []string      `json:"env"` // extra env for command probes/checks/tails

	Probe      probe.Probe       `json:"-" mapstructure:"-"`
	CrashCheck detector.Detector `json:"-" mapstructure:"-"`
	LogTail    logtail.Tailer    `json:"-" mapstructure:"-"`

	// Config-file forms; Build* populate the interfaces above.
	ProbeConfig      *ProbeConfig      `json:"probe" mapstructure:"probe"`
	CrashCheckConfig *CrashCheckConfig `json:"crash_check" mapstructure:"crash_check"`
	LogTailConfig    *LogTailConfig    `json:"log_tail" mapstructure:"log_tail"`
}

// Normalize fills zero fields with defaults. It does not validate.
func (s *Spec) Normalize() {
	if s.MaxWait <= 0 {
		s.MaxWait = DefaultMaxWait
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.Backoff == "" {
		s.Backoff = BackoffConstant
	}
	if s.MaxInterval <= 0 {
		s.MaxInterval = 8 * s.PollInterval
	}
	if s.DiagEvery <= 0 {
		s.DiagEvery = DefaultDiagEvery
	}
	if s.MaxTransport <= 0 {
		s.MaxTransport = DefaultMaxTransport
	}
}

// Validate checks a single spec in isolation. Graph-level checks
// (unknown dependencies, cycles) are done by Validate on the spec set.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: service name required", ErrInvalidSpec)
	}
	if s.Probe == nil && s.ProbeConfig == nil {
		return fmt.Errorf("%w: service %s has no probe", ErrInvalidSpec, s.Name)
	}
	if s.MaxWait < 0 {
		return fmt.Errorf("%w: service %s has negative max_wait", ErrInvalidSpec, s.Name)
	}
	if s.PollInterval < 0 {
		return fmt.Errorf("%w: service %s has negative poll_interval", ErrInvalidSpec, s.Name)
	}
	if s.CrashGrace < 0 {
		return fmt.Errorf("%w: service %s has negative crash_grace", ErrInvalidSpec, s.Name)
	}
	switch s.Backoff {
	case "", BackoffConstant, BackoffExponential:
	default:
		return fmt.Errorf("%w: service %s has unknown backoff %q", ErrInvalidSpec, s.Name, s.Backoff)
	}
	for _, d := range s.DependsOn {
		if d == s.Name {
			return fmt.Errorf("%w: service %s depends on itself", ErrInvalidSpec, s.Name)
		}
	}
	return nil
}

// BuildProbe materializes ProbeConfig into Spec.Probe when the latter is nil.
func (s *Spec) BuildProbe() error {
	if s.Probe != nil || s.ProbeConfig == nil {
		return nil
	}
	pc := s.ProbeConfig
	switch pc.Type {
	case "http":
		if pc.URL == "" {
			return fmt.Errorf("%w: service %s http probe requires url", ErrInvalidSpec, s.Name)
		}
		hp := &probe.HTTPProbe{URL: pc.URL, Timeout: pc.Timeout}
		if pc.TLS != nil {
			tc, err := tlsutil.ClientTLS(*pc.TLS)
			if err != nil {
				return fmt.Errorf("%w: service %s probe tls: %v", ErrInvalidSpec, s.Name, err)
			}
			hp.TLS = tc
		}
		s.Probe = hp
	case "tcp":
		if pc.Address == "" {
			return fmt.Errorf("%w: service %s tcp probe requires address", ErrInvalidSpec, s.Name)
		}
		s.Probe = &probe.TCPProbe{Address: pc.Address, Timeout: pc.Timeout}
	case "command":
		if pc.Command == "" {
			return fmt.Errorf("%w: service %s command probe requires command", ErrInvalidSpec, s.Name)
		}
		s.Probe = &probe.CommandProbe{Command: pc.Command, Env: s.Env, Timeout: pc.Timeout}
	default:
		return fmt.Errorf("%w: service %s has unknown probe type %q", ErrInvalidSpec, s.Name, pc.Type)
	}
	return nil
}

// BuildCrashCheck materializes CrashCheckConfig into Spec.CrashCheck.
func (s *Spec) BuildCrashCheck() error {
	if s.CrashCheck != nil || s.CrashCheckConfig == nil {
		return nil
	}
	cc := s.CrashCheckConfig
	switch cc.Type {
	case "command":
		if cc.Command == "" {
			return fmt.Errorf("%w: service %s command crash check requires command", ErrInvalidSpec, s.Name)
		}
		s.CrashCheck = detector.CommandDetector{Command: cc.Command, Env: s.Env}
	case "pidfile":
		if cc.Path == "" {
			return fmt.Errorf("%w: service %s pidfile crash check requires path", ErrInvalidSpec, s.Name)
		}
		s.CrashCheck = detector.NewPIDFileDetector(cc.Path)
	case "pid":
		if cc.PID <= 0 {
			return fmt.Errorf("%w: service %s pid crash check requires positive pid", ErrInvalidSpec, s.Name)
		}
		s.CrashCheck = detector.NewPIDDetector(cc.PID)
	default:
		return fmt.Errorf("%w: service %s has unknown crash check type %q", ErrInvalidSpec, s.Name, cc.Type)
	}
	return nil
}

// BuildLogTail materializes LogTailConfig into Spec.LogTail.
func (s *Spec) BuildLogTail() error {
	if s.LogTail != nil || s.LogTailConfig == nil {
		return nil
	}
	lc := s.LogTailConfig
	lines := lc.Lines
	if lines <= 0 {
		lines = logtail.DefaultLines
	}
	switch lc.Type {
	case "file":
		if lc.Path == "" {
			return fmt.Errorf("%w: service %s file log tail requires path", ErrInvalidSpec, s.Name)
		}
		s.LogTail = logtail.FileTailer{Path: lc.Path, Lines: lines}
	case "command":
		if lc.Command == "" {
			return fmt.Errorf("%w: service %s command log tail requires command", ErrInvalidSpec, s.Name)
		}
		s.LogTail = logtail.CommandTailer{Command: lc.Command, Env: s.Env, Lines: lines}
	default:
		return fmt.Errorf("%w: service %s has unknown log tail type %q", ErrInvalidSpec, s.Name, lc.Type)
	}
	return nil
}

// Build materializes all config-file descriptors into their interfaces.
func (s *Spec) Build() error {
	if err := s.BuildProbe(); err != nil {
		return err
	}
	if err := s.BuildCrashCheck(); err != nil {
		return err
	}
	return s.BuildLogTail()
}
