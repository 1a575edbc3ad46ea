package probe

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// CommandProbe runs a command whose exit code denotes readiness
// (e.g. "pg_isready -h localhost"). Exit 0 is ready; any non-zero exit
// is a completed not-ready poll. Spawn failures are transport errors.
type CommandProbe struct {
	Command string
	Env     []string // extra env in KEY=VALUE form, appended to the OS env
	Timeout time.Duration
}

// buildShellAwareCommand constructs an *exec.Cmd for a probe command.
// Avoids invoking a shell unless obvious shell metacharacters are present.
func buildShellAwareCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/true")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.CommandContext(ctx, name, args...)
}

func (p *CommandProbe) Check(ctx context.Context) (Result, error) {
	t := p.Timeout
	if t <= 0 {
		t = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, t)
	defer cancel()

	cmd := buildShellAwareCommand(cctx, p.Command)
	if len(p.Env) > 0 {
		cmd.Env = append(cmd.Environ(), p.Env...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	detail := strings.TrimSpace(out.String())
	if len(detail) > 200 {
		detail = detail[:200]
	}
	if err == nil {
		return Result{Ready: true, Detail: detail}, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		// non-zero exit means not ready
		return Result{Ready: false, Detail: detail}, nil
	}
	return Result{}, err
}

func (p *CommandProbe) Describe() string { return "cmd:" + p.Command }
