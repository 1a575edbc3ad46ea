package logtail

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// commandTimeout bounds a log tail command run.
const commandTimeout = 5 * time.Second

// CommandTailer shells out for log lines, e.g.
// "docker logs --tail 20 backend". The last Lines lines of combined
// output are returned; the command's exit code is ignored since log
// fetchers for stopped units often exit non-zero while still printing
// useful output.
type CommandTailer struct {
	Command string
	Env     []string // extra env in KEY=VALUE form
	Lines   int
}

func (t CommandTailer) Tail(ctx context.Context) ([]string, error) {
	n := t.Lines
	if n <= 0 {
		n = DefaultLines
	}
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	cmdStr := strings.TrimSpace(t.Command)
	if cmdStr == "" {
		return nil, nil
	}
	var cmd *exec.Cmd
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		cmd = exec.CommandContext(cctx, "/bin/sh", "-c", cmdStr)
	} else {
		parts := strings.Fields(cmdStr)
		// #nosec G204
		cmd = exec.CommandContext(cctx, parts[0], parts[1:]...)
	}
	if len(t.Env) > 0 {
		cmd.Env = append(cmd.Environ(), t.Env...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	_ = cmd.Run()
	lines := splitTrailing(out.Bytes())
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func (t CommandTailer) Describe() string { return "cmd:" + t.Command }
