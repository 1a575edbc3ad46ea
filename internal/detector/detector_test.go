package detector

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestCommandDetector(t *testing.T) {
	requireUnix(t)
	d := CommandDetector{Command: "true"}
	alive, err := d.Alive()
	if err != nil || !alive {
		t.Fatalf("exit 0 should be alive, got alive=%v err=%v", alive, err)
	}
	if d.Describe() != "cmd:true" {
		t.Fatalf("Describe: %q", d.Describe())
	}

	d = CommandDetector{Command: "false"}
	alive, err = d.Alive()
	if err != nil {
		t.Fatalf("non-zero exit is not an error: %v", err)
	}
	if alive {
		t.Fatal("exit 1 must mean not alive")
	}

	d = CommandDetector{Command: "/definitely/not/here"}
	if _, err := d.Alive(); err == nil {
		t.Fatal("spawn failure must surface as error")
	}
}

func TestCommandDetectorEnv(t *testing.T) {
	requireUnix(t)
	d := CommandDetector{Command: `test "$UNIT_STATE" = running`, Env: []string{"UNIT_STATE=running"}}
	alive, err := d.Alive()
	if err != nil || !alive {
		t.Fatalf("env not propagated: alive=%v err=%v", alive, err)
	}
}

func TestPIDFileDetectorAlive(t *testing.T) {
	requireUnix(t)
	// #nosec G204
	cmd := exec.Command("/bin/sh", "-c", "sleep 5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	defer func() { _ = cmd.Process.Kill() }()
	time.Sleep(20 * time.Millisecond)

	pidfile := filepath.Join(t.TempDir(), "svc.pid")
	if err := os.WriteFile(pidfile, []byte(strconv.Itoa(cmd.Process.Pid)+"\n"), 0o600); err != nil {
		t.Fatalf("write pidfile: %v", err)
	}

	d := NewPIDFileDetector(pidfile)
	alive, err := d.Alive()
	if err != nil {
		t.Fatalf("Alive: %v", err)
	}
	if !alive {
		t.Fatal("running process reported dead")
	}
	if d.Describe() != "pidfile:"+pidfile {
		t.Fatalf("Describe: %q", d.Describe())
	}
}

func TestPIDFileDetectorDeadAfterExit(t *testing.T) {
	requireUnix(t)
	// #nosec G204
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Wait() // reaped, PID gone

	pidfile := filepath.Join(t.TempDir(), "svc.pid")
	if err := os.WriteFile(pidfile, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		t.Fatalf("write pidfile: %v", err)
	}
	d := NewPIDFileDetector(pidfile)
	alive, err := d.Alive()
	if err != nil {
		t.Fatalf("Alive: %v", err)
	}
	if alive {
		t.Fatal("exited process reported alive")
	}
}

func TestPIDFileDetectorMissingAndMalformed(t *testing.T) {
	d := NewPIDFileDetector(filepath.Join(t.TempDir(), "nope.pid"))
	alive, err := d.Alive()
	if err != nil || alive {
		t.Fatalf("missing pidfile: alive=%v err=%v", alive, err)
	}

	bad := filepath.Join(t.TempDir(), "bad.pid")
	if err := os.WriteFile(bad, []byte("not-a-pid"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewPIDFileDetector(bad).Alive(); err == nil {
		t.Fatal("malformed pidfile must error")
	}
}

func TestPIDDetectorSelf(t *testing.T) {
	requireUnix(t)
	d := NewPIDDetector(os.Getpid())
	alive, err := d.Alive()
	if err != nil || !alive {
		t.Fatalf("own process must be alive: alive=%v err=%v", alive, err)
	}
	// Second observation with an unchanged start time stays alive.
	alive, err = d.Alive()
	if err != nil || !alive {
		t.Fatalf("second observation flipped: alive=%v err=%v", alive, err)
	}
}
