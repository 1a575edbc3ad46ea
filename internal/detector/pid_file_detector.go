package detector

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// PIDFileDetector reads a conventional pidfile (first line is the PID)
// and reports whether that process is still running. Once it has observed
// the process alive it remembers the process start time; if the same PID
// later shows a different start time the PID was reused and the original
// process is reported dead.
type PIDFileDetector struct {
	PIDFile string

	mu        sync.Mutex
	seenPID   int
	seenStart int64
}

func NewPIDFileDetector(path string) *PIDFileDetector {
	return &PIDFileDetector{PIDFile: path}
}

func (d *PIDFileDetector) Alive() (bool, error) {
	data, err := os.ReadFile(d.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return false, fmt.Errorf("invalid pid in %s: %w", d.PIDFile, err)
	}
	return d.aliveWithReuseGuard(pid), nil
}

// aliveWithReuseGuard checks liveness and guards against a stale pidfile
// whose PID has been recycled by an unrelated process.
func (d *PIDFileDetector) aliveWithReuseGuard(pid int) bool {
	if !pidAlive(pid) {
		return false
	}
	cur := procStartUnix(pid)
	d.mu.Lock()
	defer d.mu.Unlock()
	if pid != d.seenPID {
		d.seenPID = pid
		d.seenStart = cur
		return true
	}
	if d.seenStart > 0 && cur > 0 && cur != d.seenStart {
		return false // PID reused; the observed process is gone
	}
	return true
}

func (d *PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }

// PIDDetector watches a fixed PID. The start time is captured on the
// first alive observation to detect PID reuse later.
type PIDDetector struct {
	PID int

	mu        sync.Mutex
	seenStart int64
}

func NewPIDDetector(pid int) *PIDDetector {
	return &PIDDetector{PID: pid}
}

func (d *PIDDetector) Alive() (bool, error) {
	if !pidAlive(d.PID) {
		return false, nil
	}
	cur := procStartUnix(d.PID)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seenStart == 0 {
		d.seenStart = cur
		return true, nil
	}
	if cur > 0 && cur != d.seenStart {
		return false, nil
	}
	return true, nil
}

func (d *PIDDetector) Describe() string { return fmt.Sprintf("pid:%d", d.PID) }
