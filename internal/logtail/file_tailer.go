package logtail

import (
	"bytes"
	"context"
	"io"
	"os"
)

// FileTailer returns the last Lines lines of a log file.
type FileTailer struct {
	Path  string
	Lines int
}

// readBlock is the chunk size when scanning a file backwards.
const readBlock = 16 * 1024

func (t FileTailer) Tail(_ context.Context) ([]string, error) {
	n := t.Lines
	if n <= 0 {
		n = DefaultLines
	}
	f, err := os.Open(t.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	var buf []byte
	// Read backwards in blocks until enough newlines are collected.
	for off := size; off > 0 && bytes.Count(buf, []byte{'\n'}) <= n; {
		step := int64(readBlock)
		if off < step {
			step = off
		}
		off -= step
		chunk := make([]byte, step)
		if _, err := f.ReadAt(chunk, off); err != nil && err != io.EOF {
			return nil, err
		}
		buf = append(chunk, buf...)
	}
	lines := splitTrailing(buf)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

func splitTrailing(b []byte) []string {
	b = bytes.TrimRight(b, "\n")
	if len(b) == 0 {
		return nil
	}
	raw := bytes.Split(b, []byte{'\n'})
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		out = append(out, string(bytes.TrimRight(l, "\r")))
	}
	return out
}

func (t FileTailer) Describe() string { return "file:" + t.Path }
