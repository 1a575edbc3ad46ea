package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags holds flags for the run command.
type RunFlags struct {
	Output         string // "table" or "json"
	MaxConcurrency int
	StoreDSN       string
	HistoryDSNs    []string
	MetricsListen  string
	Quiet          bool
	Timeout        time.Duration // overall cap on the run, 0 means none
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen   string
	BasePath string
}

// HistoryFlags holds flags for the history command.
type HistoryFlags struct {
	StoreDSN string
	RunID    string
	Limit    int
	Output   string
}
