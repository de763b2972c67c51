package main

import (
	"path/filepath"
	"strings"
)

// Analyze runs the multi-agent analysis on a local paper and writes
// reports/<name>.md.
func Analyze(file string) error {
	return runCLI("analyze", file, "--sections", "--out", reportPath(file))
}

// Explore asks the scout for papers on topic and prints their URLs.
func Explore(topic string) error {
	return runCLI("explore", topic)
}

// Serve starts the web UI on the configured address.
func Serve() error {
	return runCLI("serve")
}

func reportPath(file string) string {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	return filepath.Join("reports", base+".md")
}
