package main

import "strings"

// Download fetches papers by arXiv ID, DOI, or PDF URL (space-separated).
func Download(identifiers string) error {
	return runCLI(append([]string{"download"}, strings.Fields(identifiers)...)...)
}
