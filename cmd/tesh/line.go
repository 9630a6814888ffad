package main

import "tesh/internal/shell"

// pipelineText is the flat text history records for a parsed Pipeline.
func pipelineText(p shell.Pipeline) string {
	return p.String()
}
