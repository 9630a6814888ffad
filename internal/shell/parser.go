// Package shell implements line parsing, pipeline construction, and the
// cooperative process-ticking scheduler: the half of the core that turns a
// typed command line into running programs and steps them to completion.
package shell

import (
	"strings"

	"tesh/internal/shellenv"
)

// Program is one command's word tokens after variable and alias expansion.
// Program[0] is the command name.
type Program []string

// Pipeline is an ordered list of Programs connected stdout -> stdin,
// terminating in a single output sink.
type Pipeline []Program

// String reassembles the pipeline back into flat command-line text, since
// parsing discards the original source line. The result is a best-effort
// reconstruction: quoting and alias expansion are not undone.
func (p Pipeline) String() string {
	parts := make([]string, len(p))
	for i, prog := range p {
		parts[i] = strings.Join(prog, " ")
	}
	return strings.Join(parts, " | ")
}

// AliasBody is the value internal/shellenv.Local stores for an alias
// defined with SetAlias, re-exported here so callers parsing and defining
// aliases don't need to import shellenv just for this type.
type AliasBody = shellenv.AliasBody

const maxAliasExpansions = 32

// ParseLine consumes one command line and produces a list of pipelines,
// each a list of programs, each a list of word tokens. Blank input parses
// to a nil, non-error result (a no-op, not a failure). Parse errors abort
// only this call; they carry no partial state back into env.
func ParseLine(line string, env *shellenv.Local) ([]Pipeline, error) {
	var pipelines []Pipeline
	for _, stmt := range splitUnquoted(line, ';') {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		pipeline, err := parsePipeline(stmt, env)
		if err != nil {
			return nil, err
		}
		if len(pipeline) > 0 {
			pipelines = append(pipelines, pipeline)
		}
	}
	return pipelines, nil
}

func parsePipeline(stmt string, env *shellenv.Local) (Pipeline, error) {
	var pipeline Pipeline
	stages := splitUnquoted(stmt, '|')
	for i, stage := range stages {
		stage = strings.TrimSpace(stage)
		if stage == "" {
			return nil, &ParseError{Kind: ErrUnterminatedProgram, Pos: 0}
		}
		words, err := newWordScanner(stage, env).words()
		if err != nil {
			return nil, err
		}
		words, err = expandAliases(words, env, 0)
		if err != nil {
			return nil, err
		}
		if len(words) == 0 {
			if i == len(stages)-1 && i == 0 {
				// The whole line was blank after expansion: no-op.
				return nil, nil
			}
			return nil, &ParseError{Kind: ErrEmptyProgram, Pos: 0}
		}
		pipeline = append(pipeline, Program(words))
	}
	return pipeline, nil
}

// expandAliases repeatedly substitutes words[0] with its alias body, if
// any, re-scanning the result, until no alias matches or the expansion
// depth cap is hit. It blocks an alias from expanding into itself directly
// (the immediate anti-recursion case; deeper cycles are caught by the
// depth cap instead of a second blocked-name slot).
func expandAliases(words []string, env *shellenv.Local, depth int) ([]string, error) {
	if len(words) == 0 || env == nil || depth >= maxAliasExpansions {
		return words, nil
	}
	body, ok := env.GetAlias(words[0])
	if !ok || body == "" {
		return words, nil
	}

	env.BlockAlias(words[0])
	defer env.ClearBlockedAlias()

	expanded, err := newWordScanner(string(body), env).words()
	if err != nil {
		return nil, err
	}
	expanded = append(expanded, words[1:]...)
	return expandAliases(expanded, env, depth+1)
}
