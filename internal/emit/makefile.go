package emit

import (
	"bytes"
	"fmt"
	"strings"
)

// DefaultGoal is the phony rule that builds every target.
const DefaultGoal = "all"

// Header is the provenance written at the top of a generated Makefile.
type Header struct {
	Generator   string
	Source      string
	Fingerprint string
}

// Makefile renders rules as Makefile text.
//
// The first rule is the phony default goal listing goals in order, so a bare
// `make` builds the pipeline's deliverables. Stage rules follow in the order
// given. Commands are shell text: every literal $ is doubled so make passes it
// through, and each line of a multi-line command becomes a recipe line.
//
// When any command spans several lines the Makefile declares .ONESHELL with
// -e, so each recipe runs as one shell script that stops at the first failing
// line. A `cd` or a loop split over lines then behaves as written. Without
// multi-line commands make's default of one shell per line is kept.
// The result depends only on the arguments.
func Makefile(rules []Rule, goals []string, h Header) []byte {
	var buf bytes.Buffer

	gen := h.Generator
	if gen == "" {
		gen = "pipeconfig"
	}
	if h.Source != "" {
		fmt.Fprintf(&buf, "# Code generated by %s from %s. DO NOT EDIT.\n", gen, h.Source)
	} else {
		fmt.Fprintf(&buf, "# Code generated by %s. DO NOT EDIT.\n", gen)
	}
	if h.Fingerprint != "" {
		fmt.Fprintf(&buf, "# config blake3: %s\n", h.Fingerprint)
	}
	buf.WriteString("\n.DELETE_ON_ERROR:\n")
	if needsOneShell(rules) {
		buf.WriteString(".ONESHELL:\n.SHELLFLAGS := -ec\n")
	}
	buf.WriteByte('\n')

	fmt.Fprintf(&buf, ".PHONY: %s\n", DefaultGoal)
	writeRuleLine(&buf, DefaultGoal, goals)

	for _, r := range rules {
		buf.WriteByte('\n')
		if d := oneLine(r.Description); d != "" {
			fmt.Fprintf(&buf, "# %s: %s\n", r.Stage, d)
		} else {
			fmt.Fprintf(&buf, "# %s\n", r.Stage)
		}
		writeRuleLine(&buf, r.Target, r.Prerequisites)
		for _, line := range recipeLines(r.Command) {
			buf.WriteByte('\t')
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

func writeRuleLine(buf *bytes.Buffer, target string, prereqs []string) {
	buf.WriteString(target)
	buf.WriteByte(':')
	for _, p := range prereqs {
		buf.WriteByte(' ')
		buf.WriteString(p)
	}
	buf.WriteByte('\n')
}

func needsOneShell(rules []Rule) bool {
	for _, r := range rules {
		if len(recipeLines(r.Command)) > 1 {
			return true
		}
	}
	return false
}

// recipeLines splits a command into escaped recipe lines, dropping blank ones.
func recipeLines(cmd string) []string {
	var out []string
	for _, line := range strings.Split(cmd, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, EscapeDollars(line))
	}
	return out
}

// EscapeDollars doubles every $ so make hands it to the shell unchanged.
func EscapeDollars(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
