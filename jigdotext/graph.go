// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package jigdotext

import (
	"fmt"
	"sort"

	"github.com/jigdo-go/jigdo/jigdoerr"
)

// serverMapping is one alternative expansion for a label: either a literal
// URL fragment (PrependLabel == "") or a fragment to append to every
// expansion of PrependLabel.
type serverMapping struct {
	label        string
	prependLabel string
	fragment     string
	weight       float64
}

// partMapping records the Label:path a [Parts] entry requests for a given
// MD5, e.g. "<md5>=Label:sub/dir/file.iso" under [Parts].
type partMapping struct {
	md5   [16]byte
	label string
	path  string
}

// Graph is the [Servers]/[Parts] substitution graph: a set of named label
// alternatives, each either terminal (a literal URL prefix) or a pointer to
// another label plus a literal suffix, per spec §4.4. It is built
// incrementally via AddServer/AddPart and queried with URLsForMD5.
type Graph struct {
	servers map[string][]*serverMapping
	parts   map[[16]byte][]partMapping
	serial  int // monotonic counter, used to derive a small per-mapping jitter
}

// NewGraph returns an empty substitution graph.
func NewGraph() *Graph {
	return &Graph{
		servers: make(map[string][]*serverMapping),
		parts:   make(map[[16]byte][]partMapping),
	}
}

// AddServer adds one [Servers] alternative for label. value is the raw
// Entry.Value from the "Label=value" line, already split off the section;
// it is either a scheme-qualified literal ("http://host/path/") or a
// "OtherLabel:suffix" reference. AddServer rejects a value that would
// create a cycle among label expansions, leaving the graph unchanged.
func (g *Graph) AddServer(label, value string) error {
	prepend, fragment := splitServerValue(value)

	if prepend != "" && g.wouldCycle(label, prepend) {
		return jigdoerr.New(jigdoerr.Configuration, fmt.Sprintf("[Servers] entry for %q would create a substitution cycle through %q", label, prepend))
	}

	g.serial++
	m := &serverMapping{
		label:        label,
		prependLabel: prepend,
		fragment:     fragment,
		weight:       jitter(g.serial),
	}
	g.servers[label] = append(g.servers[label], m)
	return nil
}

// splitServerValue recognizes a scheme-qualified literal (contains "://"
// before any unescaped colon used as a label separator) versus a
// "Label:suffix" reference.
func splitServerValue(value string) (prependLabel, fragment string) {
	fields := SplitValue(value, ':')
	if len(fields) == 1 {
		return "", fields[0]
	}
	// A scheme like "http" followed by "//host..." looks like two fields
	// split on the first colon; treat it as literal if the remainder
	// starts with "//" once rejoined, matching common .jigdo usage.
	if len(fields) >= 2 && len(fields[1]) >= 2 && fields[1][0] == '/' && fields[1][1] == '/' {
		return "", Unescape(value)
	}
	return fields[0], joinRest(fields[1:], ':')
}

func joinRest(fields []string, sep byte) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += string(sep)
		}
		out += f
	}
	return out
}

// jitter derives a small deterministic pseudo-weight in [-1/32, 1/32) from
// a monotonic counter, used only to break ties between otherwise-equal
// alternatives in a stable, reproducible way (spec §4.4 leaves the exact
// tie-break unspecified).
func jitter(serial int) float64 {
	h := uint32(serial) * 2654435761
	return float64(int32(h%64)-32) / 1024
}

// wouldCycle reports whether adding an edge label -> prepend would make
// label reachable from itself by walking prependLabel chains.
func (g *Graph) wouldCycle(label, prepend string) bool {
	visited := make(map[string]bool)
	var walk func(l string) bool
	walk = func(l string) bool {
		if l == label {
			return true
		}
		if visited[l] {
			return false
		}
		visited[l] = true
		for _, m := range g.servers[l] {
			if m.prependLabel != "" && walk(m.prependLabel) {
				return true
			}
		}
		return false
	}
	return walk(prepend)
}

// AddPart records that MD5 may be fetched by expanding label and appending
// path, per a "[Parts]" entry "md5hex=Label:relative/path".
func (g *Graph) AddPart(md5 [16]byte, label, path string) {
	g.parts[md5] = append(g.parts[md5], partMapping{md5: md5, label: label, path: path})
}

// candidate is one fully-expanded URL together with its accumulated score.
type candidate struct {
	url   string
	score float64
}

const maxExpansionDepth = 32

// expand enumerates every complete expansion of label, depth-first, giving
// up past maxExpansionDepth (a cycle that slipped past AddServer's check,
// or a pathologically deep chain).
func (g *Graph) expand(label string, depth int) []candidate {
	if depth > maxExpansionDepth {
		return nil
	}
	var out []candidate
	for _, m := range g.servers[label] {
		if m.prependLabel == "" {
			out = append(out, candidate{url: m.fragment, score: m.weight})
			continue
		}
		for _, sub := range g.expand(m.prependLabel, depth+1) {
			out = append(out, candidate{
				url:   sub.url + m.fragment,
				score: sub.score + m.weight,
			})
		}
	}
	return out
}

// URLsForMD5 returns every URL by which the content with the given MD5 can
// be fetched, in decreasing preference order. preferFirst and preferLast
// bias the ordering toward or away from labels named in those lists
// (--try-first/--try-last), matching spec §4.4's enumeration contract.
func (g *Graph) URLsForMD5(md5 [16]byte, preferFirst, preferLast []string) []string {
	var cands []candidate
	for _, pm := range g.parts[md5] {
		for _, sub := range g.expand(pm.label, 0) {
			cands = append(cands, candidate{
				url:   sub.url + pm.path,
				score: sub.score + labelBias(pm.label, preferFirst, preferLast),
			})
		}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	seen := make(map[string]bool, len(cands))
	urls := make([]string, 0, len(cands))
	for _, c := range cands {
		if seen[c.url] {
			continue
		}
		seen[c.url] = true
		urls = append(urls, c.url)
	}
	return urls
}

func labelBias(label string, first, last []string) float64 {
	for _, l := range first {
		if l == label {
			return 1000
		}
	}
	for _, l := range last {
		if l == label {
			return -1000
		}
	}
	return 0
}

// URLIterator returns a stateful closure over URLsForMD5's result that
// yields one URL per call in order, and "" once exhausted -- the shape
// spec §4.4 describes for driving a fetch-and-retry loop.
func URLIterator(urls []string) func() string {
	i := 0
	return func() string {
		if i >= len(urls) {
			return ""
		}
		u := urls[i]
		i++
		return u
	}
}
