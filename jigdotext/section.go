// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package jigdotext

// SectionCursor walks a Document one section at a time, then one
// Label=Value line at a time within the current section -- the access
// pattern spec §4.4 describes as "next_section" / "next_label" rather than
// random access into the line vector.
type SectionCursor struct {
	doc       *Document
	pos       int // index of the current [Section] line, or -1 before the first
	labelLine int // index of the label line last returned by NextLabel
}

// NewSectionCursor returns a cursor positioned before the first section.
func NewSectionCursor(doc *Document) *SectionCursor {
	return &SectionCursor{doc: doc, pos: -1, labelLine: -1}
}

// NextSection advances to the next [Section] header, in document order,
// returning false once none remain. It resets the label cursor so the
// following NextLabel calls scan this section from its first line.
func (c *SectionCursor) NextSection() bool {
	for i := c.pos + 1; i < len(c.doc.Lines); i++ {
		if c.doc.Lines[i].Kind == LineSection {
			c.pos = i
			c.labelLine = i
			return true
		}
	}
	c.pos = len(c.doc.Lines)
	c.labelLine = c.pos
	return false
}

// NextSectionNamed advances to the next section whose name matches name
// exactly, skipping any sections in between.
func (c *SectionCursor) NextSectionNamed(name string) bool {
	for c.NextSection() {
		if c.SectionName() == name {
			return true
		}
	}
	return false
}

// SectionName returns the current section's name, or "" before the first
// call to NextSection.
func (c *SectionCursor) SectionName() string {
	if c.pos < 0 || c.pos >= len(c.doc.Lines) {
		return ""
	}
	return c.doc.Lines[c.pos].SectionName
}

// NextLabel advances within the current section to its next Label=Value
// line, returning false at the next [Section] header or end of document.
func (c *SectionCursor) NextLabel() bool {
	for c.labelLine++; c.labelLine < len(c.doc.Lines); c.labelLine++ {
		l := c.doc.Lines[c.labelLine]
		if l.Kind == LineSection {
			return false
		}
		if l.Kind == LineEntry {
			return true
		}
	}
	return false
}

// Label returns the current Label=Value line's label.
func (c *SectionCursor) Label() string {
	return c.doc.Lines[c.labelLine].Label
}

// Value returns the current Label=Value line's raw (still escaped/quoted)
// value.
func (c *SectionCursor) Value() string {
	return c.doc.Lines[c.labelLine].Value
}
