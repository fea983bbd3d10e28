// Package subplan reads and writes subplans: saved, named subsets of the
// suite expressed as include and exclude test filters.
package subplan

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"

	"compatsuite/internal/filter"
)

// Version is written to the version attribute of serialized subplans.
const Version = "2.0"

var (
	// ErrParse is returned for malformed subplan documents.
	ErrParse = errors.New("subplan parse error")
	// ErrNotFound is returned when a named subplan does not exist.
	ErrNotFound = errors.New("subplan not found")
)

// SubPlan is a set of include and exclude filter strings.
type SubPlan struct {
	includes map[string]bool
	excludes map[string]bool
}

// New returns an empty subplan.
func New() *SubPlan {
	return &SubPlan{includes: map[string]bool{}, excludes: map[string]bool{}}
}

// AddInclude adds an include filter.
func (p *SubPlan) AddInclude(f string) { p.includes[f] = true }

// AddExclude adds an exclude filter.
func (p *SubPlan) AddExclude(f string) { p.excludes[f] = true }

// IncludeFilters returns the include filters in sorted order.
func (p *SubPlan) IncludeFilters() []string { return sortedKeys(p.includes) }

// ExcludeFilters returns the exclude filters in sorted order.
func (p *SubPlan) ExcludeFilters() []string { return sortedKeys(p.excludes) }

// Len returns the total number of entries.
func (p *SubPlan) Len() int { return len(p.includes) + len(p.excludes) }

// Clone returns a copy that shares no state with p.
func (p *SubPlan) Clone() *SubPlan {
	c := New()
	for f := range p.includes {
		c.includes[f] = true
	}
	for f := range p.excludes {
		c.excludes[f] = true
	}
	return c
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type xmlSubPlan struct {
	XMLName xml.Name   `xml:"SubPlan"`
	Version string     `xml:"version,attr"`
	Entries []xmlEntry `xml:"Entry"`
}

type xmlEntry struct {
	Include *string `xml:"include,attr,omitempty"`
	Exclude *string `xml:"exclude,attr,omitempty"`
}

// Parse reads a subplan document.
func Parse(r io.Reader) (*SubPlan, error) {
	var doc xmlSubPlan
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	p := New()
	for i, e := range doc.Entries {
		var (
			value string
			add   func(string)
		)
		switch {
		case e.Include != nil && e.Exclude != nil:
			return nil, fmt.Errorf("%w: entry %d has both include and exclude", ErrParse, i)
		case e.Include != nil:
			value, add = *e.Include, p.AddInclude
		case e.Exclude != nil:
			value, add = *e.Exclude, p.AddExclude
		default:
			return nil, fmt.Errorf("%w: entry %d has neither include nor exclude", ErrParse, i)
		}
		f, err := filter.ParseTestFilter(value)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrParse, i, err)
		}
		add(f.String())
	}
	return p, nil
}

// Serialize writes p as a subplan document with entries in sorted order.
func (p *SubPlan) Serialize(w io.Writer) error {
	doc := xmlSubPlan{Version: Version}
	for _, f := range p.IncludeFilters() {
		f := f
		doc.Entries = append(doc.Entries, xmlEntry{Include: &f})
	}
	for _, f := range p.ExcludeFilters() {
		f := f
		doc.Entries = append(doc.Entries, xmlEntry{Exclude: &f})
	}

	if _, err := io.WriteString(w, `<?xml version="1.0" encoding="UTF-8" standalone="no"?>`+"\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode subplan: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
