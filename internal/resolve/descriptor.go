// Package resolve maps a catalog item to the concrete downloadable files it offers.
package resolve

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Descriptor is one downloadable rendition of an item.
type Descriptor struct {
	URL        string
	Title      string
	Format     string // container extension, e.g. mp4
	Resolution string // e.g. 720p, or "audio"
	Height     int
	Size       int64 // bytes, 0 when unknown
	Note       string
}

// FileName is the name a download of d is saved under.
func (d Descriptor) FileName() string {
	if d.Format == "" {
		return d.Title
	}
	return d.Title + "." + d.Format
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s %s", d.Resolution, d.Format)
}

// Resolver produces the descriptors available for an item reference.
type Resolver interface {
	Resolve(ctx context.Context, ref string) ([]Descriptor, error)
}

// Dedupe keeps the first descriptor of every (format, resolution) pair.
func Dedupe(ds []Descriptor) []Descriptor {
	type key struct{ format, resolution string }
	seen := make(map[key]bool)
	var out []Descriptor
	for _, d := range ds {
		k := key{d.Format, d.Resolution}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}

// Select picks a descriptor by preference: "best" (highest resolution), a
// resolution such as "720p", a format such as "mp4", or "format@resolution".
func Select(ds []Descriptor, pref string) (Descriptor, error) {
	if len(ds) == 0 {
		return Descriptor{}, fmt.Errorf("no formats available")
	}
	pref = strings.ToLower(strings.TrimSpace(pref))
	sorted := slices.Clone(ds)
	slices.SortStableFunc(sorted, func(a, b Descriptor) int { return b.Height - a.Height })
	if pref == "" || pref == "best" {
		return sorted[0], nil
	}
	if pref == "worst" {
		return sorted[len(sorted)-1], nil
	}
	format, resolution, both := strings.Cut(pref, "@")
	for _, d := range sorted {
		switch {
		case both && d.Format == format && strings.EqualFold(d.Resolution, resolution):
			return d, nil
		case !both && (strings.EqualFold(d.Resolution, pref) || d.Format == pref):
			return d, nil
		}
	}
	if idx, err := strconv.Atoi(pref); err == nil && idx >= 1 && idx <= len(ds) {
		return ds[idx-1], nil
	}
	return Descriptor{}, fmt.Errorf("no format matches %q", pref)
}
