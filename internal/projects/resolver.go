/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package projects

import "strings"

// AllProjects is the sentinel id meaning "no project filter".
const AllProjects int64 = 0

// Project is one row of the project directory.
type Project struct {
    ID       int64
    Name     string
    ParentID int64 // 0 when top-level
}

// Set is a closed set of project ids.
type Set map[int64]struct{}

func (s Set) Has(id int64) bool { _, ok := s[id]; return ok }

// Unfiltered reports whether the set carries the "all projects" sentinel.
func (s Set) Unfiltered() bool { return s.Has(AllProjects) }

// IDs returns the member ids in unspecified order.
func (s Set) IDs() []int64 {
    out := make([]int64, 0, len(s))
    for id := range s { out = append(out, id) }
    return out
}

// Resolve expands include/exclude name lists into the effective project set:
// closure(includes) minus closure(excludes), unioned with the sentinel when
// the include list is empty. Unknown names resolve to nothing, not an error.
func Resolve(dir []Project, include, exclude []string) Set {
    incl := Closure(dir, seed(dir, include))
    excl := Closure(dir, seed(dir, exclude))
    eff := Set{}
    for id := range incl {
        if !excl.Has(id) { eff[id] = struct{}{} }
    }
    if len(include) == 0 { eff[AllProjects] = struct{}{} }
    return eff
}

// seed matches names (case-insensitive) against the directory.
func seed(dir []Project, names []string) Set {
    s := Set{}
    if len(names) == 0 { return s }
    wanted := map[string]struct{}{}
    for _, n := range names {
        n = strings.ToLower(strings.TrimSpace(n))
        if n != "" { wanted[n] = struct{}{} }
    }
    for _, p := range dir {
        if _, ok := wanted[strings.ToLower(p.Name)]; ok { s[p.ID] = struct{}{} }
    }
    return s
}

// Closure unions in every parent and child of any member until no id is
// added. Re-applying it to a closed set yields the same set.
func Closure(dir []Project, start Set) Set {
    out := Set{}
    for id := range start { out[id] = struct{}{} }
    for {
        added := false
        for _, p := range dir {
            if out.Has(p.ID) && p.ParentID != 0 && !out.Has(p.ParentID) {
                out[p.ParentID] = struct{}{}
                added = true
            }
            if p.ParentID != 0 && out.Has(p.ParentID) && !out.Has(p.ID) {
                out[p.ID] = struct{}{}
                added = true
            }
        }
        if !added { break }
    }
    return out
}
