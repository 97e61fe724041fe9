/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package replay

import (
    "sort"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/domain"
)

// OriginalValues reconstructs the "as created" value of every tracked field
// for one issue. The earliest change (ascending id) touching a field holds
// the field's original in its old value; a field never touched keeps the
// live value. Resolution only counts changes with a non-empty old value and
// never falls back to a live column, since it has none.
func OriginalValues(live map[string]string, changes []domain.Change) map[string]string {
    sorted := make([]domain.Change, len(changes))
    copy(sorted, changes)
    sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

    out := map[string]string{}
    for _, f := range domain.TrackedFields {
        found := false
        for _, c := range sorted {
            if c.Field != f { continue }
            if f == domain.FieldResolution && c.OldValue == "" { continue }
            out[f] = c.OldValue
            found = true
            break
        }
        if found { continue }
        if f == domain.FieldResolution {
            out[f] = ""
            continue
        }
        out[f] = live[f]
    }
    return out
}
