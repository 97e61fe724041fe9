/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package decode

import (
    "encoding/base64"
    "strconv"
    "strings"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/domain"
)

// Redacted replaces every free-text value before it leaves the process.
// Subjects, descriptions and notes never travel verbatim.
const Redacted = "[redacted]"

// Property categories on journal detail rows.
const (
    PropAttr = "attr"
    PropCF   = "cf"
)

// attrAliases maps built-in attribute keys to canonical field names.
var attrAliases = map[string]string{
    "tracker_id":     domain.FieldTracker,
    "project_id":     domain.FieldProject,
    "priority_id":    domain.FieldPriority,
    "category_id":    domain.FieldCategory,
    "status_id":      domain.FieldStatus,
    "assigned_to_id": domain.FieldAssignedTo,
}

// freeText keys carry user prose and are redacted wholesale.
var freeText = map[string]struct{}{
    "subject": {}, "description": {}, "attachment": {}, "notes": {},
}

// Lookups holds the per-run label tables for lookup-coded fields.
type Lookups struct {
    Statuses   map[int64]string
    Trackers   map[int64]string
    Priorities map[int64]string
    Categories map[int64]string
    Projects   map[int64]string
    Users      map[int64]string
}

func (l Lookups) table(field string) map[int64]string {
    switch field {
    case domain.FieldStatus: return l.Statuses
    case domain.FieldTracker: return l.Trackers
    case domain.FieldPriority: return l.Priorities
    case domain.FieldCategory: return l.Categories
    case domain.FieldProject: return l.Projects
    case domain.FieldAssignedTo: return l.Users
    }
    return nil
}

// Label resolves a raw numeric value against a lookup table. A missing or
// non-numeric reference resolves to the empty label, never an error.
func (l Lookups) Label(field, raw string) string {
    t := l.table(field)
    if t == nil { return raw }
    if strings.TrimSpace(raw) == "" { return "" }
    id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
    if err != nil { return "" }
    return t[id]
}

type Decoder struct {
    lookups      Lookups
    resolutionID string // custom_fields id as a prop key, "" when not configured
    overrides    map[string]string
}

// New builds a decoder. resolutionID is the custom-field id resolved once per
// run by name; overrides extends the alias map (prop_key -> canonical name).
func New(lookups Lookups, resolutionID string, overrides map[string]string) *Decoder {
    return &Decoder{lookups: lookups, resolutionID: resolutionID, overrides: overrides}
}

// canonical maps a raw prop key to its canonical field name.
// Unrecognized keys pass through unchanged.
func (d *Decoder) canonical(property, key string) string {
    if property == PropCF && d.resolutionID != "" && key == d.resolutionID {
        return domain.FieldResolution
    }
    if v, ok := d.overrides[key]; ok { return v }
    if property == PropAttr {
        if v, ok := attrAliases[key]; ok { return v }
    }
    return key
}

// Decode normalizes one raw journal detail into a typed change event.
func (d *Decoder) Decode(rc domain.RawChange) domain.Change {
    field := d.canonical(rc.Property, rc.PropKey)
    oldV, newV := rc.OldValue, rc.NewValue
    if _, ok := freeText[rc.PropKey]; ok || rc.Property == "attachment" {
        if oldV != "" { oldV = Redacted }
        if newV != "" { newV = Redacted }
    } else if rc.Property == PropAttr {
        if d.lookups.table(field) != nil {
            oldV = d.lookups.Label(field, oldV)
            newV = d.lookups.Label(field, newV)
        }
    }
    return domain.Change{
        ID:         rc.ID,
        IssueID:    rc.IssueID,
        Actor:      d.lookups.Users[rc.ActorID],
        OccurredOn: rc.OccurredOn.UTC(),
        Property:   rc.Property,
        Field:      field,
        OldValue:   oldV,
        NewValue:   newV,
        HasNotes:   rc.HasNotes,
    }
}

// DecodeAll decodes a slice preserving order.
func (d *Decoder) DecodeAll(raws []domain.RawChange) []domain.Change {
    out := make([]domain.Change, 0, len(raws))
    for _, rc := range raws { out = append(out, d.Decode(rc)) }
    return out
}

// EncodeText transport-encodes a decoded text value. Empty values become an
// explicit absence marker (nil), never an empty encoded string.
func EncodeText(s string) *string {
    if s == "" { return nil }
    enc := base64.StdEncoding.EncodeToString([]byte(s))
    return &enc
}

// DecodeText reverses EncodeText at the sink boundary. Values that do not
// decode cleanly pass through as-is rather than failing the batch.
func DecodeText(p *string) string {
    if p == nil { return "" }
    b, err := base64.StdEncoding.DecodeString(*p)
    if err != nil { return *p }
    return string(b)
}
