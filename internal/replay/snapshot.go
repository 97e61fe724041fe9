/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package replay

import (
    "sort"
    "time"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/domain"
)

// IssueState is the materializer's view of one exported issue: identity,
// creation time and the reconstructed original value per tracked field.
type IssueState struct {
    ID        int64
    CreatedOn time.Time
    Original  map[string]string
}

// DayUTC truncates a timestamp to its calendar day, midnight UTC.
func DayUTC(t time.Time) time.Time {
    u := t.UTC()
    return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// chosen is the currently winning change for one field: the qualifying event
// with the greatest id seen so far.
type chosen struct {
    id       int64
    value    string
    occurred time.Time
}

type issueCursor struct {
    state   IssueState
    changes []domain.Change // sorted by occurred_on, then id (admission order)
    next    int
    cur     map[string]chosen
}

// Materialize forward-fills every tracked field of every issue across the
// day grid [start, end] (both midnight UTC, inclusive). The value at day d is
// the new value of the change with the greatest id among those with
// occurred_on within end of day d; with none, the reconstructed original.
// updated_on is the greatest occurred_on among the chosen events, else the
// issue's creation time. Rows come out day-ascending, then issue id
// descending, deterministically.
func Materialize(issues []IssueState, changes []domain.Change, start, end time.Time) []domain.SnapshotRow {
    if end.Before(start) { return nil }

    byIssue := map[int64][]domain.Change{}
    for _, c := range changes { byIssue[c.IssueID] = append(byIssue[c.IssueID], c) }

    cursors := make([]*issueCursor, 0, len(issues))
    for _, is := range issues {
        seq := byIssue[is.ID]
        sort.Slice(seq, func(i, j int) bool {
            if !seq[i].OccurredOn.Equal(seq[j].OccurredOn) { return seq[i].OccurredOn.Before(seq[j].OccurredOn) }
            return seq[i].ID < seq[j].ID
        })
        cursors = append(cursors, &issueCursor{state: is, changes: seq, cur: map[string]chosen{}})
    }
    // issue id descending matches the append order of the snapshot stream
    sort.Slice(cursors, func(i, j int) bool { return cursors[i].state.ID > cursors[j].state.ID })

    var rows []domain.SnapshotRow
    for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
        eod := day.AddDate(0, 0, 1)
        for _, ic := range cursors {
            // admit every change effective by end of this day
            for ic.next < len(ic.changes) && ic.changes[ic.next].OccurredOn.Before(eod) {
                c := ic.changes[ic.next]
                ic.next++
                if prev, ok := ic.cur[c.Field]; ok && prev.id > c.ID { continue }
                ic.cur[c.Field] = chosen{id: c.ID, value: c.NewValue, occurred: c.OccurredOn}
            }
            if DayUTC(ic.state.CreatedOn).After(day) { continue }

            fields := make(map[string]string, len(domain.TrackedFields))
            updated := ic.state.CreatedOn
            touched := false
            for _, f := range domain.TrackedFields {
                if ch, ok := ic.cur[f]; ok {
                    fields[f] = ch.value
                    if !touched || ch.occurred.After(updated) { updated = ch.occurred }
                    touched = true
                    continue
                }
                fields[f] = ic.state.Original[f]
            }
            if !touched { updated = ic.state.CreatedOn }
            rows = append(rows, domain.SnapshotRow{
                IssueID:   ic.state.ID,
                Day:       day,
                Fields:    fields,
                CreatedOn: ic.state.CreatedOn,
                UpdatedOn: updated,
            })
        }
    }
    return rows
}
