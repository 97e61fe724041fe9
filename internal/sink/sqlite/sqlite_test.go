package sqlite

import (
    "context"
    "path/filepath"
    "testing"
    "time"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/decode"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/domain"
    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/sink"
    "github.com/rs/zerolog"
)

func openTest(t *testing.T) *Sink {
    t.Helper()
    s, err := Open(context.Background(), filepath.Join(t.TempDir(), "export.db"), zerolog.Nop())
    if err != nil { t.Fatal(err) }
    t.Cleanup(func() { s.Close() })
    return s
}

func TestMaxID_EmptyStreamIsZero(t *testing.T) {
    s := openTest(t)
    for _, stream := range []domain.Stream{domain.StreamIssues, domain.StreamChanges} {
        id, err := s.MaxID(context.Background(), stream)
        if err != nil { t.Fatal(err) }
        if id != 0 { t.Fatalf("%s max id = %d, want 0", stream, id) }
    }
}

func TestAppendChanges_CursorDerivesFromCommittedRows(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    at := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
    rows := []sink.ChangeRow{
        {ID: 3, IssueID: 1, OccurredOn: at, Property: "attr", Field: "status",
            NewValue: decode.EncodeText("Active"), Actor: decode.EncodeText("jdoe")},
        {ID: 9, IssueID: 1, OccurredOn: at, Property: "attr", Field: "status",
            NewValue: decode.EncodeText("Closed")},
    }
    if err := s.AppendChanges(ctx, rows); err != nil { t.Fatal(err) }

    id, err := s.MaxID(ctx, domain.StreamChanges)
    if err != nil { t.Fatal(err) }
    if id != 9 { t.Fatalf("max id = %d, want 9", id) }

    got, err := s.LoadChanges(ctx)
    if err != nil { t.Fatal(err) }
    if len(got) != 2 { t.Fatalf("rows = %d", len(got)) }
    // values come back decoded, nil values as empty strings
    if got[0].NewValue != "Active" { t.Fatalf("new_value = %q", got[0].NewValue) }
    if !got[0].OccurredOn.Equal(at) { t.Fatalf("occurred_on = %v", got[0].OccurredOn) }
}

func TestAppendIssues_RoundTrip(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    created := time.Date(2024, 2, 28, 9, 30, 0, 0, time.UTC)
    due := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
    err := s.AppendIssues(ctx, []sink.IssueRow{{
        ID:        7,
        Tracker:   decode.EncodeText("Bug"),
        Project:   decode.EncodeText("Platform"),
        Status:    decode.EncodeText("New"),
        CreatedOn: created,
        DueDate:   &due,
    }})
    if err != nil { t.Fatal(err) }

    got, err := s.LoadIssues(ctx)
    if err != nil { t.Fatal(err) }
    if len(got) != 1 || got[0].ID != 7 { t.Fatalf("issues = %+v", got) }
    if got[0].Fields[domain.FieldTracker] != "Bug" { t.Fatalf("tracker = %q", got[0].Fields[domain.FieldTracker]) }
    // absent values read back as empty, not as a decode error
    if got[0].Fields[domain.FieldResolution] != "" { t.Fatalf("resolution = %q", got[0].Fields[domain.FieldResolution]) }
    if !got[0].CreatedOn.Equal(created) { t.Fatalf("created_on = %v", got[0].CreatedOn) }

    day, ok, err := s.EarliestIssueDay(ctx)
    if err != nil || !ok { t.Fatalf("earliest day: %v %v", ok, err) }
    if !day.Equal(created) { t.Fatalf("earliest = %v", day) }
}

func TestSnapshots_LastDayTracksAppends(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()

    if _, ok, err := s.LastSnapshotDay(ctx); err != nil || ok {
        t.Fatalf("empty sink must report no snapshot day (ok=%v err=%v)", ok, err)
    }

    d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
    d2 := d1.AddDate(0, 0, 1)
    created := d1.Add(8 * time.Hour)
    rows := []domain.SnapshotRow{
        {IssueID: 1, Day: d1, Fields: map[string]string{domain.FieldStatus: "New"}, CreatedOn: created, UpdatedOn: created},
        {IssueID: 1, Day: d2, Fields: map[string]string{domain.FieldStatus: "Active"}, CreatedOn: created, UpdatedOn: created},
    }
    if err := s.AppendSnapshots(ctx, rows); err != nil { t.Fatal(err) }

    day, ok, err := s.LastSnapshotDay(ctx)
    if err != nil || !ok { t.Fatalf("last day: %v %v", ok, err) }
    if !day.Equal(d2) { t.Fatalf("last day = %v, want %v", day, d2) }
}

func TestAppendEmptyBatchesCommit(t *testing.T) {
    s := openTest(t)
    ctx := context.Background()
    if err := s.AppendIssues(ctx, nil); err != nil { t.Fatal(err) }
    if err := s.AppendChanges(ctx, nil); err != nil { t.Fatal(err) }
    if err := s.AppendSnapshots(ctx, nil); err != nil { t.Fatal(err) }
}
