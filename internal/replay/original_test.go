package replay

import (
    "testing"
    "time"

    "github.com/d6n13l0l1v3r/redmine2bigquery/internal/domain"
)

func TestOriginalValues_EarliestOldValueWins(t *testing.T) {
    live := map[string]string{
        domain.FieldStatus: "Closed", domain.FieldTracker: "Bug",
        domain.FieldProject: "Platform", domain.FieldPriority: "Normal",
        domain.FieldCategory: "", domain.FieldAssignedTo: "jdoe",
    }
    changes := []domain.Change{
        {ID: 20, Field: domain.FieldStatus, OldValue: "Open", NewValue: "Closed"},
        {ID: 10, Field: domain.FieldStatus, OldValue: "New", NewValue: "Open"},
    }
    orig := OriginalValues(live, changes)
    // id order, not slice order, decides which change is "earliest"
    if orig[domain.FieldStatus] != "New" {
        t.Fatalf("original status = %q, want New", orig[domain.FieldStatus])
    }
    // untouched fields keep the live value
    if orig[domain.FieldTracker] != "Bug" { t.Fatalf("original tracker = %q", orig[domain.FieldTracker]) }
}

func TestOriginalValues_CurrentValueNeverExportedForChangedField(t *testing.T) {
    live := map[string]string{domain.FieldStatus: "Closed"}
    changes := []domain.Change{{ID: 1, Field: domain.FieldStatus, OldValue: "Open", NewValue: "Closed"}}
    orig := OriginalValues(live, changes)
    if orig[domain.FieldStatus] != "Open" {
        t.Fatalf("exported status = %q, want the historical Open", orig[domain.FieldStatus])
    }
}

func TestOriginalValues_ResolutionNeedsNonEmptyOldValue(t *testing.T) {
    changes := []domain.Change{
        {ID: 5, Field: domain.FieldResolution, OldValue: "", NewValue: "Fixed"},
        {ID: 9, Field: domain.FieldResolution, OldValue: "Fixed", NewValue: "Won't fix"},
    }
    orig := OriginalValues(map[string]string{}, changes)
    // the id-5 change set resolution from nothing; it does not establish an
    // original, the id-9 change does
    if orig[domain.FieldResolution] != "Fixed" {
        t.Fatalf("original resolution = %q, want Fixed", orig[domain.FieldResolution])
    }

    orig = OriginalValues(map[string]string{}, changes[:1])
    if orig[domain.FieldResolution] != "" {
        t.Fatalf("resolution should be absent, got %q", orig[domain.FieldResolution])
    }
}

func TestOriginalValues_NoChangesNoLiveResolution(t *testing.T) {
    orig := OriginalValues(map[string]string{domain.FieldResolution: "should never be read"}, nil)
    if orig[domain.FieldResolution] != "" {
        t.Fatalf("resolution must never default from a live field")
    }
}

func TestDayUTC(t *testing.T) {
    loc := time.FixedZone("UTC+5", 5*3600)
    at := time.Date(2024, 3, 5, 2, 30, 0, 0, loc) // 2024-03-04 21:30 UTC
    if got := DayUTC(at); !got.Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)) {
        t.Fatalf("DayUTC = %v", got)
    }
}
