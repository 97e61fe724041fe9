package projects

import "testing"

// fixture: Platform(1) > API(2) > Gateway(4); Platform(1) > Web(3); Legacy(5)
func dir() []Project {
    return []Project{
        {ID: 1, Name: "Platform"},
        {ID: 2, Name: "API", ParentID: 1},
        {ID: 3, Name: "Web", ParentID: 1},
        {ID: 4, Name: "Gateway", ParentID: 2},
        {ID: 5, Name: "Legacy"},
    }
}

func TestResolve_IncludeExpandsWholeHierarchy(t *testing.T) {
    s := Resolve(dir(), []string{"API"}, nil)
    for _, id := range []int64{1, 2, 3, 4} {
        if !s.Has(id) { t.Fatalf("closure missing %d: %v", id, s.IDs()) }
    }
    if s.Has(5) { t.Fatalf("unrelated project included") }
    if s.Unfiltered() { t.Fatalf("sentinel must not appear with a non-empty include list") }
}

func TestResolve_ExcludeSubtractsClosure(t *testing.T) {
    s := Resolve(dir(), []string{"Platform", "Legacy"}, []string{"Gateway"})
    // Gateway's closure reaches up to Platform and back down, removing the
    // whole hierarchy; only Legacy survives.
    if !s.Has(5) { t.Fatalf("Legacy should survive: %v", s.IDs()) }
    for _, id := range []int64{1, 2, 3, 4} {
        if s.Has(id) { t.Fatalf("excluded closure member %d still present", id) }
    }
}

func TestResolve_EmptyIncludeYieldsSentinel(t *testing.T) {
    s := Resolve(dir(), nil, nil)
    if !s.Unfiltered() { t.Fatalf("empty include list must union the sentinel") }
}

func TestResolve_UnknownNamesFailSoft(t *testing.T) {
    s := Resolve(dir(), []string{"NoSuchProject"}, nil)
    if len(s) != 0 { t.Fatalf("unknown include should yield an empty closure, got %v", s.IDs()) }
}

func TestClosure_Idempotent(t *testing.T) {
    d := dir()
    once := Closure(d, Set{2: {}})
    twice := Closure(d, once)
    if len(once) != len(twice) { t.Fatalf("closure not idempotent: %v vs %v", once.IDs(), twice.IDs()) }
    for id := range once {
        if !twice.Has(id) { t.Fatalf("closure lost %d on re-application", id) }
    }
}

func TestResolve_CaseInsensitiveNames(t *testing.T) {
    s := Resolve(dir(), []string{" platform "}, nil)
    if !s.Has(1) { t.Fatalf("name matching should trim and ignore case") }
}
