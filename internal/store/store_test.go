package store

import (
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/cropnet/internal/constraints"
	"github.com/danielpatrickdp/cropnet/internal/discretize"
	"github.com/danielpatrickdp/cropnet/internal/logging"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTable() discretize.Table {
	return discretize.Table{
		"tmean_w12": {18.5, 21.0},
		"yield":     {6.2, 7.9},
	}
}

func TestGetActive_Empty(t *testing.T) {
	s := tempDB(t)

	_, err := s.GetActiveThresholds()
	if !errors.Is(err, ErrNoActiveThresholds) {
		t.Fatalf("expected ErrNoActiveThresholds, got %v", err)
	}
}

func TestSaveAndGetActive(t *testing.T) {
	s := tempDB(t)

	rec, err := s.SaveThresholds(sampleTable(), 3, "weather.csv")
	if err != nil {
		t.Fatalf("SaveThresholds: %v", err)
	}
	if rec.VersionID == "" {
		t.Fatal("expected non-empty version ID")
	}
	if rec.ParentID != "" {
		t.Fatalf("expected empty parent, got %s", rec.ParentID)
	}

	cur, err := s.GetActiveThresholds()
	if err != nil {
		t.Fatalf("GetActiveThresholds: %v", err)
	}
	if cur.VersionID != rec.VersionID {
		t.Fatalf("expected %s, got %s", rec.VersionID, cur.VersionID)
	}
	if cur.Buckets != 3 || cur.Source != "weather.csv" {
		t.Errorf("unexpected metadata: buckets=%d source=%q", cur.Buckets, cur.Source)
	}
	if got := cur.Table["yield"]; len(got) != 2 || got[0] != 6.2 || got[1] != 7.9 {
		t.Errorf("unexpected yield thresholds: %v", got)
	}
}

func TestSaveThresholds_Invalid(t *testing.T) {
	s := tempDB(t)

	_, err := s.SaveThresholds(discretize.Table{"x": {2, 1}}, 3, "")
	if !errors.Is(err, discretize.ErrInvalidThresholds) {
		t.Fatalf("expected ErrInvalidThresholds, got %v", err)
	}
	if _, err := s.GetActiveThresholds(); !errors.Is(err, ErrNoActiveThresholds) {
		t.Fatalf("invalid table must not become active, got %v", err)
	}
}

func TestSaveParentsAndActivate(t *testing.T) {
	s := tempDB(t)

	v1, err := s.SaveThresholds(sampleTable(), 3, "")
	if err != nil {
		t.Fatalf("save v1: %v", err)
	}
	v2, err := s.SaveThresholds(discretize.Table{"yield": {5.0}}, 2, "")
	if err != nil {
		t.Fatalf("save v2: %v", err)
	}
	if v2.ParentID != v1.VersionID {
		t.Fatalf("expected parent %s, got %s", v1.VersionID, v2.ParentID)
	}

	cur, _ := s.GetActiveThresholds()
	if cur.VersionID != v2.VersionID {
		t.Fatalf("expected v2 active, got %s", cur.VersionID)
	}

	if err := s.Activate(v1.VersionID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	cur, _ = s.GetActiveThresholds()
	if cur.VersionID != v1.VersionID {
		t.Fatalf("after rollback expected %s, got %s", v1.VersionID, cur.VersionID)
	}
	if cur.Table.Buckets("tmean_w12") != 3 {
		t.Errorf("expected 3 buckets after rollback, got %d", cur.Table.Buckets("tmean_w12"))
	}
}

func TestActivate_NotFound(t *testing.T) {
	s := tempDB(t)

	if err := s.Activate("nonexistent"); err == nil {
		t.Fatal("expected error activating nonexistent version")
	}
}

func TestListThresholds(t *testing.T) {
	s := tempDB(t)

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := s.SaveThresholds(sampleTable(), 3, "")
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		ids = append(ids, rec.VersionID)
	}

	list, err := s.ListThresholds(2)
	if err != nil {
		t.Fatalf("ListThresholds: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(list))
	}
	if list[0].VersionID != ids[2] || list[1].VersionID != ids[1] {
		t.Errorf("expected newest first, got %s, %s", list[0].VersionID, list[1].VersionID)
	}
}

func TestGetThresholds_NotFound(t *testing.T) {
	s := tempDB(t)

	if _, err := s.GetThresholds("missing"); err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestConstraintsFor_Caches(t *testing.T) {
	s := tempDB(t)
	gen := constraints.NewGenerator()
	m := constraints.StageMap{"tmean_w12": 0, "ndvi_w20": 1, "yield": 2}

	first, cached, err := s.ConstraintsFor(m, gen)
	if err != nil {
		t.Fatalf("ConstraintsFor: %v", err)
	}
	if cached {
		t.Fatal("first call must generate")
	}

	second, cached, err := s.ConstraintsFor(m, gen)
	if err != nil {
		t.Fatalf("ConstraintsFor: %v", err)
	}
	if !cached {
		t.Fatal("second call must hit the cache")
	}
	if len(second.Edges) != len(first.Edges) {
		t.Fatalf("expected %d edges, got %d", len(first.Edges), len(second.Edges))
	}
	if !second.Forbids("yield", "tmean_w12") {
		t.Error("cached set lost lookback edge yield -> tmean_w12")
	}
	if second.Forbids("tmean_w12", "ndvi_w20") {
		t.Error("cached set forbids allowed edge tmean_w12 -> ndvi_w20")
	}
}

func TestConstraintsFor_MappingChange(t *testing.T) {
	s := tempDB(t)
	gen := constraints.NewGenerator()

	if _, _, err := s.ConstraintsFor(constraints.StageMap{"a": 0, "b": 1}, gen); err != nil {
		t.Fatalf("ConstraintsFor: %v", err)
	}
	set, cached, err := s.ConstraintsFor(constraints.StageMap{"a": 0, "b": 1, "c": 2}, gen)
	if err != nil {
		t.Fatalf("ConstraintsFor: %v", err)
	}
	if cached {
		t.Fatal("changed mapping must regenerate")
	}
	if len(set.Variables) != 3 {
		t.Errorf("expected 3 variables, got %d", len(set.Variables))
	}

	// different markers, same mapping
	if _, cached, _ := s.ConstraintsFor(constraints.StageMap{"a": 0, "b": 1}, constraints.NewGenerator("a")); cached {
		t.Error("changed markers must regenerate")
	}

	list, err := s.ListConstraints(10)
	if err != nil {
		t.Fatalf("ListConstraints: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 cached sets, got %d", len(list))
	}
}

func TestGetConstraints_Miss(t *testing.T) {
	s := tempDB(t)

	_, ok, err := s.GetConstraints(constraints.StageMap{"a": 0}, nil)
	if err != nil {
		t.Fatalf("GetConstraints: %v", err)
	}
	if ok {
		t.Fatal("expected cache miss")
	}
}

func TestInferenceLog(t *testing.T) {
	s := tempDB(t)

	err := s.LogInference(logging.InferenceEntry{
		RequestID:   "req-1",
		Method:      "query",
		Target:      "yield",
		RequestJSON: `{"method":"query"}`,
	})
	if err != nil {
		t.Fatalf("LogInference: %v", err)
	}

	entries, err := s.ListInferences(10)
	if err != nil {
		t.Fatalf("ListInferences: %v", err)
	}
	if len(entries) != 1 || entries[0].RequestID != "req-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
