package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"subrank/internal/endpoint"
)

func testRecord(id string) *Record {
	return &Record{
		ID:             id,
		Name:           "feed",
		URL:            "https://example.com/feed",
		Enabled:        true,
		UpdateInterval: 3600,
		Configs: []*endpoint.Record{
			endpoint.Parse("vless://u@h:443#NodeA"),
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	rec := testRecord("abc123")
	rec.Configs[0].SuccessCount = 3
	rec.Configs[0].LastLatency = 210
	if err := dir.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := dir.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d records", len(loaded))
	}
	got := loaded[0]
	if got.ID != "abc123" || got.URL != rec.URL || got.UpdateInterval != 3600 {
		t.Errorf("record mismatch: %+v", got)
	}
	if len(got.Configs) != 1 || got.Configs[0].SuccessCount != 3 || got.Configs[0].LastLatency != 210 {
		t.Errorf("endpoint stats lost: %+v", got.Configs)
	}
}

func TestSaveRequiresID(t *testing.T) {
	dir, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Save(&Record{URL: "https://x"}); err == nil {
		t.Error("expected error for record without id")
	}
}

func TestPersistedFieldNames(t *testing.T) {
	dir, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Save(testRecord("f00")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir.Path(), "f00.json"))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"id", "name", "url", "enabled", "priority", "auto_update", "update_interval", "last_update_time", "configs"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing field %q in persisted record", key)
		}
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	dir, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Save(testRecord("gone")); err != nil {
		t.Fatal(err)
	}
	if err := dir.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := dir.Delete("gone"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if err := dir.Delete("never-existed"); err != nil {
		t.Errorf("Delete of missing record: %v", err)
	}
}

func TestLoadAllSkipsCorruptFiles(t *testing.T) {
	path := t.TempDir()
	dir, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.Save(testRecord("good")); err != nil {
		t.Fatal(err)
	}

	// A truncated write and a record missing its identity.
	os.WriteFile(filepath.Join(path, "corrupt.json"), []byte(`{"id":"x", "url`), 0644)
	os.WriteFile(filepath.Join(path, "empty.json"), []byte(`{}`), 0644)
	// Non-JSON files in the directory are ignored entirely.
	os.WriteFile(filepath.Join(path, "notes.txt"), []byte("hi"), 0644)

	loaded, err := dir.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "good" {
		t.Errorf("loaded = %+v, want only the good record", loaded)
	}
}
