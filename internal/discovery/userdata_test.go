package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMeasureFolders(t *testing.T) {
	docs := t.TempDir()
	if err := os.WriteFile(filepath.Join(docs, "a.txt"), make([]byte, 2*1024*1024), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(docs, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docs, "sub", "b.txt"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	locs, err := measureFolders(context.Background(), []userFolder{
		{"Documents", docs},
		{"Music", filepath.Join(docs, "missing")},
		{"ApplicationData", ""},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(locs) != 1 {
		t.Fatalf("got %d locations, want 1: %+v", len(locs), locs)
	}
	if locs[0].Type != "Documents" || locs[0].FileCount != 2 || locs[0].SizeMB != 2 {
		t.Errorf("location = %+v", locs[0])
	}
}
