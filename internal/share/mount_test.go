package share

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveInputCreatesDirectories(t *testing.T) {
	root := filepath.Join(t.TempDir(), "share")
	m := New(root)

	got, err := m.SaveInput("uploads/photo.jpg", bytes.NewReader([]byte("pixels")))
	if err != nil {
		t.Fatalf("SaveInput returned error: %v", err)
	}
	want := filepath.Join(root, "images", "photo.jpg")
	if got != want {
		t.Fatalf("SaveInput path = %s, want %s", got, want)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "pixels" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestSaveInputMountUnavailable(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	m := New(blocker)
	_, err := m.SaveInput("photo.jpg", bytes.NewReader(nil))
	if !errors.Is(err, ErrMountUnavailable) {
		t.Fatalf("expected ErrMountUnavailable, got %v", err)
	}
}

func TestArtifactsPreservesRelativePaths(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"odm_orthophoto/odm_orthophoto.tif":        "tif",
		"odm_orthophoto/tiles/0/0.png":             "png",
		"odm_orthophoto/reports/nested/stats.json": "{}",
	}
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got, err := New(root).Artifacts("odm_orthophoto")
	if err != nil {
		t.Fatalf("Artifacts returned error: %v", err)
	}
	want := []string{"odm_orthophoto.tif", "reports/nested/stats.json", "tiles/0/0.png"}
	if len(got) != len(want) {
		t.Fatalf("expected %d artifacts, got %d", len(want), len(got))
	}
	for i, a := range got {
		if a.RelPath != want[i] {
			t.Fatalf("artifact %d = %s, want %s", i, a.RelPath, want[i])
		}
	}
	if got[0].Size != 3 {
		t.Fatalf("unexpected size for %s: %d", got[0].RelPath, got[0].Size)
	}
}

func TestArtifactsMissingDirectory(t *testing.T) {
	got, err := New(t.TempDir()).Artifacts("odm_orthophoto")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no artifacts, got %d", len(got))
	}
}
