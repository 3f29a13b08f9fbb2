package img

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestInspectReportsDimensions(t *testing.T) {
	tmp := t.TempDir()
	srcPath := filepath.Join(tmp, "frame.png")
	createTestImage(t, srcPath, 400, 200)

	info, err := Inspect(srcPath)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if info.Width != 400 || info.Height != 200 {
		t.Fatalf("unexpected size: got %dx%d, want 400x200", info.Width, info.Height)
	}
	if info.Format != "PNG" {
		t.Fatalf("unexpected format: %s", info.Format)
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "broken.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := Inspect(path); !errors.Is(err, ErrUndecodable) {
		t.Fatalf("expected ErrUndecodable, got %v", err)
	}
}

func TestInspectRejectsUnknownExtension(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := Inspect(path); !errors.Is(err, ErrUndecodable) {
		t.Fatalf("expected ErrUndecodable, got %v", err)
	}
}

func createTestImage(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 40, G: 120, B: 60, A: 255})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		t.Fatalf("encode png: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}
