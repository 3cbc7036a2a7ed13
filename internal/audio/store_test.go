package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

func testStore(t *testing.T, maxAge time.Duration) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), maxAge, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return store
}

func TestFileStore_SaveWritesValidWAV(t *testing.T) {
	store := testStore(t, 24*time.Hour)

	data := EncodeSamples(constantFrame(1000, 2400))
	capturedAt := time.Unix(1700000000, 0)

	path, err := store.Save(data, 24000, 1, capturedAt)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	wantName := fmt.Sprintf("voice_input_%d.wav", capturedAt.Unix())
	if filepath.Base(path) != wantName {
		t.Errorf("Expected file name %s, got %s", wantName, filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Cannot open saved file: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		t.Fatal("Saved file is not a valid WAV")
	}
	if dec.SampleRate != 24000 {
		t.Errorf("Expected sample rate 24000, got %d", dec.SampleRate)
	}
	if dec.NumChans != 1 {
		t.Errorf("Expected mono, got %d channels", dec.NumChans)
	}
	if dec.BitDepth != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", dec.BitDepth)
	}
}

func TestFileStore_SaveRejectsEmptyRecording(t *testing.T) {
	store := testStore(t, 24*time.Hour)
	if _, err := store.Save(nil, 24000, 1, time.Now()); err == nil {
		t.Error("Expected saving an empty recording to fail")
	}
}

func TestFileStore_SweepRemovesOldFiles(t *testing.T) {
	store := testStore(t, 24*time.Hour)

	data := EncodeSamples(constantFrame(1000, 240))
	oldPath, err := store.Save(data, 24000, 1, time.Unix(1600000000, 0))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	newPath, err := store.Save(data, 24000, 1, time.Unix(1600000001, 0))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Age one file past the 24h window
	old := time.Now().Add(-25 * time.Hour)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	removed, err := store.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 file removed, got %d", removed)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("Expected aged file to be deleted")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Errorf("Expected fresh file to be retained: %v", err)
	}
}

func TestFileStore_SweepEmptyDirIsNoOp(t *testing.T) {
	store := testStore(t, 24*time.Hour)

	removed, err := store.Sweep()
	if err != nil {
		t.Fatalf("Sweep on empty dir failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("Expected no files removed, got %d", removed)
	}
}

func TestFileStore_SweepIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, 24*time.Hour, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(other, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	if _, err := store.Sweep(); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("Expected non-WAV file to be retained")
	}
}

func TestFileStore_RemoveRejectsOutsidePaths(t *testing.T) {
	store := testStore(t, 24*time.Hour)
	if err := store.Remove("/etc/passwd"); err == nil {
		t.Error("Expected Remove outside the temp dir to fail")
	}
}
