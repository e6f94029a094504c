package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWithinDir(t *testing.T) {
	tmpDir := t.TempDir()

	out := filepath.Join(tmpDir, "out")
	elsewhere := filepath.Join(tmpDir, "elsewhere")
	for _, d := range []string{out, elsewhere} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	if err := os.WriteFile(filepath.Join(elsewhere, "regions.shp"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// A stale output replaced by a symlink must not redirect writes.
	if err := os.Symlink(filepath.Join(elsewhere, "regions.shp"), filepath.Join(out, "regions.shp")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(elsewhere, filepath.Join(out, "linked")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"plain output", filepath.Join(out, "dem_filled.asc"), false},
		{"not yet created subdirectory", filepath.Join(out, "a", "b", "depth.asc"), false},
		{"directory itself", out, false},
		{"dot dot", filepath.Join(out, "..", "dem.asc"), true},
		{"sibling with shared prefix", out + "-old/dem.asc", true},
		{"symlinked file", filepath.Join(out, "regions.shp"), true},
		{"symlinked directory", filepath.Join(out, "linked", "dep_id.shp"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDir(tt.path, out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("WithinDir(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrPathEscape) {
				t.Errorf("error %v does not wrap ErrPathEscape", err)
			}
		})
	}
}

func TestWithinDir_Relative(t *testing.T) {
	if err := WithinDir("out/depth.asc", "out"); err != nil {
		t.Errorf("relative path: %v", err)
	}
	if err := WithinDir("depth.asc", "out"); !errors.Is(err, ErrPathEscape) {
		t.Errorf("expected escape, got %v", err)
	}
}
