package fragment

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "manifest.json"), `{"reportId":"r"}`)
	writeFile(t, filepath.Join(dir, "010-intro.json"), `{"chapterId":"intro","title":"Intro","blocks":[]}`)
	writeFile(t, filepath.Join(dir, "020-body.yaml"), "chapterId: body\ntitle: Body\nblocks: []\n")
	writeFile(t, filepath.Join(dir, "030-notes.md"), "# Notes\n\nSome notes.\n")
	writeFile(t, filepath.Join(dir, "040-extra", "chapter.json"), `{"chapterId":"extra","title":"Extra","blocks":[]}`)
	writeFile(t, filepath.Join(dir, "readme.txt"), "not a fragment")
	writeFile(t, filepath.Join(dir, ".hidden.json"), `{"chapterId":"hidden"}`)
	writeFile(t, filepath.Join(dir, ".cache", "x.json"), `{"chapterId":"cached"}`)
	writeFile(t, filepath.Join(dir, "050-broken.json"), `{"chapterId":`)
	writeFile(t, filepath.Join(dir, "060-array.json"), `[1,2,3]`)

	frags, err := NewStore(quietLogger()).Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"intro", "body", "030-notes", "extra"}
	if len(frags) != len(want) {
		ids := make([]string, len(frags))
		for i, f := range frags {
			ids[i] = f.ChapterID()
		}
		t.Fatalf("expected %d fragments, got %d: %v", len(want), len(frags), ids)
	}
	for i, w := range want {
		if frags[i].ChapterID() != w {
			t.Errorf("fragment %d: expected %q, got %q", i, w, frags[i].ChapterID())
		}
	}
	if frags[2].Data["title"] != "Notes" {
		t.Errorf("expected markdown title %q, got %v", "Notes", frags[2].Data["title"])
	}
}

func TestStore_NestedManifestIsAFragment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub", "manifest.json"), `{"chapterId":"nested","title":"N","blocks":[]}`)

	frags, err := NewStore(quietLogger()).Load(dir + string(filepath.Separator))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frags) != 1 || frags[0].ChapterID() != "nested" {
		t.Errorf("expected the nested file to load, got %v", frags)
	}
}

func TestStore_SymlinkedRunDir(t *testing.T) {
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "manifest.json"), `{"reportId":"r"}`)
	writeFile(t, filepath.Join(target, "010-intro.json"), `{"chapterId":"intro","title":"Intro","blocks":[]}`)
	writeFile(t, filepath.Join(target, "sub", "020-body.json"), `{"chapterId":"body","title":"Body","blocks":[]}`)

	link := filepath.Join(t.TempDir(), "run-linked")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	frags, err := NewStore(quietLogger()).Load(link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments through the link, got %d", len(frags))
	}
	if frags[0].ChapterID() != "intro" || frags[1].ChapterID() != "body" {
		t.Errorf("unexpected order %q, %q", frags[0].ChapterID(), frags[1].ChapterID())
	}
	if want := filepath.Join(link, "sub", "020-body.json"); frags[1].Source != want {
		t.Errorf("expected source %q, got %q", want, frags[1].Source)
	}
}

func TestStore_EmptyAndMissing(t *testing.T) {
	s := NewStore(nil)

	frags, err := s.Load(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frags) != 0 {
		t.Errorf("expected no fragments, got %d", len(frags))
	}

	if _, err := s.Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestFragment_ChapterIDFallback(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"present", map[string]any{"chapterId": "c1"}, "c1"},
		{"missing", map[string]any{}, "unknown"},
		{"blank", map[string]any{"chapterId": "  "}, "unknown"},
		{"wrong type", map[string]any{"chapterId": 3.0}, "unknown"},
		{"nil data", nil, "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := (Fragment{Data: tc.data}).ChapterID(); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestForFile(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"a.json", false},
		{"a.YAML", false},
		{"a.yml", false},
		{"a.md", false},
		{"a.markdown", false},
		{"a.txt", true},
		{"noext", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ForFile(tc.name)
			if (err != nil) != tc.wantErr {
				t.Errorf("ForFile(%q) error = %v, wantErr %v", tc.name, err, tc.wantErr)
			}
			if IsSupportedExtension(tc.name) == tc.wantErr {
				t.Errorf("IsSupportedExtension(%q) disagrees with ForFile", tc.name)
			}
		})
	}
}
