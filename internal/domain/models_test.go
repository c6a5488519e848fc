package domain

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestItemKind(t *testing.T) {
	cases := []struct {
		ref  string
		want Kind
	}{
		{"magnet:?xt=urn:btih:abc", KindResolvable},
		{"MAGNET:?xt=urn:btih:abc", KindResolvable},
		{"  Magnet:?xt=urn:btih:abc", KindResolvable},
		{"https://example.com/file.torrent", KindDirect},
		{"mag", KindDirect},
		{"", KindDirect},
	}
	for _, tc := range cases {
		if got := (Item{SourceReference: tc.ref}).Kind(); got != tc.want {
			t.Errorf("Kind(%q) = %v, want %v", tc.ref, got, tc.want)
		}
	}
}

func TestFileNameReplacesSeparators(t *testing.T) {
	item := Item{Name: `[Group] Show/Episode\01`}
	if got := item.FileName(); got != "[Group] Show-Episode-01.torrent" {
		t.Fatalf("FileName = %q", got)
	}
}

func TestSanitizeNameIdempotentAndContained(t *testing.T) {
	names := []string{
		"",
		".",
		"..",
		"...",
		"../../etc/passwd",
		`..\..\windows`,
		"plain name",
		"a/b\\c",
		"/",
		"_",
	}
	root := filepath.FromSlash("/srv/out")
	for _, name := range names {
		once := SanitizeName(name)
		if twice := SanitizeName(once); twice != once {
			t.Errorf("SanitizeName not idempotent for %q: %q then %q", name, once, twice)
		}
		if strings.ContainsAny(once, `/\`) {
			t.Errorf("SanitizeName(%q) = %q contains a separator", name, once)
		}
		joined := filepath.Join(root, Item{Name: name}.FileName())
		if filepath.Dir(joined) != root {
			t.Errorf("file name for %q escapes output dir: %q", name, joined)
		}
	}
}
