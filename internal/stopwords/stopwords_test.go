package stopwords

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestEnglish(t *testing.T) {
	en := English()
	if en.Len() != 179 {
		t.Errorf("Len = %d, want 179", en.Len())
	}
	for _, w := range []string{"the", "and", "don't", "wouldn't", "i"} {
		if !en.Contains(w) {
			t.Errorf("Contains(%q) = false", w)
		}
	}
	for _, w := range []string{"kernel", "alfa", "The", ""} {
		if en.Contains(w) {
			t.Errorf("Contains(%q) = true", w)
		}
	}
	if !reflect.DeepEqual(en, English()) {
		t.Error("English() differs between calls")
	}
}

func TestNew_Normalizes(t *testing.T) {
	l := New(" Kernel ", "", "COM", "com")
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
	if !l.Contains("kernel") || !l.Contains("com") {
		t.Errorf("list = %v, want kernel and com", l)
	}
}

func TestUnion(t *testing.T) {
	s := Union(New("alpha"), nil, New("beta"))
	if !s.Contains("alpha") || !s.Contains("beta") {
		t.Error("union lost a member")
	}
	if s.Contains("gamma") {
		t.Error("union contains gamma")
	}
	if Union().Contains("alpha") {
		t.Error("empty union contains alpha")
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "extra.yaml", "stopwords:\n  - Kernel\n  - com\n")

	l, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Len() != 2 || !l.Contains("kernel") {
		t.Errorf("Load = %v", l)
	}
}

func TestLoad_Text(t *testing.T) {
	path := writeFile(t, "extra.txt", "# noise words\napple\n\n  Safari \n")

	l, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Len() != 2 || !l.Contains("safari") {
		t.Errorf("Load = %v", l)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}

	path := writeFile(t, "bad.yml", "stopwords: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Error("Load(bad yaml) succeeded")
	}
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig("")
	if err != nil {
		t.Fatalf("FromConfig(\"\"): %v", err)
	}
	if !s.Contains("the") || s.Contains("kernel") {
		t.Error("default set should be the English list only")
	}

	s, err = FromConfig(writeFile(t, "extra.txt", "kernel\n"))
	if err != nil {
		t.Fatalf("FromConfig(extra): %v", err)
	}
	if !s.Contains("the") || !s.Contains("kernel") {
		t.Error("extra words not merged with the English list")
	}
}
