package departments

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `departments:
  - name: Registrar
    address: registrar@uni.edu
  - name: Financial Aid
    address: finaid@uni.edu
  - name: Parking Services
    address: parking@uni.edu
`

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	reg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	names := reg.Names()
	want := []string{"Financial Aid", "Parking Services", "Registrar"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q (sorted)", i, names[i], want[i])
		}
	}

	d, ok := reg.Lookup("Registrar")
	if !ok || d.Address != "registrar@uni.edu" {
		t.Errorf("Lookup(Registrar) = %+v ok=%v", d, ok)
	}
	if _, ok := reg.Lookup("Bursar"); ok {
		t.Error("unknown department must miss")
	}

	all := reg.All()
	if len(all) != 3 || all[0].Name != "Financial Aid" {
		t.Errorf("All() = %+v", all)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"bad yaml", ":\n  -"},
		{"empty", "departments: []"},
		{"missing address", "departments:\n  - name: Registrar"},
		{"missing name", "departments:\n  - address: x@uni.edu"},
		{"duplicate", "departments:\n  - name: A\n    address: a@uni.edu\n  - name: A\n    address: b@uni.edu"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse([]byte(tt.in)); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tt.in)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "departments.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reg.Names()) != 3 {
		t.Errorf("names = %v", reg.Names())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file succeeded, want error")
	}
}

func TestNames_ReturnsCopy(t *testing.T) {
	t.Parallel()

	reg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	names := reg.Names()
	names[0] = "mutated"
	if reg.Names()[0] == "mutated" {
		t.Error("Names must return a copy")
	}
}
