package version

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "1.0", want: Version{Major: 1, Minor: 0}},
		{in: "2.15", want: Version{Major: 2, Minor: 15}},
		{in: "1", want: Version{Major: 1, Minor: 0}},
		{in: "", wantErr: true},
		{in: "1.x", wantErr: true},
		{in: ".5", wantErr: true},
		{in: "one.two", wantErr: true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) accepted", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCompatible(t *testing.T) {
	v1, _ := Parse("1.0")
	v12, _ := Parse("1.2")
	v2, _ := Parse("2.0")

	if !v1.Compatible(v12) {
		t.Error("same major should be compatible")
	}
	if v1.Compatible(v2) {
		t.Error("different major should be incompatible")
	}
}

func TestCurrentParses(t *testing.T) {
	if _, err := Parse(Current); err != nil {
		t.Fatalf("Current does not parse: %v", err)
	}
}
