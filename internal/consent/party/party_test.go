package party

import (
	"errors"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "empty is not an error",
			input: "   ",
			want:  "",
		},
		{
			name:  "handle is lower-cased with single at sign",
			input: "  @Alice_One  ",
			want:  "@alice_one",
		},
		{
			name:  "doubled at signs collapse",
			input: "@@Bob.Two",
			want:  "@bob.two",
		},
		{
			name:  "legal name is trimmed only",
			input: "  Alice Johnson  ",
			want:  "Alice Johnson",
		},
		{
			name:    "handle rejects disallowed characters",
			input:   "@alice-one",
			wantErr: ErrHandleInvalid,
		},
		{
			name:    "handle rejects bare at sign",
			input:   "@",
			wantErr: ErrHandleInvalid,
		},
		{
			name:    "handle rejects excessive length",
			input:   "@abcdefghijklmnopqrstuvwxyz01234",
			wantErr: ErrHandleTooLong,
		},
		{
			name:    "legal name rejects single character",
			input:   "a",
			wantErr: ErrNameTooShort,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got, err := Canonicalize(test.input)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("Canonicalize(%q) error = %v, want %v", test.input, err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Canonicalize(%q) error = %v", test.input, err)
			}
			if got != test.want {
				t.Fatalf("Canonicalize(%q) = %q, want %q", test.input, got, test.want)
			}
		})
	}
}

func TestValidateReportsDuplicateHandles(t *testing.T) {
	t.Parallel()

	errs := Validate([]string{"@alice", "Bob Smith", "@ALICE"}, false)
	if len(errs) != 1 {
		t.Fatalf("errors = %d, want 1", len(errs))
	}
	if !errors.Is(errs[2], ErrDuplicate) {
		t.Fatalf("errs[2] = %v, want %v", errs[2], ErrDuplicate)
	}
}

func TestValidateRequiredFlagsEmptySlots(t *testing.T) {
	t.Parallel()

	errs := Validate([]string{"@alice", "  "}, true)
	if !errors.Is(errs[1], ErrRequired) {
		t.Fatalf("errs[1] = %v, want %v", errs[1], ErrRequired)
	}

	optional := Validate([]string{"@alice", "  "}, false)
	if optional.HasErrors() {
		t.Fatalf("expected no errors for optional empty slot, got %v", optional)
	}
}

func TestErrorMapRemoveIndexReKeys(t *testing.T) {
	t.Parallel()

	m := ErrorMap{
		1: ErrHandleInvalid,
		2: ErrDuplicate,
		4: ErrNameTooShort,
	}
	m.RemoveIndex(2)

	if _, ok := m[2]; ok {
		t.Fatal("expected error at removed index to be dropped")
	}
	if !errors.Is(m[1], ErrHandleInvalid) {
		t.Fatalf("m[1] = %v, want %v", m[1], ErrHandleInvalid)
	}
	if !errors.Is(m[3], ErrNameTooShort) {
		t.Fatalf("m[3] = %v, want %v", m[3], ErrNameTooShort)
	}
	if len(m) != 2 {
		t.Fatalf("map size = %d, want 2", len(m))
	}
}

func TestErrorMapRemoveIndexDropsTrailingErrors(t *testing.T) {
	t.Parallel()

	m := ErrorMap{3: ErrHandleInvalid}
	m.RemoveIndex(3)
	if m.HasErrors() {
		t.Fatalf("expected empty map, got %v", m)
	}
}
