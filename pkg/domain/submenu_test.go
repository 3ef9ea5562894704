package domain

import "testing"

func TestSubmenuStringRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Submenu
		want string
	}{
		{name: "empty", in: Submenu{}, want: ""},
		{name: "result marker", in: ResultMarker(1), want: "IDX:0001"},
		{name: "original base", in: Submenu{Base: BaseOriginal, Index: 1}, want: "BASE:ORIGINAL;IDX:0001"},
		{name: "result base with choice", in: Submenu{Base: BaseResult, Index: 7, Choice: "a"}, want: "BASE:RESULT;IDX:0007;a"},
		{name: "choice only", in: Submenu{Choice: "f"}, want: "f"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.String(); got != tc.want {
				t.Fatalf("String() = %q, want %q", got, tc.want)
			}
			if got := ParseSubmenu(tc.want); got != tc.in {
				t.Fatalf("ParseSubmenu(%q) = %+v, want %+v", tc.want, got, tc.in)
			}
		})
	}
}

func TestSubmenuWithChoicePreservesBase(t *testing.T) {
	s := ResultMarker(3).WithBase(BaseResult, 3).WithChoice("B")
	if s.Base != BaseResult || s.Index != 3 || s.Choice != "b" {
		t.Fatalf("unexpected submenu %+v", s)
	}
	if got := s.KeepBase(); got.Choice != "" || got.Base != BaseResult {
		t.Fatalf("KeepBase() = %+v", got)
	}
}

func TestSubmenuWithChoiceDropsBareIndex(t *testing.T) {
	s := ResultMarker(4).WithChoice("c")
	if s.Index != 0 || s.Choice != "c" {
		t.Fatalf("expected index marker to be dropped without base selection, got %+v", s)
	}
}

func TestStateValid(t *testing.T) {
	for _, s := range States {
		if !s.Valid() {
			t.Fatalf("state %q should be valid", s)
		}
	}
	if State("WAITING").Valid() {
		t.Fatalf("unknown state should be invalid")
	}
}

func TestModeStateMapping(t *testing.T) {
	for _, m := range []Mode{ModeRealism, ModeStylize, ModeScene} {
		got, ok := ModeFromState(m.State())
		if !ok || got != m {
			t.Fatalf("ModeFromState(%q) = %d, %v", m.State(), got, ok)
		}
	}
	if _, ok := ModeFromDigit("4"); ok {
		t.Fatalf("digit 4 should not map to a mode")
	}
}
