package domain

import "testing"

func TestCategoryContains(t *testing.T) {
	c := DefaultCategory

	tests := []struct {
		name             string
		cat, sub, subsub int
		want             bool
	}{
		{"first cell", 1, 1, 1, true},
		{"last cell", 5, 18, 9, true},
		{"zero cat", 0, 1, 1, false},
		{"cat too large", 6, 1, 1, false},
		{"sub too large", 1, 19, 1, false},
		{"subsub too large", 1, 1, 10, false},
		{"negative subsub", 1, 1, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Contains(tt.cat, tt.sub, tt.subsub); got != tt.want {
				t.Errorf("Contains(%d, %d, %d) = %v, want %v", tt.cat, tt.sub, tt.subsub, got, tt.want)
			}
		})
	}
}

func TestCategoryContainsSub(t *testing.T) {
	c := DefaultCategory

	if !c.ContainsSub(5, 18) {
		t.Error("ContainsSub(5, 18) should be true")
	}
	if c.ContainsSub(5, 19) {
		t.Error("ContainsSub(5, 19) should be false")
	}
}

func TestCategoryCode(t *testing.T) {
	c := DefaultCategory

	tests := []struct {
		cat, sub, subsub int
		want             string
	}{
		{1, 2, 3, "010203"},
		{1, 12, 3, "011203"},
		{5, 18, 9, "051809"},
	}

	for _, tt := range tests {
		if got := c.Code(tt.cat, tt.sub, tt.subsub); got != tt.want {
			t.Errorf("Code(%d, %d, %d) = %q, want %q", tt.cat, tt.sub, tt.subsub, got, tt.want)
		}
	}
}

func TestCategoryCells(t *testing.T) {
	if got := DefaultCategory.Cells(); got != 5*18*9 {
		t.Errorf("Cells() = %d, want %d", got, 5*18*9)
	}
}
