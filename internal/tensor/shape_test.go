package tensor

import "testing"

func TestShape_NumElements(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		want  int
	}{
		{"scalar", Shape{}, 1},
		{"vector", Shape{512}, 512},
		{"image batch", Shape{1, 3, 112, 112}, 37632},
		{"conv weight", Shape{24, 3, 4, 4}, 1152},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.shape.NumElements(); got != tt.want {
				t.Errorf("NumElements() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestShape_Validate(t *testing.T) {
	if err := (Shape{1, 3, 112, 112}).Validate(); err != nil {
		t.Errorf("valid shape rejected: %v", err)
	}
	if err := (Shape{1, 0, 112}).Validate(); err == nil {
		t.Error("zero dimension accepted")
	}
	if err := (Shape{-1, 3}).Validate(); err == nil {
		t.Error("negative dimension accepted")
	}
}

func TestShape_Equal(t *testing.T) {
	a := Shape{1, 3, 112, 112}
	if !a.Equal(Shape{1, 3, 112, 112}) {
		t.Error("equal shapes reported unequal")
	}
	if a.Equal(Shape{1, 3, 112}) {
		t.Error("different ranks reported equal")
	}
	if a.Equal(Shape{1, 3, 112, 96}) {
		t.Error("different dims reported equal")
	}
}

func TestShape_Clone(t *testing.T) {
	a := Shape{2, 4}
	b := a.Clone()
	b[0] = 99
	if a[0] != 2 {
		t.Error("Clone() should not share backing array")
	}
}

func TestShape_Dims(t *testing.T) {
	dims := Shape{1, 3, 112, 112}.Dims()
	want := []int64{1, 3, 112, 112}
	if len(dims) != len(want) {
		t.Fatalf("Dims() length = %d, want %d", len(dims), len(want))
	}
	for i := range want {
		if dims[i] != want[i] {
			t.Errorf("Dims()[%d] = %d, want %d", i, dims[i], want[i])
		}
	}
}

func TestShape_String(t *testing.T) {
	if got := (Shape{1, 3, 112, 112}).String(); got != "[1, 3, 112, 112]" {
		t.Errorf("String() = %q", got)
	}
}
