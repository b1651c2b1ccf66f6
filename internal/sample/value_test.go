package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueFloat64(t *testing.T) {
	testcases := []struct {
		name  string
		v     Value
		want  float64
		wantOK bool
	}{
		{name: "number", v: NewNumber(42.5), want: 42.5, wantOK: true},
		{name: "absent", v: NewAbsent(), want: 0, wantOK: false},
		{name: "text unparsable", v: NewText("active"), want: 0, wantOK: false},
		{name: "text numeric", v: NewText("12.5"), want: 12.5, wantOK: true},
		{name: "bool true", v: NewBool(true), want: 1, wantOK: true},
		{name: "bool false", v: NewBool(false), want: 0, wantOK: true},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.v.Float64()
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValueString(t *testing.T) {
	testcases := []struct {
		name string
		v    Value
		want string
	}{
		{name: "number", v: NewNumber(3), want: "3"},
		{name: "fractional", v: NewNumber(3.14), want: "3.14"},
		{name: "text", v: NewText("idle"), want: "idle"},
		{name: "bool true", v: NewBool(true), want: "T"},
		{name: "bool false", v: NewBool(false), want: "F"},
		{name: "absent", v: NewAbsent(), want: ""},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.v.String())
		})
	}
}

func TestRowClone(t *testing.T) {
	orig := Row{"pid": NewNumber(1), "state": NewText("active")}
	clone := orig.Clone()
	clone["pid"] = NewNumber(2)

	assert.Equal(t, float64(1), mustFloat(t, orig["pid"]))
	assert.Equal(t, float64(2), mustFloat(t, clone["pid"]))
}

func mustFloat(t *testing.T, v Value) float64 {
	t.Helper()
	f, ok := v.Float64()
	assert.True(t, ok)
	return f
}
