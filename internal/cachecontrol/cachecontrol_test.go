package cachecontrol

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMerge_Examples(t *testing.T) {
	tests := []struct {
		name string
		a, b CacheControl
		want CacheControl
	}{
		{"private wins", CacheControl{Public: true, MaxAge: 30}, CacheControl{Public: false}, CacheControl{Public: false, MaxAge: 30}},
		{"smallest max age", CacheControl{Public: true, MaxAge: 30}, CacheControl{Public: true, MaxAge: 60}, CacheControl{Public: true, MaxAge: 30}},
		{"unset on left", CacheControl{Public: true}, CacheControl{Public: true, MaxAge: 60}, CacheControl{Public: true, MaxAge: 60}},
		{"both unset", Default(), Default(), Default()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.a.Merge(tt.b)); diff != "" {
				t.Fatalf("Merge mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func samples() []CacheControl {
	var out []CacheControl
	for _, public := range []bool{true, false} {
		for _, age := range []int{0, 1, 30, 60, 3600} {
			out = append(out, CacheControl{Public: public, MaxAge: age})
		}
	}
	return out
}

func TestMerge_MonoidLaws(t *testing.T) {
	all := samples()
	for _, a := range all {
		if got := a.Merge(Default()); got != a {
			t.Fatalf("right identity: %v.Merge(Default()) = %v", a, got)
		}
		if got := Default().Merge(a); got != a {
			t.Fatalf("left identity: Default().Merge(%v) = %v", a, got)
		}
		for _, b := range all {
			if a.Merge(b) != b.Merge(a) {
				t.Fatalf("not commutative for %v, %v", a, b)
			}
			for _, c := range all {
				if a.Merge(b).Merge(c) != a.Merge(b.Merge(c)) {
					t.Fatalf("not associative for %v, %v, %v", a, b, c)
				}
			}
		}
	}
}

func TestMergeAll_OrderIndependent(t *testing.T) {
	a := CacheControl{Public: true, MaxAge: 60}
	b := CacheControl{Public: false}
	c := CacheControl{Public: true, MaxAge: 30}
	want := CacheControl{Public: false, MaxAge: 30}
	for _, order := range [][]CacheControl{{a, b, c}, {c, b, a}, {b, a, c}} {
		if got := MergeAll(order...); got != want {
			t.Fatalf("MergeAll(%v) = %v, want %v", order, got, want)
		}
	}
	if got := MergeAll(); !got.IsDefault() {
		t.Fatalf("MergeAll() = %v, want default", got)
	}
}

func TestHeaderValue(t *testing.T) {
	tests := []struct {
		cc   CacheControl
		want string
	}{
		{CacheControl{Public: true, MaxAge: 30}, "max-age=30"},
		{CacheControl{Public: false, MaxAge: 60}, "max-age=60, private"},
		{CacheControl{Public: false}, ""},
		{Default(), ""},
	}
	for _, tt := range tests {
		if got := tt.cc.HeaderValue(); got != tt.want {
			t.Errorf("HeaderValue(%v) = %q, want %q", tt.cc, got, tt.want)
		}
	}
}

func TestParseScope(t *testing.T) {
	if public, err := ParseScope("PRIVATE"); err != nil || public {
		t.Fatalf("PRIVATE => public=%v err=%v", public, err)
	}
	if public, err := ParseScope("public"); err != nil || !public {
		t.Fatalf("public => public=%v err=%v", public, err)
	}
	if _, err := ParseScope("SHARED"); err == nil {
		t.Fatalf("expected error for unknown scope")
	}
}
