package zmat

import (
	"fmt"
	"math/cmplx"
	"testing"
)

func TestSolveVec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a *Dense
		b []complex128
	}{
		{
			a: FromRows([][]complex128{
				{2, 1},
				{1, 3},
			}),
			b: []complex128{1, 2},
		},
		{
			a: FromRows([][]complex128{
				{1i, 2, 0},
				{3, 1 + 1i, 1},
				{0, -2, 4 - 1i},
			}),
			b: []complex128{1 - 1i, 0, 2i},
		},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Parallel()
			var f LU
			if err := f.Factorize(test.a); err != nil {
				t.Fatalf("%+v", err)
			}
			x := f.SolveVec(nil, test.b)
			ax := MulVec(nil, test.a, x)
			for j := range test.b {
				if cabs(ax[j]-test.b[j]) > 1e-12 {
					t.Fatalf("%v, expected %v", ax, test.b)
				}
			}
		})
	}
}

func TestInverse(t *testing.T) {
	t.Parallel()
	a := FromRows([][]complex128{
		{1i, 2, 0},
		{3, 1 + 1i, 1},
		{0, -2, 4 - 1i},
	})
	inv, err := Inv(nil, a)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if d := MaxAbsDiff(Mul(nil, a, inv), Eye(3)); d > 1e-12 {
		t.Fatalf("A*A^-1 differs from identity by %v", d)
	}
}

func TestLogDet(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a   *Dense
		det complex128
	}{
		{
			a: FromRows([][]complex128{
				{1, 2},
				{3, 4},
			}),
			det: -2,
		},
		{
			a: FromRows([][]complex128{
				{1i, 0},
				{0, 2},
			}),
			det: 2i,
		},
		{
			a: FromRows([][]complex128{
				{0, 1},
				{1, 0},
			}),
			det: -1,
		},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Parallel()
			ld, err := LogDet(test.a)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if got := cmplx.Exp(ld); cabs(got-test.det) > 1e-12 {
				t.Fatalf("exp(logdet) = %v, expected %v", got, test.det)
			}

			// The destructive variant must agree and consume its input.
			c := test.a.Clone()
			ild, err := LogDetDestroy(c)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if cabs(ild-ld) > 1e-12 {
				t.Fatalf("%v, expected %v", ild, ld)
			}
		})
	}
}

func TestFactorizeSingular(t *testing.T) {
	t.Parallel()
	a := FromRows([][]complex128{
		{1, 2},
		{2, 4},
	})
	var f LU
	if err := f.Factorize(a); err == nil {
		t.Fatalf("expected error for singular matrix")
	}
	if _, err := LogDetDestroy(a.Clone()); err == nil {
		t.Fatalf("expected error for singular matrix")
	}
}
