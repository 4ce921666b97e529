package hubbard

import (
	"fmt"
	"math/cmplx"
	"testing"

	"hubbard/zmat"
)

func TestLogDetM(t *testing.T) {
	t.Parallel()
	tests := []struct {
		hopping    Hopping
		sigmaKappa int
		nt         int
	}{
		{hopping: DiaHopping, sigmaKappa: 1, nt: 1},
		{hopping: DiaHopping, sigmaKappa: 1, nt: 2},
		{hopping: DiaHopping, sigmaKappa: -1, nt: 4},
		{hopping: DiaHopping, sigmaKappa: 1, nt: 8},
		{hopping: ExpHopping, sigmaKappa: 1, nt: 4},
		{hopping: ExpHopping, sigmaKappa: -1, nt: 8},
	}
	for _, test := range tests {
		for _, s := range []Species{Particle, Hole} {
			t.Run(fmt.Sprintf("%v_%d_%d_%v", test.hopping, test.sigmaKappa, test.nt, s), func(t *testing.T) {
				t.Parallel()
				fm, err := NewFermiMatrix(ringKappa(2, 0.5), 0, test.sigmaKappa, test.hopping)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				phi := testField(2, test.nt)

				got, err := fm.LogDetM(phi, s)
				if err != nil {
					t.Fatalf("%+v", err)
				}

				raw, err := zmat.LogDetDestroy(fm.M(nil, phi, s))
				if err != nil {
					t.Fatalf("%+v", err)
				}
				want := zmat.ToFirstLogBranch(raw)
				if cmplx.Abs(got-want) > 1e-9 {
					t.Fatalf("%v, expected %v", got, want)
				}
			})
		}
	}
}

func TestLogDetMMuNonzero(t *testing.T) {
	t.Parallel()
	fm, err := NewFermiMatrix(ringKappa(2, 0.5), 0.1, 1, DiaHopping)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	phi := testField(2, 4)
	if _, err := fm.LogDetM(phi, Particle); err == nil {
		t.Fatalf("expected error for mu != 0")
	}
	if _, err := fm.SolveM(phi, Particle, [][]complex128{phi}); err == nil {
		t.Fatalf("expected error for mu != 0")
	}
}

func TestSolveM(t *testing.T) {
	t.Parallel()
	tests := []struct {
		hopping Hopping
		nt      int
	}{
		{hopping: DiaHopping, nt: 1},
		{hopping: DiaHopping, nt: 4},
		{hopping: ExpHopping, nt: 4},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v_%d", test.hopping, test.nt), func(t *testing.T) {
			t.Parallel()
			fm, err := NewFermiMatrix(ringKappa(2, 0.5), 0, 1, test.hopping)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			phi := testField(2, test.nt)

			rhs := make([][]complex128, 3)
			for k := range rhs {
				rhs[k] = make([]complex128, 2*test.nt)
				for i := range rhs[k] {
					rhs[k][i] = complex(float64(i+k)+1, float64((i*k)%3))
				}
			}

			xs, err := fm.SolveM(phi, Particle, rhs)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			m := fm.M(nil, phi, Particle)
			for k, x := range xs {
				mx := zmat.MulVec(nil, m, x)
				for i := range rhs[k] {
					if cmplx.Abs(mx[i]-rhs[k][i]) > 1e-9 {
						t.Fatalf("rhs %d: M*x = %v, expected %v", k, mx, rhs[k])
					}
				}
			}
		})
	}
}

func TestSolveMBadRhs(t *testing.T) {
	t.Parallel()
	fm, err := NewFermiMatrix(ringKappa(2, 0.5), 0, 1, DiaHopping)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	phi := testField(2, 4)
	if _, err := fm.SolveM(phi, Particle, [][]complex128{make([]complex128, 3)}); err == nil {
		t.Fatalf("expected error for malformed rhs")
	}
}
