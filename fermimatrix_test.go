package hubbard

import (
	"fmt"
	"math"
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/mat"

	"hubbard/zmat"
)

// ringKappa is a symmetric periodic chain with hopping strength c.
func ringKappa(nx int, c float64) *mat.Dense {
	kappa := mat.NewDense(nx, nx, nil)
	for i := 0; i < nx; i++ {
		j := (i + 1) % nx
		kappa.Set(i, j, c)
		kappa.Set(j, i, c)
	}
	return kappa
}

// testField is a deterministic complex spacetime field.
func testField(nx, nt int) []complex128 {
	phi := make([]complex128, nx*nt)
	for i := range phi {
		x := float64(i)
		phi[i] = complex(0.7*math.Sin(x+1), 0.3*math.Cos(2*x+0.5))
	}
	return phi
}

// TestQMatchesSquaredM checks Q = M_p * M_h^T for both discretizations on a
// symmetric hopping matrix.
func TestQMatchesSquaredM(t *testing.T) {
	t.Parallel()
	tests := []struct {
		hopping    Hopping
		mu         float64
		sigmaKappa int
		nt         int
	}{
		{hopping: DiaHopping, mu: 0, sigmaKappa: 1, nt: 4},
		{hopping: DiaHopping, mu: 0.3, sigmaKappa: -1, nt: 4},
		{hopping: DiaHopping, mu: 0.3, sigmaKappa: 1, nt: 2},
		{hopping: DiaHopping, mu: 0, sigmaKappa: 1, nt: 1},
		{hopping: ExpHopping, mu: 0, sigmaKappa: 1, nt: 4},
		{hopping: ExpHopping, mu: 0.2, sigmaKappa: -1, nt: 3},
		{hopping: ExpHopping, mu: 0.2, sigmaKappa: 1, nt: 1},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v_%v_%d_%d", test.hopping, test.mu, test.sigmaKappa, test.nt), func(t *testing.T) {
			t.Parallel()
			fm, err := NewFermiMatrix(ringKappa(2, 0.5), test.mu, test.sigmaKappa, test.hopping)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			phi := testField(2, test.nt)

			mp := fm.M(nil, phi, Particle)
			mh := fm.M(nil, phi, Hole)
			sq := zmat.Mul(nil, mp, zmat.Transpose(nil, mh))

			q := fm.Q(nil, phi)
			if d := zmat.MaxAbsDiff(q, sq); d > 1e-12 {
				t.Fatalf("Q and M_p*M_h^T differ by %v", d)
			}
		})
	}
}

// TestFInverse checks that the inv flag of F builds the actual inverse
// block.
func TestFInverse(t *testing.T) {
	t.Parallel()
	for _, hopping := range []Hopping{DiaHopping, ExpHopping} {
		for _, s := range []Species{Particle, Hole} {
			t.Run(fmt.Sprintf("%v_%v", hopping, s), func(t *testing.T) {
				t.Parallel()
				fm, err := NewFermiMatrix(ringKappa(4, 0.3), 0, 1, hopping)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				phi := testField(4, 3)
				f := fm.F(nil, 1, phi, s, false)
				finv := fm.F(nil, 1, phi, s, true)
				if d := zmat.MaxAbsDiff(zmat.Mul(nil, f, finv), zmat.Eye(4)); d > 1e-12 {
					t.Fatalf("F*F^-1 differs from identity by %v", d)
				}
			})
		}
	}
}

func TestKinvCache(t *testing.T) {
	t.Parallel()
	fm, err := NewFermiMatrix(ringKappa(2, 0.5), 0.1, 1, DiaHopping)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	kinv, ldKinv, err := fm.Kinv(Particle)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	k := fm.K(nil, Particle)
	if d := zmat.MaxAbsDiff(zmat.Mul(nil, k, kinv), zmat.Eye(2)); d > 1e-12 {
		t.Fatalf("K*K^-1 differs from identity by %v", d)
	}
	ldK, err := zmat.LogDet(k)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if d := cmplx.Abs(ldKinv + ldK); d > 1e-12 {
		t.Fatalf("logdet(K^-1) = %v, expected %v", ldKinv, -ldK)
	}

	// Warm call returns the cached matrix.
	kinv2, _, err := fm.Kinv(Particle)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if kinv2 != kinv {
		t.Fatalf("cache miss on warm call")
	}

	// Parameter updates invalidate the cache.
	if err := fm.UpdateMu(0.4); err != nil {
		t.Fatalf("%+v", err)
	}
	kinv3, _, err := fm.Kinv(Particle)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if d := zmat.MaxAbsDiff(kinv3, kinv); d < 1e-6 {
		t.Fatalf("K^-1 unchanged after UpdateMu, diff %v", d)
	}
}

func TestNewFermiMatrixErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewFermiMatrix(mat.NewDense(2, 3, nil), 0, 1, DiaHopping); err == nil {
		t.Fatalf("expected error for non-square hopping")
	}
	if _, err := NewFermiMatrix(ringKappa(2, 0.5), 0, 2, DiaHopping); err == nil {
		t.Fatalf("expected error for bad sigmaKappa")
	}
	asym := mat.NewDense(2, 2, []float64{0, 1, 0, 0})
	if _, err := NewFermiMatrix(asym, 0, 1, ExpHopping); err == nil {
		t.Fatalf("expected error for asymmetric hopping with exp discretization")
	}
}
