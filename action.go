package hubbard

import (
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/cmplxs"

	"hubbard/zmat"
)

// Algorithm selects how the fermion determinant and force are computed.
type Algorithm int

const (
	// DirectSingle works on M directly through the fast logdetM/solveM
	// path. Requires mu = 0 and nt >= 2 for the force.
	DirectSingle Algorithm = iota
	// DirectSquare works on the squared matrix Q = M_p * M_h^T through the
	// block factorization. Supports any mu.
	DirectSquare
)

// Basis selects the meaning of the auxiliary field phi. In the spin basis
// every determinant is evaluated at -i*phi.
type Basis int

const (
	ParticleHole Basis = iota
	Spin
)

// Action is the fermionic part of the Hubbard action,
// S_f = -log(det(M_p) * det(M_h)). The algorithm and basis are fixed at
// construction; changing the operator parameters afterwards requires
// constructing a new Action.
type Action struct {
	fm    *FermiMatrix
	alg   Algorithm
	basis Basis

	// When the hole determinant is the complex conjugate of the particle
	// determinant (bipartite lattice, mu = 0, sigmaKappa = +1), compute
	// only the particle part.
	shortcut bool

	kp *zmat.Dense
	kh *zmat.Dense
}

// NewAction builds the action for an operator. The hole-determinant
// shortcut is detected here; it applies only in the particle-hole basis.
func NewAction(fm *FermiMatrix, alg Algorithm, basis Basis) (*Action, error) {
	if alg != DirectSingle && alg != DirectSquare {
		return nil, errors.Errorf("unknown algorithm %d", alg)
	}
	if basis != ParticleHole && basis != Spin {
		return nil, errors.Errorf("unknown basis %d", basis)
	}
	a := &Action{
		fm:    fm,
		alg:   alg,
		basis: basis,
		kp:    fm.K(nil, Particle),
		kh:    fm.K(nil, Hole),
	}
	a.shortcut = basis == ParticleHole && holeShortcutPossible(fm)
	return a, nil
}

// ShortcutForHoles reports whether the hole determinant is derived from the
// particle determinant by conjugation.
func (a *Action) ShortcutForHoles() bool { return a.shortcut }

// Eval computes S_f(phi).
func (a *Action) Eval(phi []complex128) (complex128, error) {
	if a.basis == Spin {
		phi = timesMinusI(phi)
	}

	if a.alg == DirectSquare {
		ld, err := a.fm.LogDetQ(phi)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		return -ld, nil
	}

	ldp, err := a.fm.LogDetM(phi, Particle)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	if a.shortcut {
		return -zmat.ToFirstLogBranch(ldp + cmplx.Conj(ldp)), nil
	}
	ldh, err := a.fm.LogDetM(phi, Hole)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return -zmat.ToFirstLogBranch(ldp + ldh), nil
}

// Force computes -dS_f/dphi as a spacetime vector.
func (a *Action) Force(phi []complex128) ([]complex128, error) {
	switch {
	case a.alg == DirectSingle && a.basis == ParticleHole:
		fp, err := a.forceDirectSinglePart(phi, a.kp, Particle)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		res := make([]complex128, len(fp))
		if a.shortcut {
			for i, v := range fp {
				res[i] = complex(0, -1) * (v - cmplx.Conj(v))
			}
			return res, nil
		}
		fh, err := a.forceDirectSinglePart(phi, a.kh, Hole)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		for i, v := range fp {
			res[i] = complex(0, -1) * (v - fh[i])
		}
		return res, nil

	case a.alg == DirectSingle && a.basis == Spin:
		aux := timesMinusI(phi)
		fh, err := a.forceDirectSinglePart(aux, a.kh, Hole)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		fp, err := a.forceDirectSinglePart(aux, a.kp, Particle)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		cmplxs.Sub(fh, fp)
		return fh, nil

	case a.alg == DirectSquare && a.basis == ParticleHole:
		return a.forceDirectSquare(phi)

	default: // DirectSquare, Spin
		f, err := a.forceDirectSquare(timesMinusI(phi))
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		cmplxs.Scale(complex(0, -1), f)
		return f, nil
	}
}

// forceDirectSinglePart computes the force contribution of one species
// without the overall -i factor. It builds the partial products of
// A^-1 = F^-1(0)K * ... * F^-1(nt-1)K to the left of (1+A^-1)^-1 first,
// then sweeps the right factors on the fly.
func (a *Action) forceDirectSinglePart(phi []complex128, k *zmat.Dense, s Species) ([]complex128, error) {
	fm := a.fm
	nt := fm.nt(phi)
	nx := fm.nx
	if nt < 2 {
		return nil, errors.Errorf("nt < 2 not supported by the direct-single algorithm")
	}

	// Partial products in reverse order: lefts[j] covers slices nt-1 down
	// to nt-1-j.
	lefts := make([]*zmat.Dense, 0, nt-1)
	f := fm.F(nil, nt-1, phi, s, true)
	lefts = append(lefts, zmat.Mul(nil, f, k))
	fk := zmat.New(nx, nx)
	for t := nt - 2; t > 0; t-- {
		fm.F(f, t, phi, s, true)
		zmat.Mul(fk, f, k)
		lefts = append(lefts, zmat.Mul(nil, fk, lefts[len(lefts)-1]))
	}
	fm.F(f, 0, phi, s, true)
	zmat.Mul(fk, f, k)
	ainv := zmat.Mul(nil, fk, lefts[len(lefts)-1])

	// right starts as (1 + A^-1)^-1.
	aPlusId := ainv.Clone()
	for i := 0; i < nx; i++ {
		aPlusId.Set(i, i, aPlusId.At(i, i)+1)
	}
	right, err := zmat.Inv(nil, aPlusId)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	force := make([]complex128, nx*nt)
	diagMul(spacevec(force, nt-1, nx), ainv, right)

	next := zmat.New(nx, nx)
	for tau := 0; tau < nt-1; tau++ {
		fm.F(f, tau, phi, s, true)
		zmat.Mul(fk, f, k)
		zmat.Mul(next, right, fk)
		right, next = next, right
		diagMul(spacevec(force, tau, nx), lefts[nt-2-tau], right)
	}
	return force, nil
}

// forceDirectSquare computes the force from the inverse of the dense Q.
// The connector is multiplied from opposite sides for the two
// discretizations because only the diagonal discretization commutes the
// field phase past the hopping factor.
func (a *Action) forceDirectSquare(phi []complex128) ([]complex128, error) {
	fm := a.fm
	nt := fm.nt(phi)
	nx := fm.nx

	qinv, err := zmat.Inv(nil, fm.Q(nil, phi))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	force := make([]complex128, nx*nt)
	t := zmat.New(nx, nx)
	blk := zmat.New(nx, nx)
	d := make([]complex128, nx)
	for tau := 0; tau < nt; tau++ {
		tp1 := (tau + 1) % nt
		fv := spacevec(force, tau, nx)

		fm.Tplus(t, tp1, phi)
		zmat.SubMatrix(blk, qinv, tau*nx, tp1*nx, nx, nx)
		if fm.hopping == DiaHopping {
			diagMul(d, t, blk)
		} else {
			diagMul(d, blk, t)
		}
		for i, v := range d {
			fv[i] = complex(0, 1) * v
		}

		fm.Tminus(t, tau, phi)
		zmat.SubMatrix(blk, qinv, tp1*nx, tau*nx, nx, nx)
		if fm.hopping == DiaHopping {
			diagMul(d, blk, t)
		} else {
			diagMul(d, t, blk)
		}
		for i, v := range d {
			fv[i] -= complex(0, 1) * v
		}
	}
	return force, nil
}

// diagMul stores the main diagonal of a*b in dst without forming the
// product.
func diagMul(dst []complex128, a, b *zmat.Dense) []complex128 {
	n := a.Rows()
	if dst == nil {
		dst = make([]complex128, n)
	}
	for i := 0; i < n; i++ {
		var s complex128
		for j := 0; j < a.Cols(); j++ {
			s += a.At(i, j) * b.At(j, i)
		}
		dst[i] = s
	}
	return dst
}

func timesMinusI(phi []complex128) []complex128 {
	aux := make([]complex128, len(phi))
	for i, v := range phi {
		aux[i] = complex(0, -1) * v
	}
	return aux
}
