package hubbard

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/cmplxs"

	"hubbard/zmat"
)

// QLU is a block LU factorization of the cyclic block tridiagonal matrix Q.
// Only the inverses of the diagonal blocks are stored; the off-diagonal
// factors U, L and the corner fill-in sequences V, H are kept as built.
//
// For nt time slices the lengths are
//
//	Dinv: nt    U, L: nt-1    V, H: nt-2
//
// so for nt = 1 only Dinv[0] exists and for nt = 2 there is no corner fill.
type QLU struct {
	Dinv []*zmat.Dense
	U    []*zmat.Dense
	L    []*zmat.Dense
	V    []*zmat.Dense
	H    []*zmat.Dense
}

// IsConsistent reports whether the component lengths match up for some nt.
func (lu *QLU) IsConsistent() bool {
	nt := len(lu.Dinv)
	if nt == 0 {
		return false
	}
	if len(lu.U) != nt-1 || len(lu.L) != nt-1 {
		return false
	}
	if nt > 1 && (len(lu.V) != nt-2 || len(lu.H) != nt-2) {
		return false
	}
	return true
}

func (lu *QLU) mustBeConsistent() {
	if !lu.IsConsistent() {
		panic("inconsistent factorization")
	}
}

// FactorizeQ computes the block LU factorization of Q for the field phi.
// Time is O(nt*nx^3) and Q is never assembled. An error means a diagonal
// block came out singular and the factorization is unusable.
func (fm *FermiMatrix) FactorizeQ(phi []complex128) (*QLU, error) {
	switch fm.nt(phi) {
	case 1:
		return fm.nt1QLU(phi)
	case 2:
		return fm.nt2QLU(phi)
	default:
		return fm.generalQLU(phi)
	}
}

// nt1QLU handles nt = 1, where Q is the single block P + T^+ + T^-.
func (fm *FermiMatrix) nt1QLU(phi []complex128) (*QLU, error) {
	d := fm.P(nil)
	zmat.Add(d, d, fm.Tplus(nil, 0, phi))
	zmat.Add(d, d, fm.Tminus(nil, 0, phi))
	dinv, err := zmat.Inv(nil, d)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &QLU{Dinv: []*zmat.Dense{dinv}}, nil
}

// nt2QLU handles nt = 2, where both connectors couple the same pair of
// slices and there is no corner fill.
func (fm *FermiMatrix) nt2QLU(phi []complex128) (*QLU, error) {
	p := fm.P(nil)

	d0inv, err := zmat.Inv(nil, p)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	t0 := fm.Tplus(nil, 1, phi)
	zmat.Add(t0, t0, fm.Tminus(nil, 1, phi))
	l0 := zmat.Mul(nil, t0, d0inv)

	u0 := fm.Tplus(nil, 0, phi)
	zmat.Add(u0, u0, fm.Tminus(nil, 0, phi))

	d1 := zmat.Sub(nil, p, zmat.Mul(nil, l0, u0))
	d1inv, err := zmat.Inv(nil, d1)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	return &QLU{
		Dinv: []*zmat.Dense{d0inv, d1inv},
		U:    []*zmat.Dense{u0},
		L:    []*zmat.Dense{l0},
	}, nil
}

// generalQLU handles nt > 2.
func (fm *FermiMatrix) generalQLU(phi []complex128) (*QLU, error) {
	nt := fm.nt(phi)
	lu := &QLU{
		Dinv: make([]*zmat.Dense, 0, nt),
		U:    make([]*zmat.Dense, 0, nt-1),
		L:    make([]*zmat.Dense, 0, nt-1),
		V:    make([]*zmat.Dense, 0, nt-2),
		H:    make([]*zmat.Dense, 0, nt-2),
	}
	p := fm.P(nil)
	t := zmat.New(fm.nx, fm.nx)

	// Starting components of d, u, l, v, h.
	dinv, err := zmat.Inv(nil, p)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	lu.Dinv = append(lu.Dinv, dinv)
	lu.U = append(lu.U, fm.Tminus(nil, 0, phi))
	lu.L = append(lu.L, zmat.Mul(nil, fm.Tplus(t, 1, phi), dinv))
	lu.V = append(lu.V, fm.Tplus(nil, 0, phi))
	lu.H = append(lu.H, zmat.Mul(nil, fm.Tminus(t, nt-1, phi), dinv))

	// Regular part of d, u, l, v, h for i in [1, nt-3].
	for i := 1; i < nt-2; i++ {
		d := zmat.Sub(nil, p, zmat.Mul(nil, lu.L[i-1], lu.U[i-1]))
		if dinv, err = zmat.Inv(nil, d); err != nil {
			return nil, errors.Wrap(err, "")
		}
		lu.Dinv = append(lu.Dinv, dinv)

		lu.L = append(lu.L, zmat.Mul(nil, fm.Tplus(t, i+1, phi), dinv))
		hu := zmat.Mul(nil, lu.H[i-1], lu.U[i-1])
		lu.H = append(lu.H, zmat.Scale(nil, -1, zmat.Mul(nil, hu, dinv)))
		lu.V = append(lu.V, zmat.Scale(nil, -1, zmat.Mul(nil, lu.L[i-1], lu.V[i-1])))
		lu.U = append(lu.U, fm.Tminus(nil, i, phi))
	}

	// Additional regular step for d.
	d := zmat.Sub(nil, p, zmat.Mul(nil, lu.L[nt-3], lu.U[nt-3]))
	if dinv, err = zmat.Inv(nil, d); err != nil {
		return nil, errors.Wrap(err, "")
	}
	lu.Dinv = append(lu.Dinv, dinv)

	// Final components of u and l pick up the corner fill.
	lu.U = append(lu.U, zmat.Sub(nil, fm.Tminus(t, nt-2, phi), zmat.Mul(nil, lu.L[nt-3], lu.V[nt-3])))
	lv := zmat.Sub(nil, fm.Tplus(t, nt-1, phi), zmat.Mul(nil, lu.H[nt-3], lu.U[nt-3]))
	lu.L = append(lu.L, zmat.Mul(nil, lv, lu.Dinv[nt-2]))

	// Final component of d absorbs all corner contributions.
	d = zmat.Sub(nil, p, zmat.Mul(nil, lu.L[nt-2], lu.U[nt-2]))
	for i := 0; i < nt-2; i++ {
		zmat.Sub(d, d, zmat.Mul(nil, lu.H[i], lu.V[i]))
	}
	if dinv, err = zmat.Inv(nil, d); err != nil {
		return nil, errors.Wrap(err, "")
	}
	lu.Dinv = append(lu.Dinv, dinv)

	return lu, nil
}

// Reconstruct multiplies the factorization back out into a dense matrix.
// Verification only. nt = 1 is rejected because the factorization holds just
// a single inverted block then.
func (lu *QLU) Reconstruct() (*zmat.Dense, error) {
	nt := len(lu.Dinv)
	if nt < 2 {
		return nil, errors.Errorf("reconstruction needs nt >= 2, got %d", nt)
	}
	lu.mustBeConsistent()

	nx := lu.Dinv[0].Rows()
	recon := zmat.New(nx*nt, nx*nt)
	set := func(i, j int, a *zmat.Dense) { recon.SetSub(i*nx, j*nx, a) }

	d := make([]*zmat.Dense, nt)
	for i := range d {
		var err error
		if d[i], err = zmat.Inv(nil, lu.Dinv[i]); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}

	if nt == 2 {
		set(0, 0, d[0])
		set(0, 1, lu.U[0])
		set(1, 0, zmat.Mul(nil, lu.L[0], d[0]))
		set(1, 1, zmat.Add(nil, d[1], zmat.Mul(nil, lu.L[0], lu.U[0])))
		return recon, nil
	}

	// Zeroth row.
	set(0, 0, d[0])
	set(0, 1, lu.U[0])
	set(0, nt-1, lu.V[0])

	// Regular rows 1 through nt-3.
	for i := 1; i < nt-2; i++ {
		set(i, i, zmat.Add(nil, d[i], zmat.Mul(nil, lu.L[i-1], lu.U[i-1])))
		set(i, i-1, zmat.Mul(nil, lu.L[i-1], d[i-1]))
		set(i, i+1, lu.U[i])
		set(i, nt-1, zmat.Add(nil, zmat.Mul(nil, lu.L[i-1], lu.V[i-1]), lu.V[i]))
	}

	// Row nt-2.
	set(nt-2, nt-2, zmat.Add(nil, d[nt-2], zmat.Mul(nil, lu.L[nt-3], lu.U[nt-3])))
	set(nt-2, nt-3, zmat.Mul(nil, lu.L[nt-3], d[nt-3]))
	set(nt-2, nt-1, zmat.Add(nil, zmat.Mul(nil, lu.L[nt-3], lu.V[nt-3]), lu.U[nt-2]))

	// Row nt-1.
	set(nt-1, 0, zmat.Mul(nil, lu.H[0], d[0]))
	for i := 1; i < nt-2; i++ {
		set(nt-1, i, zmat.Add(nil, zmat.Mul(nil, lu.H[i-1], lu.U[i-1]), zmat.Mul(nil, lu.H[i], d[i])))
	}
	set(nt-1, nt-2, zmat.Add(nil, zmat.Mul(nil, lu.H[nt-3], lu.U[nt-3]), zmat.Mul(nil, lu.L[nt-2], d[nt-2])))
	corner := zmat.Add(nil, d[nt-1], zmat.Mul(nil, lu.L[nt-2], lu.U[nt-2]))
	for i := 0; i < nt-2; i++ {
		zmat.Add(corner, corner, zmat.Mul(nil, lu.H[i], lu.V[i]))
	}
	set(nt-1, nt-1, corner)

	return recon, nil
}

// Solve solves Q*x = rhs through forward and back substitution in the
// factors. rhs is a spacetime vector and is left untouched.
func (lu *QLU) Solve(rhs []complex128) []complex128 {
	lu.mustBeConsistent()
	nt := len(lu.Dinv)
	nx := lu.Dinv[0].Rows()
	if len(rhs) != nt*nx {
		panic(fmt.Sprintf("malformed dimensions: rhs length %d, expected %d", len(rhs), nt*nx))
	}

	tmp := make([]complex128, nx)

	// Solve L*y = rhs.
	y := make([]complex128, nt*nx)
	copy(spacevec(y, 0, nx), spacevec(rhs, 0, nx))
	for i := 1; i < nt-1; i++ {
		yi := spacevec(y, i, nx)
		copy(yi, spacevec(rhs, i, nx))
		cmplxs.Sub(yi, zmat.MulVec(tmp, lu.L[i-1], spacevec(y, i-1, nx)))
	}
	if nt > 1 {
		last := spacevec(y, nt-1, nx)
		copy(last, spacevec(rhs, nt-1, nx))
		cmplxs.Sub(last, zmat.MulVec(tmp, lu.L[nt-2], spacevec(y, nt-2, nx)))
		for j := 0; j < nt-2; j++ {
			cmplxs.Sub(last, zmat.MulVec(tmp, lu.H[j], spacevec(y, j, nx)))
		}
	}

	// Solve U*x = y.
	x := make([]complex128, nt*nx)
	zmat.MulVec(spacevec(x, nt-1, nx), lu.Dinv[nt-1], spacevec(y, nt-1, nx))
	if nt > 1 {
		xlast := spacevec(x, nt-1, nx)
		yi := spacevec(y, nt-2, nx)
		cmplxs.Sub(yi, zmat.MulVec(tmp, lu.U[nt-2], xlast))
		zmat.MulVec(spacevec(x, nt-2, nx), lu.Dinv[nt-2], yi)
		for i := nt - 3; i >= 0; i-- {
			yi = spacevec(y, i, nx)
			cmplxs.Sub(yi, zmat.MulVec(tmp, lu.U[i], spacevec(x, i+1, nx)))
			cmplxs.Sub(yi, zmat.MulVec(tmp, lu.V[i], xlast))
			zmat.MulVec(spacevec(x, i, nx), lu.Dinv[i], yi)
		}
	}

	return x
}

// LogDet returns log(det(Q)) on the principal branch, leaving the
// factorization intact.
func (lu *QLU) LogDet() (complex128, error) {
	lu.mustBeConsistent()
	var ld complex128
	for _, dinv := range lu.Dinv {
		x, err := zmat.LogDet(dinv)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		ld -= x
	}
	return zmat.ToFirstLogBranch(ld), nil
}

// ILogDet is LogDet but factors the diagonal blocks in place, consuming the
// factorization.
func (lu *QLU) ILogDet() (complex128, error) {
	lu.mustBeConsistent()
	var ld complex128
	for _, dinv := range lu.Dinv {
		x, err := zmat.LogDetDestroy(dinv)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		ld -= x
	}
	return zmat.ToFirstLogBranch(ld), nil
}

// LogDetQ computes log(det(Q)) for the field phi through a fresh
// factorization.
func (fm *FermiMatrix) LogDetQ(phi []complex128) (complex128, error) {
	lu, err := fm.FactorizeQ(phi)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return lu.ILogDet()
}

// SolveQ solves Q*x = rhs for the field phi through a fresh factorization.
func (fm *FermiMatrix) SolveQ(phi, rhs []complex128) ([]complex128, error) {
	lu, err := fm.FactorizeQ(phi)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return lu.Solve(rhs), nil
}
