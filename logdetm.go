package hubbard

import (
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/cmplxs"

	"hubbard/zmat"
)

// LogDetM computes log(det(M)) for one species on the principal branch
// without assembling M, using
//
//	det(M) = det(K)^nt * det(1 + K^-1 F(0) * ... * K^-1 F(nt-1))
//
// in O(nt*nx^3). Only mu = 0 is supported; the product recursion loses all
// precision at nonzero chemical potential.
func (fm *FermiMatrix) LogDetM(phi []complex128, s Species) (complex128, error) {
	if fm.mu != 0 {
		return 0, errors.Errorf("logdetM does not support mu != 0, the algorithm is unstable")
	}
	nt := fm.nt(phi)
	nx := fm.nx

	kinv, ldKinv, err := fm.Kinv(s)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}

	f := fm.F(nil, 0, phi, s, false)
	aux := zmat.Mul(nil, kinv, f)
	kf := zmat.New(nx, nx)
	next := zmat.New(nx, nx)
	for t := 1; t < nt; t++ {
		fm.F(f, t, phi, s, false)
		zmat.Mul(kf, kinv, f)
		zmat.Mul(next, aux, kf)
		aux, next = next, aux
	}
	for i := 0; i < nx; i++ {
		aux.Set(i, i, aux.At(i, i)+1)
	}

	ld, err := zmat.LogDetDestroy(aux)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return zmat.ToFirstLogBranch(-complex(float64(nt), 0)*ldKinv + ld), nil
}

// SolveM solves M*x = b for a batch of right hand sides, sharing one set of
// transfer matrices and a single dense factorization across the batch. The
// per-item solves run concurrently. Only mu = 0 is supported.
func (fm *FermiMatrix) SolveM(phi []complex128, s Species, rhs [][]complex128) ([][]complex128, error) {
	if fm.mu != 0 {
		return nil, errors.Errorf("solveM does not support mu != 0, the algorithm is unstable")
	}
	nt := fm.nt(phi)
	nx := fm.nx
	for i, b := range rhs {
		if len(b) != nt*nx {
			return nil, errors.Errorf("malformed dimensions: rhs %d has length %d, expected %d", i, len(b), nt*nx)
		}
	}

	kinv, _, err := fm.Kinv(s)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	// Transfer matrices a[t] = K^-1 * F(t).
	a := make([]*zmat.Dense, nt)
	f := zmat.New(nx, nx)
	for t := 0; t < nt; t++ {
		a[t] = zmat.Mul(nil, kinv, fm.F(f, t, phi, s, false))
	}

	// Suffix products b[t] = a[nt-1] * ... * a[t+1], b[nt-1] = 1.
	prod := make([]*zmat.Dense, nt)
	prod[nt-1] = zmat.Eye(nx)
	for t := nt - 2; t >= 0; t-- {
		prod[t] = zmat.Mul(nil, prod[t+1], a[t+1])
	}

	// The wraparound couples the last slice to itself through
	// (1 + b[0]*a[0]) * x[nt-1] = sum_t b[t] * K^-1 * rhs[t].
	lhs := zmat.Mul(nil, prod[0], a[0])
	for i := 0; i < nx; i++ {
		lhs.Set(i, i, lhs.At(i, i)+1)
	}
	var lu zmat.LU
	if err := lu.Factorize(lhs); err != nil {
		return nil, errors.Wrap(err, "")
	}

	res := make([][]complex128, len(rhs))
	var wg sync.WaitGroup
	for i, b := range rhs {
		wg.Add(1)
		go func(i int, b []complex128) {
			defer wg.Done()

			c := make([]complex128, nt*nx)
			for t := 0; t < nt; t++ {
				zmat.MulVec(spacevec(c, t, nx), kinv, spacevec(b, t, nx))
			}

			r := make([]complex128, nx)
			tmp := make([]complex128, nx)
			for t := 0; t < nt; t++ {
				cmplxs.Add(r, zmat.MulVec(tmp, prod[t], spacevec(c, t, nx)))
			}

			x := make([]complex128, nt*nx)
			xlast := spacevec(x, nt-1, nx)
			lu.SolveVec(xlast, r)
			if nt > 1 {
				x0 := spacevec(x, 0, nx)
				copy(x0, spacevec(c, 0, nx))
				cmplxs.Sub(x0, zmat.MulVec(tmp, a[0], xlast))
				for t := 1; t < nt-1; t++ {
					xt := spacevec(x, t, nx)
					copy(xt, spacevec(c, t, nx))
					cmplxs.Add(xt, zmat.MulVec(tmp, a[t], spacevec(x, t-1, nx)))
				}
			}
			res[i] = x
		}(i, b)
	}
	wg.Wait()
	return res, nil
}
