// Package hubbard implements the fermion determinant engine for lattice
// Hubbard-model Monte Carlo: block builders for the fermion matrices M and
// Q, a block-cyclic-tridiagonal factorization of Q, linear solves,
// log-determinants, and the action (log-weight and force) layer that a
// Hybrid Monte Carlo driver consumes.
//
// Spacetime vectors such as the auxiliary field phi are flattened with the
// time index slow and the space index fast, offset = t*nx + i.
package hubbard

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"hubbard/zmat"
)

// Species selects one of the two conjugate fermion flavors.
type Species int

const (
	Particle Species = iota
	Hole
)

func (s Species) String() string {
	switch s {
	case Particle:
		return "particle"
	default:
		return "hole"
	}
}

// Hopping selects the discretization of the hopping term, i.e. the concrete
// form of the K and F blocks.
type Hopping int

const (
	// DiaHopping keeps the hopping matrix in the diagonal block,
	// K = (1+-mu)*I - kappa.
	DiaHopping Hopping = iota
	// ExpHopping moves the hopping matrix into an exponential inside F,
	// K = I and F(t) = expm(kappa -+ mu*I) * diag(exp(+-i*phi)).
	// Requires a symmetric hopping matrix.
	ExpHopping
)

// FermiMatrix holds the lattice parameters needed to build the fermion
// matrices M and Q for any field configuration: the hopping matrix kappa,
// the chemical potential mu, and the sign sigmaKappa of kappa in the hole
// matrix.
//
// K^-1 and log(det(K^-1)) are cached lazily per species. The caches carry no
// synchronization; pre-warm with Kinv before sharing a FermiMatrix across
// goroutines. UpdateKappa and UpdateMu invalidate both caches.
type FermiMatrix struct {
	kappa      *mat.Dense
	mu         float64
	sigmaKappa int
	hopping    Hopping
	nx         int

	// exp(kappa -+ mu) and its inverse per species, ExpHopping only.
	expK    [2]*zmat.Dense
	expKinv [2]*zmat.Dense

	kinv   [2]*zmat.Dense
	ldKinv [2]complex128
	kinvOK [2]bool
}

// NewFermiMatrix validates the parameters and precomputes the hopping
// exponentials when the exponential discretization is selected.
func NewFermiMatrix(kappa mat.Matrix, mu float64, sigmaKappa int, hopping Hopping) (*FermiMatrix, error) {
	r, c := kappa.Dims()
	if r != c {
		return nil, errors.Errorf("malformed matrix: hopping is %dx%d, not square", r, c)
	}
	if sigmaKappa != 1 && sigmaKappa != -1 {
		return nil, errors.Errorf("sigmaKappa is %d, must be +1 or -1", sigmaKappa)
	}

	fm := &FermiMatrix{mu: mu, sigmaKappa: sigmaKappa, hopping: hopping, nx: r}
	fm.kappa = mat.NewDense(r, c, nil)
	fm.kappa.Copy(kappa)

	if hopping == ExpHopping {
		if err := fm.buildExpKappa(); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return fm, nil
}

// Nx returns the spatial lattice size.
func (fm *FermiMatrix) Nx() int { return fm.nx }

// Mu returns the chemical potential.
func (fm *FermiMatrix) Mu() float64 { return fm.mu }

// SigmaKappa returns the sign of kappa in the hole matrix.
func (fm *FermiMatrix) SigmaKappa() int { return fm.sigmaKappa }

// Hopping returns the discretization.
func (fm *FermiMatrix) Hopping() Hopping { return fm.hopping }

// Kappa returns the hopping matrix. Treat it as read-only; mutate only
// through UpdateKappa.
func (fm *FermiMatrix) Kappa() *mat.Dense { return fm.kappa }

// UpdateKappa replaces the hopping matrix and invalidates all cached state.
func (fm *FermiMatrix) UpdateKappa(kappa mat.Matrix) error {
	r, c := kappa.Dims()
	if r != c {
		return errors.Errorf("malformed matrix: hopping is %dx%d, not square", r, c)
	}
	fm.kappa = mat.NewDense(r, c, nil)
	fm.kappa.Copy(kappa)
	fm.nx = r
	fm.invalidate()
	if fm.hopping == ExpHopping {
		if err := fm.buildExpKappa(); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// UpdateMu replaces the chemical potential and invalidates all cached state.
func (fm *FermiMatrix) UpdateMu(mu float64) error {
	fm.mu = mu
	fm.invalidate()
	if fm.hopping == ExpHopping {
		if err := fm.buildExpKappa(); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// invalidate clears both cached quantities for both species.
func (fm *FermiMatrix) invalidate() {
	for s := range fm.kinv {
		fm.kinv[s] = nil
		fm.ldKinv[s] = 0
		fm.kinvOK[s] = false
	}
}

func (fm *FermiMatrix) buildExpKappa() error {
	// expm(kappa - mu) for particles, expm(sigmaKappa*kappa + mu) for holes.
	var err error
	if fm.expK[Particle], err = expmSym(fm.kappa, 1, -fm.mu); err != nil {
		return errors.Wrap(err, "")
	}
	if fm.expKinv[Particle], err = expmSym(fm.kappa, -1, fm.mu); err != nil {
		return errors.Wrap(err, "")
	}
	sk := float64(fm.sigmaKappa)
	if fm.expK[Hole], err = expmSym(fm.kappa, sk, fm.mu); err != nil {
		return errors.Wrap(err, "")
	}
	if fm.expKinv[Hole], err = expmSym(fm.kappa, -sk, -fm.mu); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// expmSym returns expm(scale*kappa + shift*I) for symmetric kappa, computed
// through the eigendecomposition kappa = V*diag(w)*V^T.
func expmSym(kappa *mat.Dense, scale, shift float64) (*zmat.Dense, error) {
	n, _ := kappa.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if kappa.At(i, j) != kappa.At(j, i) {
				return nil, errors.Errorf("hopping matrix is not symmetric at (%d,%d)", i, j)
			}
			sym.SetSym(i, j, kappa.At(i, j))
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, errors.Errorf("eigendecomposition of hopping matrix failed")
	}
	w := es.Values(nil)
	var v mat.Dense
	es.VectorsTo(&v)

	ew := make([]float64, n)
	for k, wk := range w {
		ew[k] = math.Exp(scale*wk + shift)
	}
	e := zmat.New(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var s float64
			for k := 0; k < n; k++ {
				s += v.At(i, k) * ew[k] * v.At(j, k)
			}
			e.Set(i, j, complex(s, 0))
		}
	}
	return e, nil
}

// nt returns the number of time slices encoded in phi.
func (fm *FermiMatrix) nt(phi []complex128) int {
	nt := len(phi) / fm.nx
	if nt == 0 || nt*fm.nx != len(phi) {
		panic(fmt.Sprintf("malformed dimensions: field length %d is not a positive multiple of nx=%d", len(phi), fm.nx))
	}
	return nt
}

// spacevec returns the spatial slice of a spacetime vector at time t.
func spacevec(v []complex128, t, nx int) []complex128 {
	return v[t*nx : (t+1)*nx]
}

func block(dst *zmat.Dense, nx int) *zmat.Dense {
	if dst == nil {
		return zmat.New(nx, nx)
	}
	return dst.Reset(nx, nx)
}

// K builds the diagonal block of M into dst, allocating when dst is nil.
func (fm *FermiMatrix) K(dst *zmat.Dense, s Species) *zmat.Dense {
	dst = block(dst, fm.nx)
	if fm.hopping == ExpHopping {
		for i := 0; i < fm.nx; i++ {
			dst.Set(i, i, 1)
		}
		return dst
	}

	onePM := 1 + fm.mu
	sk := 1.0
	if s == Hole {
		onePM = 1 - fm.mu
		sk = float64(fm.sigmaKappa)
	}
	for i := 0; i < fm.nx; i++ {
		for j := 0; j < fm.nx; j++ {
			v := -sk * fm.kappa.At(i, j)
			if i == j {
				v += onePM
			}
			dst.Set(i, j, complex(v, 0))
		}
	}
	return dst
}

// F builds the boundary-fermion block coupling time slice tp to tp-1 into
// dst. With inv set, the inverse block is built instead.
func (fm *FermiMatrix) F(dst *zmat.Dense, tp int, phi []complex128, s Species, inv bool) *zmat.Dense {
	nt := fm.nt(phi)
	tm1 := (tp - 1 + nt) % nt
	dst = block(dst, fm.nx)

	sign := complex(0, 1)
	if (inv && s == Particle) || (!inv && s == Hole) {
		sign = complex(0, -1)
	}
	slice := spacevec(phi, tm1, fm.nx)

	if fm.hopping == DiaHopping {
		for x := 0; x < fm.nx; x++ {
			dst.Set(x, x, cmplx.Exp(sign*slice[x]))
		}
		return dst
	}

	if !inv {
		e := fm.expK[s]
		for i := 0; i < fm.nx; i++ {
			for j := 0; j < fm.nx; j++ {
				dst.Set(i, j, e.At(i, j)*cmplx.Exp(sign*slice[j]))
			}
		}
	} else {
		e := fm.expKinv[s]
		for i := 0; i < fm.nx; i++ {
			phase := cmplx.Exp(sign * slice[i])
			for j := 0; j < fm.nx; j++ {
				dst.Set(i, j, phase*e.At(i, j))
			}
		}
	}
	return dst
}

// P builds the diagonal block of Q into dst. It is independent of the field
// and identical for every time slice.
func (fm *FermiMatrix) P(dst *zmat.Dense) *zmat.Dense {
	if fm.hopping == ExpHopping {
		// P = I + E_p * E_h^T.
		eht := zmat.Transpose(nil, fm.expK[Hole])
		dst = zmat.Mul(block(dst, fm.nx), fm.expK[Particle], eht)
		for i := 0; i < fm.nx; i++ {
			dst.Set(i, i, dst.At(i, i)+1)
		}
		return dst
	}

	dst = block(dst, fm.nx)
	var kk mat.Dense
	kk.Mul(fm.kappa, fm.kappa)
	sk := float64(fm.sigmaKappa)
	lin := sk*(1+fm.mu) + (1 - fm.mu)
	for i := 0; i < fm.nx; i++ {
		for j := 0; j < fm.nx; j++ {
			v := -lin*fm.kappa.At(i, j) + sk*kk.At(i, j)
			if i == j {
				v += 2 - fm.mu*fm.mu
			}
			dst.Set(i, j, complex(v, 0))
		}
	}
	return dst
}

// Tplus builds the connector block of Q coupling slice tp to tp-1 into dst.
// The row scaling carries the antiperiodic sign flip at tp = 0.
func (fm *FermiMatrix) Tplus(dst *zmat.Dense, tp int, phi []complex128) *zmat.Dense {
	nt := fm.nt(phi)
	tm1 := (tp - 1 + nt) % nt
	a := complex(1, 0)
	if tp == 0 {
		a = -1
	}
	slice := spacevec(phi, tm1, fm.nx)
	dst = block(dst, fm.nx)

	if fm.hopping == ExpHopping {
		e := fm.expK[Particle]
		for i := 0; i < fm.nx; i++ {
			for j := 0; j < fm.nx; j++ {
				dst.Set(i, j, -a*e.At(i, j)*cmplx.Exp(complex(0, 1)*slice[j]))
			}
		}
		return dst
	}

	sk := float64(fm.sigmaKappa)
	for x := 0; x < fm.nx; x++ {
		row := a * cmplx.Exp(complex(0, 1)*slice[x])
		for j := 0; j < fm.nx; j++ {
			v := sk * fm.kappa.At(x, j)
			if x == j {
				v -= 1 - fm.mu
			}
			dst.Set(x, j, row*complex(v, 0))
		}
	}
	return dst
}

// Tminus builds the connector block of Q coupling slice tp to tp+1 into dst.
// The column scaling carries the antiperiodic sign flip at tp = nt-1.
func (fm *FermiMatrix) Tminus(dst *zmat.Dense, tp int, phi []complex128) *zmat.Dense {
	nt := fm.nt(phi)
	a := complex(1, 0)
	if tp == nt-1 {
		a = -1
	}
	slice := spacevec(phi, tp, fm.nx)
	dst = block(dst, fm.nx)

	if fm.hopping == ExpHopping {
		e := fm.expK[Hole]
		for i := 0; i < fm.nx; i++ {
			phase := -a * cmplx.Exp(complex(0, -1)*slice[i])
			for j := 0; j < fm.nx; j++ {
				dst.Set(i, j, phase*e.At(j, i))
			}
		}
		return dst
	}

	for x := 0; x < fm.nx; x++ {
		col := a * cmplx.Exp(complex(0, -1)*slice[x])
		for i := 0; i < fm.nx; i++ {
			v := fm.kappa.At(i, x)
			if i == x {
				v -= 1 + fm.mu
			}
			dst.Set(i, x, complex(v, 0)*col)
		}
	}
	return dst
}

// M assembles the dense fermion matrix M for one species: K on the block
// diagonal, -F on the lower block subdiagonal, and the antiperiodic
// wraparound +F(0) in the first block row. Verification and fallback only;
// the hot paths never form M.
func (fm *FermiMatrix) M(dst *zmat.Dense, phi []complex128, s Species) *zmat.Dense {
	nt := fm.nt(phi)
	nx := fm.nx
	if dst == nil {
		dst = zmat.New(nx*nt, nx*nt)
	} else {
		dst.Reset(nx*nt, nx*nt)
	}

	k := fm.K(nil, s)
	f := fm.F(nil, 0, phi, s, false)
	neg := zmat.New(nx, nx)

	dst.SetSub(0, 0, k)
	// Adding rather than setting keeps nt = 1 correct, where the wraparound
	// lands on the diagonal block.
	dst.AddSub(0, (nt-1)*nx, f)
	for tp := 1; tp < nt; tp++ {
		fm.F(f, tp, phi, s, false)
		zmat.Scale(neg, -1, f)
		dst.SetSub(tp*nx, (tp-1)*nx, neg)
		dst.SetSub(tp*nx, tp*nx, k)
	}
	return dst
}

// Q assembles the dense block-cyclic-tridiagonal matrix Q. Verification and
// fallback only; the factorization engine never forms Q.
func (fm *FermiMatrix) Q(dst *zmat.Dense, phi []complex128) *zmat.Dense {
	nt := fm.nt(phi)
	nx := fm.nx
	if dst == nil {
		dst = zmat.New(nx*nt, nx*nt)
	} else {
		dst.Reset(nx*nt, nx*nt)
	}

	p := fm.P(nil)
	t := zmat.New(nx, nx)
	for tp := 0; tp < nt; tp++ {
		dst.SetSub(tp*nx, tp*nx, p)
		fm.Tplus(t, tp, phi)
		dst.AddSub(tp*nx, ((tp+nt-1)%nt)*nx, t)
		fm.Tminus(t, tp, phi)
		dst.AddSub(tp*nx, ((tp+1)%nt)*nx, t)
	}
	return dst
}

// Kinv returns K^-1 and log(det(K^-1)) for one species, computing and
// caching them on first use. The returned matrix is shared with the cache;
// treat it as read-only.
func (fm *FermiMatrix) Kinv(s Species) (*zmat.Dense, complex128, error) {
	if !fm.kinvOK[s] {
		k := fm.K(nil, s)
		var f zmat.LU
		if err := f.Factorize(k); err != nil {
			return nil, 0, errors.Wrap(err, "")
		}
		fm.kinv[s] = f.Inverse(nil)
		fm.ldKinv[s] = -f.LogDet()
		fm.kinvOK[s] = true
	}
	return fm.kinv[s], fm.ldKinv[s], nil
}
