package zmat

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
)

// LU holds an LU factorization with partial pivoting, P*A = L*U.
// The factors are packed in a single matrix, L below the diagonal with an
// implicit unit diagonal, U on and above it.
type LU struct {
	n    int
	lu   []complex128
	piv  []int
	swap int
}

// Factorize computes the factorization of a, leaving a untouched.
// A zero pivot is reported as an error; the factorization is unusable then.
func (f *LU) Factorize(a *Dense) error {
	if a.rows != a.cols {
		return errors.Errorf("malformed matrix: %dx%d is not square", a.rows, a.cols)
	}
	f.n = a.rows
	if cap(f.lu) < len(a.data) {
		f.lu = make([]complex128, len(a.data))
	}
	f.lu = f.lu[:len(a.data)]
	copy(f.lu, a.data)
	if cap(f.piv) < f.n {
		f.piv = make([]int, f.n)
	}
	f.piv = f.piv[:f.n]

	var err error
	f.swap, err = lufactor(f.lu, f.n, f.piv)
	return err
}

// lufactor factors data in place with partial pivoting. It returns the
// number of row swaps performed.
func lufactor(data []complex128, n int, piv []int) (int, error) {
	swaps := 0
	for k := 0; k < n; k++ {
		// Pivot on the largest remaining entry in column k.
		p := k
		pmax := cabs(data[k*n+k])
		for i := k + 1; i < n; i++ {
			if v := cabs(data[i*n+k]); v > pmax {
				p, pmax = i, v
			}
		}
		piv[k] = p
		if pmax == 0 {
			return swaps, errors.Errorf("singular pivot block: zero pivot at %d", k)
		}
		if p != k {
			for j := 0; j < n; j++ {
				data[k*n+j], data[p*n+j] = data[p*n+j], data[k*n+j]
			}
			swaps++
		}

		pivot := data[k*n+k]
		for i := k + 1; i < n; i++ {
			l := data[i*n+k] / pivot
			data[i*n+k] = l
			if l == 0 {
				continue
			}
			for j := k + 1; j < n; j++ {
				data[i*n+j] -= l * data[k*n+j]
			}
		}
	}
	return swaps, nil
}

// logdetFactors sums the logarithms of the U diagonal and corrects for the
// sign of the permutation. The imaginary part is deliberately not reduced to
// the principal branch; callers sum contributions first and project once.
func logdetFactors(data []complex128, n, swaps int) complex128 {
	var res complex128
	for i := 0; i < n; i++ {
		res += cmplx.Log(data[i*n+i])
	}
	if swaps%2 != 0 {
		res += complex(0, math.Pi)
	}
	return res
}

// LogDet returns log(det(A)) from the factorization. The imaginary part is
// not projected; see ToFirstLogBranch.
func (f *LU) LogDet() complex128 {
	return logdetFactors(f.lu, f.n, f.swap)
}

// SolveVec solves A*x = b, storing x in dst. dst may alias b.
func (f *LU) SolveVec(dst, b []complex128) []complex128 {
	n := f.n
	if len(b) != n {
		panic("malformed dimensions")
	}
	if dst == nil {
		dst = make([]complex128, n)
	} else if len(dst) != n {
		panic("malformed dimensions")
	}
	if &dst[0] != &b[0] {
		copy(dst, b)
	}
	// Apply row permutation, then forward and back substitution.
	for k := 0; k < n; k++ {
		if p := f.piv[k]; p != k {
			dst[k], dst[p] = dst[p], dst[k]
		}
	}
	for i := 1; i < n; i++ {
		var s complex128
		for j := 0; j < i; j++ {
			s += f.lu[i*n+j] * dst[j]
		}
		dst[i] -= s
	}
	for i := n - 1; i >= 0; i-- {
		var s complex128
		for j := i + 1; j < n; j++ {
			s += f.lu[i*n+j] * dst[j]
		}
		dst[i] = (dst[i] - s) / f.lu[i*n+i]
	}
	return dst
}

// Inverse stores the inverse of the factored matrix in dst.
func (f *LU) Inverse(dst *Dense) *Dense {
	n := f.n
	dst = use(dst, n, n)
	col := make([]complex128, n)
	for j := 0; j < n; j++ {
		clear(col)
		col[j] = 1
		f.SolveVec(col, col)
		for i := 0; i < n; i++ {
			dst.data[i*n+j] = col[i]
		}
	}
	return dst
}

// Inv stores the inverse of a in dst.
func Inv(dst, a *Dense) (*Dense, error) {
	var f LU
	if err := f.Factorize(a); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return f.Inverse(dst), nil
}

// LogDet returns log(det(a)), leaving a untouched. The imaginary part is not
// projected; callers sum all contributions and apply ToFirstLogBranch once.
func LogDet(a *Dense) (complex128, error) {
	var f LU
	if err := f.Factorize(a); err != nil {
		return 0, errors.Wrap(err, "")
	}
	return f.LogDet(), nil
}

// LogDetDestroy is LogDet but factors a in place, overwriting its entries
// with the LU factors. It avoids the copy at the price of consuming a.
func LogDetDestroy(a *Dense) (complex128, error) {
	if a.rows != a.cols {
		return 0, errors.Errorf("malformed matrix: %dx%d is not square", a.rows, a.cols)
	}
	piv := make([]int, a.rows)
	swaps, err := lufactor(a.data, a.rows, piv)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return logdetFactors(a.data, a.rows, swaps), nil
}
