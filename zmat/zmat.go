// Package zmat provides the dense complex matrix blocks and spacetime
// vectors consumed by the fermion determinant engine.
//
// Blocks are small (nx by nx) and row-major. Every function that takes a
// dst either fills it or, when dst is nil, allocates a fresh matrix, so
// callers on hot paths can reuse allocations.
package zmat

import (
	"fmt"
	"math"
	"strings"
)

// Dense is a dense row-major complex matrix.
type Dense struct {
	rows int
	cols int
	data []complex128
}

// New returns a zeroed rows by cols matrix.
func New(rows, cols int) *Dense {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("malformed dimensions %dx%d", rows, cols))
	}
	return &Dense{rows: rows, cols: cols, data: make([]complex128, rows*cols)}
}

// Eye returns the n by n identity.
func Eye(n int) *Dense {
	m := New(n, n)
	for i := 0; i < n; i++ {
		m.data[i*n+i] = 1
	}
	return m
}

// FromRows builds a matrix from explicit rows.
func FromRows(rows [][]complex128) *Dense {
	m := New(len(rows), len(rows[0]))
	for i, row := range rows {
		if len(row) != m.cols {
			panic(fmt.Sprintf("malformed dimensions: row %d has %d columns, expected %d", i, len(row), m.cols))
		}
		copy(m.data[i*m.cols:(i+1)*m.cols], row)
	}
	return m
}

func (m *Dense) Rows() int { return m.rows }
func (m *Dense) Cols() int { return m.cols }

func (m *Dense) At(i, j int) complex128 {
	return m.data[i*m.cols+j]
}

func (m *Dense) Set(i, j int, v complex128) {
	m.data[i*m.cols+j] = v
}

// Reset resizes m, reusing the backing slice if possible, and zeroes it.
func (m *Dense) Reset(rows, cols int) *Dense {
	n := rows * cols
	if cap(m.data) < n {
		m.data = make([]complex128, n)
	}
	m.data = m.data[:n]
	clear(m.data)
	m.rows, m.cols = rows, cols
	return m
}

// Clone returns a deep copy of m.
func (m *Dense) Clone() *Dense {
	c := New(m.rows, m.cols)
	copy(c.data, m.data)
	return c
}

// use returns dst resized for a rows by cols result, allocating when dst is
// nil. A dst that already has the right shape is returned as is, so in-place
// calls like Add(a, a, b) are safe.
func use(dst *Dense, rows, cols int) *Dense {
	if dst == nil {
		return New(rows, cols)
	}
	if dst.rows == rows && dst.cols == cols {
		return dst
	}
	return dst.Reset(rows, cols)
}

// Copy copies a into dst.
func Copy(dst, a *Dense) *Dense {
	dst = use(dst, a.rows, a.cols)
	copy(dst.data, a.data)
	return dst
}

// Add stores a+b in dst.
func Add(dst, a, b *Dense) *Dense {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("malformed dimensions %dx%d + %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	dst = use(dst, a.rows, a.cols)
	for i, v := range a.data {
		dst.data[i] = v + b.data[i]
	}
	return dst
}

// Sub stores a-b in dst.
func Sub(dst, a, b *Dense) *Dense {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("malformed dimensions %dx%d - %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	dst = use(dst, a.rows, a.cols)
	for i, v := range a.data {
		dst.data[i] = v - b.data[i]
	}
	return dst
}

// Scale stores c*a in dst.
func Scale(dst *Dense, c complex128, a *Dense) *Dense {
	dst = use(dst, a.rows, a.cols)
	for i, v := range a.data {
		dst.data[i] = c * v
	}
	return dst
}

// Mul stores a*b in dst. dst must not alias a or b.
func Mul(dst, a, b *Dense) *Dense {
	if a.cols != b.rows {
		panic(fmt.Sprintf("malformed dimensions %dx%d * %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	if dst == a || dst == b {
		panic("malformed dimensions: dst aliases an operand")
	}
	dst = use(dst, a.rows, b.cols)
	clear(dst.data)
	for i := 0; i < a.rows; i++ {
		arow := a.data[i*a.cols : (i+1)*a.cols]
		drow := dst.data[i*b.cols : (i+1)*b.cols]
		for k, av := range arow {
			if av == 0 {
				continue
			}
			brow := b.data[k*b.cols : (k+1)*b.cols]
			for j, bv := range brow {
				drow[j] += av * bv
			}
		}
	}
	return dst
}

// Transpose stores the transpose of a in dst. dst must not alias a.
func Transpose(dst, a *Dense) *Dense {
	if dst == a {
		panic("malformed dimensions: dst aliases an operand")
	}
	dst = use(dst, a.cols, a.rows)
	for i := 0; i < a.rows; i++ {
		for j := 0; j < a.cols; j++ {
			dst.data[j*a.rows+i] = a.data[i*a.cols+j]
		}
	}
	return dst
}

// MulVec stores a*x in dst, allocating when dst is nil.
func MulVec(dst []complex128, a *Dense, x []complex128) []complex128 {
	if a.cols != len(x) {
		panic(fmt.Sprintf("malformed dimensions %dx%d * %d", a.rows, a.cols, len(x)))
	}
	if dst == nil {
		dst = make([]complex128, a.rows)
	} else if len(dst) != a.rows {
		panic(fmt.Sprintf("malformed dimensions: dst length %d, expected %d", len(dst), a.rows))
	}
	for i := 0; i < a.rows; i++ {
		var s complex128
		row := a.data[i*a.cols : (i+1)*a.cols]
		for j, v := range row {
			s += v * x[j]
		}
		dst[i] = s
	}
	return dst
}

// Diag stores the main diagonal of a in dst.
func Diag(dst []complex128, a *Dense) []complex128 {
	n := min(a.rows, a.cols)
	if dst == nil {
		dst = make([]complex128, n)
	} else if len(dst) != n {
		panic(fmt.Sprintf("malformed dimensions: dst length %d, expected %d", len(dst), n))
	}
	for i := 0; i < n; i++ {
		dst[i] = a.data[i*a.cols+i]
	}
	return dst
}

// SetSub copies a into m starting at (r0, c0).
func (m *Dense) SetSub(r0, c0 int, a *Dense) {
	if r0+a.rows > m.rows || c0+a.cols > m.cols {
		panic(fmt.Sprintf("malformed dimensions: %dx%d block at (%d,%d) of %dx%d", a.rows, a.cols, r0, c0, m.rows, m.cols))
	}
	for i := 0; i < a.rows; i++ {
		copy(m.data[(r0+i)*m.cols+c0:(r0+i)*m.cols+c0+a.cols], a.data[i*a.cols:(i+1)*a.cols])
	}
}

// AddSub adds a into m starting at (r0, c0).
func (m *Dense) AddSub(r0, c0 int, a *Dense) {
	if r0+a.rows > m.rows || c0+a.cols > m.cols {
		panic(fmt.Sprintf("malformed dimensions: %dx%d block at (%d,%d) of %dx%d", a.rows, a.cols, r0, c0, m.rows, m.cols))
	}
	for i := 0; i < a.rows; i++ {
		mrow := m.data[(r0+i)*m.cols+c0:]
		arow := a.data[i*a.cols : (i+1)*a.cols]
		for j, v := range arow {
			mrow[j] += v
		}
	}
}

// SubMatrix stores the rows by cols block of a at (r0, c0) in dst.
func SubMatrix(dst, a *Dense, r0, c0, rows, cols int) *Dense {
	if r0+rows > a.rows || c0+cols > a.cols {
		panic(fmt.Sprintf("malformed dimensions: %dx%d block at (%d,%d) of %dx%d", rows, cols, r0, c0, a.rows, a.cols))
	}
	dst = use(dst, rows, cols)
	for i := 0; i < rows; i++ {
		copy(dst.data[i*cols:(i+1)*cols], a.data[(r0+i)*a.cols+c0:(r0+i)*a.cols+c0+cols])
	}
	return dst
}

// MaxAbsDiff returns the largest elementwise |a-b|.
func MaxAbsDiff(a, b *Dense) float64 {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("malformed dimensions %dx%d vs %dx%d", a.rows, a.cols, b.rows, b.cols))
	}
	var d float64
	for i, v := range a.data {
		d = math.Max(d, cabs(v-b.data[i]))
	}
	return d
}

// ToFirstLogBranch projects the imaginary part of x into (-pi, pi].
// It is meant to be applied exactly once, after all partial log-determinant
// contributions have been summed.
func ToFirstLogBranch(x complex128) complex128 {
	im := math.Mod(imag(x)+math.Pi, 2*math.Pi)
	if im <= 0 {
		im += 2 * math.Pi
	}
	return complex(real(x), im-math.Pi)
}

func cabs(v complex128) float64 {
	return math.Hypot(real(v), imag(v))
}

func (m *Dense) String() string {
	lines := make([]string, 0, m.rows)
	for i := 0; i < m.rows; i++ {
		cs := make([]string, 0, m.cols)
		for j := 0; j < m.cols; j++ {
			cs = append(cs, fmt.Sprintf("%v", m.data[i*m.cols+j]))
		}
		lines = append(lines, strings.Join(cs, "\t"))
	}
	return strings.Join(lines, "\n")
}
