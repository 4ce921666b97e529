package hubbard

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
)

// HMCOptions are options for the hybrid Monte Carlo evolution.
type HMCOptions struct {
	nLeapfrog  int
	trajLength float64
}

// NewHMCOptions returns the default evolution options.
func NewHMCOptions() HMCOptions {
	opt := HMCOptions{}
	opt.nLeapfrog = 8
	opt.trajLength = 1
	return opt
}

// NLeapfrog sets the number of leapfrog steps per trajectory.
func (opt HMCOptions) NLeapfrog(n int) HMCOptions {
	opt.nLeapfrog = n
	return opt
}

// TrajectoryLength sets the molecular dynamics time per trajectory.
func (opt HMCOptions) TrajectoryLength(l float64) HMCOptions {
	opt.trajLength = l
	return opt
}

// HMC evolves a real auxiliary field under the action
//
//	S(phi) = sum(phi^2) / (2*u) + S_f(phi)
//
// with leapfrog molecular dynamics and a Metropolis accept step. u is the
// on-site interaction in lattice units, u = U*beta/nt.
type HMC struct {
	action *Action
	u      float64
	rng    *rand.Rand
	opt    HMCOptions
}

// NewHMC returns an evolver for the given fermion action and interaction.
func NewHMC(action *Action, u float64, seed uint64, options ...HMCOptions) *HMC {
	opt := NewHMCOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	return &HMC{
		action: action,
		u:      u,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		opt:    opt,
	}
}

// Trajectory is the outcome of one molecular dynamics trajectory.
type Trajectory struct {
	Phi      []complex128
	Action   complex128
	Accepted bool
}

// HotStart draws an initial field from the gaussian part of the action.
func (h *HMC) HotStart(n int) []complex128 {
	phi := make([]complex128, n)
	std := math.Sqrt(h.u)
	for i := range phi {
		phi[i] = complex(std*h.rng.NormFloat64(), 0)
	}
	return phi
}

// eval returns the full action at phi.
func (h *HMC) eval(phi []complex128) (complex128, error) {
	sf, err := h.action.Eval(phi)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	var gauss float64
	for _, v := range phi {
		gauss += real(v) * real(v)
	}
	return sf + complex(gauss/(2*h.u), 0), nil
}

// force returns -dS/dphi at phi, restricted to the real axis along which
// the field evolves.
func (h *HMC) force(phi []complex128) ([]float64, error) {
	ff, err := h.action.Force(phi)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	f := make([]float64, len(phi))
	for i, v := range ff {
		f[i] = real(v) - real(phi[i])/h.u
	}
	return f, nil
}

// Step runs one trajectory from phi and returns the next state. phi is left
// untouched; on rejection the returned field is a copy of it.
func (h *HMC) Step(phi []complex128) (Trajectory, error) {
	n := len(phi)
	eps := h.opt.trajLength / float64(h.opt.nLeapfrog)

	pi := make([]float64, n)
	var kin0 float64
	for i := range pi {
		pi[i] = h.rng.NormFloat64()
		kin0 += pi[i] * pi[i] / 2
	}
	s0, err := h.eval(phi)
	if err != nil {
		return Trajectory{}, errors.Wrap(err, "")
	}

	// Leapfrog: half step in pi, alternate full steps, half step in pi.
	cur := append([]complex128(nil), phi...)
	f, err := h.force(cur)
	if err != nil {
		return Trajectory{}, errors.Wrap(err, "")
	}
	for i := range pi {
		pi[i] += eps / 2 * f[i]
	}
	for step := 0; step < h.opt.nLeapfrog; step++ {
		for i := range cur {
			cur[i] += complex(eps*pi[i], 0)
		}
		if f, err = h.force(cur); err != nil {
			return Trajectory{}, errors.Wrap(err, "")
		}
		scale := eps
		if step == h.opt.nLeapfrog-1 {
			scale = eps / 2
		}
		for i := range pi {
			pi[i] += scale * f[i]
		}
	}

	var kin1 float64
	for _, p := range pi {
		kin1 += p * p / 2
	}
	s1, err := h.eval(cur)
	if err != nil {
		return Trajectory{}, errors.Wrap(err, "")
	}

	dh := kin1 + real(s1) - kin0 - real(s0)
	if dh <= 0 || h.rng.Float64() < math.Exp(-dh) {
		return Trajectory{Phi: cur, Action: s1, Accepted: true}, nil
	}
	return Trajectory{Phi: append([]complex128(nil), phi...), Action: s0, Accepted: false}, nil
}
