package hubbard

import (
	"math"
	"testing"
)

func TestHMCStep(t *testing.T) {
	t.Parallel()
	fm, err := NewFermiMatrix(ringKappa(2, 0.5), 0, 1, DiaHopping)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	act, err := NewAction(fm, DirectSingle, ParticleHole)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	hmc := NewHMC(act, 1, 7, NewHMCOptions().NLeapfrog(4).TrajectoryLength(0.5))

	phi := hmc.HotStart(2 * 4)
	if len(phi) != 8 {
		t.Fatalf("%d, expected 8", len(phi))
	}
	for i := 0; i < 5; i++ {
		tr, err := hmc.Step(phi)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if len(tr.Phi) != len(phi) {
			t.Fatalf("%d, expected %d", len(tr.Phi), len(phi))
		}
		// The field evolves along the real axis.
		for j, v := range tr.Phi {
			if imag(v) != 0 {
				t.Fatalf("phi[%d] = %v has nonzero imaginary part", j, v)
			}
		}
		if math.IsNaN(real(tr.Action)) || math.IsInf(real(tr.Action), 0) {
			t.Fatalf("action %v", tr.Action)
		}
		phi = tr.Phi
	}
}

// TestHMCRejectionKeepsState checks that a rejected trajectory hands back
// the starting field.
func TestHMCRejectionKeepsState(t *testing.T) {
	t.Parallel()
	fm, err := NewFermiMatrix(ringKappa(2, 0.5), 0, 1, DiaHopping)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	act, err := NewAction(fm, DirectSingle, ParticleHole)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// A single huge leapfrog step makes the integrator so inaccurate that
	// rejections show up within a few trajectories.
	hmc := NewHMC(act, 1, 3, NewHMCOptions().NLeapfrog(1).TrajectoryLength(50))

	phi := hmc.HotStart(2 * 4)
	sawRejection := false
	for i := 0; i < 20 && !sawRejection; i++ {
		tr, err := hmc.Step(phi)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if !tr.Accepted {
			sawRejection = true
			for j := range phi {
				if tr.Phi[j] != phi[j] {
					t.Fatalf("rejected trajectory changed the field at %d", j)
				}
			}
		}
		phi = tr.Phi
	}
	if !sawRejection {
		t.Fatalf("no rejection in 20 trajectories with a divergent integrator")
	}
}

func TestHMCOptions(t *testing.T) {
	t.Parallel()
	opt := NewHMCOptions().NLeapfrog(13).TrajectoryLength(2.5)
	if opt.nLeapfrog != 13 || opt.trajLength != 2.5 {
		t.Fatalf("%+v", opt)
	}
	// Defaults stay untouched.
	def := NewHMCOptions()
	if def.nLeapfrog != 8 || def.trajLength != 1 {
		t.Fatalf("%+v", def)
	}
}
