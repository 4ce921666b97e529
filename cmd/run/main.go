// Command run generates an ensemble of auxiliary field configurations for
// the Hubbard model on a ring lattice with hybrid Monte Carlo, stores the
// trajectories in a SQLite database and plots the action trace.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"hubbard"
	"hubbard/store"
)

const (
	fnameEnsemble = "ensemble.db"
	fnameTrace    = "action.png"
)

var (
	runDir = flag.String("d", filepath.Join("runs", "hubbard"), "run directory")
	nx     = flag.Int("nx", 4, "number of spatial sites on the ring")
	nt     = flag.Int("nt", 8, "number of time slices")
	beta   = flag.Float64("beta", 4, "inverse temperature")
	u      = flag.Float64("u", 2, "on-site interaction")
	mu     = flag.Float64("mu", 0, "chemical potential")
	alg    = flag.String("alg", "single", "determinant algorithm, single or square")
	ntherm = flag.Int("ntherm", 100, "thermalization trajectories")
	ntraj  = flag.Int("ntraj", 500, "production trajectories")
	nleap  = flag.Int("nleap", 8, "leapfrog steps per trajectory")
	seed   = flag.Uint64("seed", 0, "random seed")
)

// ringKappa builds the hopping matrix of a one dimensional periodic chain,
// scaled by the time step beta/nt.
func ringKappa(nx int, delta float64) *mat.Dense {
	kappa := mat.NewDense(nx, nx, nil)
	for i := 0; i < nx; i++ {
		j := (i + 1) % nx
		kappa.Set(i, j, delta)
		kappa.Set(j, i, delta)
	}
	return kappa
}

func plotTrace(fpath string, acts []float64) error {
	p := plot.New()
	p.Title.Text = "action trace"
	p.X.Label.Text = "trajectory"
	p.Y.Label.Text = "Re S"

	pts := make(plotter.XYs, len(acts))
	for i, a := range acts {
		pts[i].X = float64(i)
		pts[i].Y = a
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "")
	}
	p.Add(line)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, fpath); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	if err := os.MkdirAll(*runDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	delta := *beta / float64(*nt)
	fm, err := hubbard.NewFermiMatrix(ringKappa(*nx, delta), *mu*delta, 1, hubbard.DiaHopping)
	if err != nil {
		return errors.Wrap(err, "")
	}

	algorithm := hubbard.DirectSingle
	if *alg == "square" {
		algorithm = hubbard.DirectSquare
	}
	if algorithm == hubbard.DirectSingle && *mu != 0 {
		return errors.Errorf("algorithm single requires mu = 0, use -alg square")
	}
	act, err := hubbard.NewAction(fm, algorithm, hubbard.ParticleHole)
	if err != nil {
		return errors.Wrap(err, "")
	}
	log.Printf("nx=%d nt=%d beta=%f u=%f mu=%f alg=%s shortcut=%v", *nx, *nt, *beta, *u, *mu, *alg, act.ShortcutForHoles())

	hmc := hubbard.NewHMC(act, *u*delta, *seed, hubbard.NewHMCOptions().NLeapfrog(*nleap))
	phi := hmc.HotStart(*nx * *nt)

	for i := 0; i < *ntherm; i++ {
		tr, err := hmc.Step(phi)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("thermalization %d", i))
		}
		phi = tr.Phi
	}

	st, err := store.Open(filepath.Join(*runDir, fnameEnsemble))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer st.Close()

	accepted := 0
	acts := make([]float64, 0, *ntraj)
	for i := 0; i < *ntraj; i++ {
		tr, err := hmc.Step(phi)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("trajectory %d", i))
		}
		phi = tr.Phi
		if tr.Accepted {
			accepted++
		}
		acts = append(acts, real(tr.Action))

		row := store.Row{ID: i, Phi: tr.Phi, Action: tr.Action, Accepted: tr.Accepted}
		if err := st.Put(row); err != nil {
			return errors.Wrap(err, fmt.Sprintf("trajectory %d", i))
		}
		if (i+1)%100 == 0 {
			log.Printf("trajectory %d, acceptance %.3f", i+1, float64(accepted)/float64(i+1))
		}
	}

	if err := plotTrace(filepath.Join(*runDir, fnameTrace), acts); err != nil {
		return errors.Wrap(err, "")
	}

	var mean float64
	for _, a := range acts {
		mean += a
	}
	mean /= float64(len(acts))
	fmt.Printf("trajectories,acceptance,mean_action\n")
	fmt.Printf("%d,%f,%f\n", *ntraj, float64(accepted)/float64(*ntraj), mean)
	return nil
}
