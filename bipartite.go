package hubbard

import "gonum.org/v1/gonum/mat"

// isBipartite reports whether the hopping graph admits a two-coloring.
// Nonzero entries of kappa are the edges. Isolated sites are fine.
func isBipartite(kappa *mat.Dense) bool {
	n, _ := kappa.Dims()
	const uncolored = -1
	color := make([]int, n)
	for i := range color {
		color[i] = uncolored
	}

	queue := make([]int, 0, n)
	for start := 0; start < n; start++ {
		if color[start] != uncolored {
			continue
		}
		color[start] = 0
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for w := 0; w < n; w++ {
				if kappa.At(v, w) == 0 {
					continue
				}
				switch color[w] {
				case uncolored:
					color[w] = 1 - color[v]
					queue = append(queue, w)
				case color[v]:
					return false
				}
			}
		}
	}
	return true
}

// holeShortcutPossible reports whether det(M_h) = conj(det(M_p)), which
// holds on a bipartite lattice at zero chemical potential with
// sigmaKappa = +1.
func holeShortcutPossible(fm *FermiMatrix) bool {
	return fm.mu == 0 && fm.sigmaKappa == 1 && isBipartite(fm.kappa)
}
