package hubbard

import (
	"fmt"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestIsBipartite(t *testing.T) {
	t.Parallel()
	triangle := mat.NewDense(3, 3, []float64{
		0, 1, 1,
		1, 0, 1,
		1, 1, 0,
	})
	ring5 := ringKappa(5, 1)
	withIsolated := mat.NewDense(3, 3, []float64{
		0, 1, 0,
		1, 0, 0,
		0, 0, 0,
	})
	tests := []struct {
		kappa *mat.Dense
		want  bool
	}{
		{kappa: ringKappa(4, 0.5), want: true},
		{kappa: triangle, want: false},
		{kappa: ring5, want: false},
		{kappa: withIsolated, want: true},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Parallel()
			if got := isBipartite(test.kappa); got != test.want {
				t.Fatalf("%v, expected %v", got, test.want)
			}
		})
	}
}
