package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestLattice(t *testing.T) {
	tests := []struct {
		name    string
		box     Box
		n       int
		first   r3.Vec
		spacing float64
	}{
		{"3D cube", NewBox(4, 4, 4), 8, r3.Vec{X: -1, Y: -1, Z: -1}, 2},
		{"3D partial", NewBox(6, 6, 6), 20, r3.Vec{X: -2, Y: -2, Z: -2}, 2},
		{"2D square", NewBox2D(6, 6), 9, r3.Vec{X: -2, Y: -2}, 2},
		{"3D perfect cube 125", NewBox(10, 10, 10), 125, r3.Vec{X: -4, Y: -4, Z: -4}, 2},
		{"3D perfect cube 343", NewBox(14, 14, 14), 343, r3.Vec{X: -6, Y: -6, Z: -6}, 2},
		{"3D perfect cube 1000", NewBox(10, 10, 10), 1000, r3.Vec{X: -4.5, Y: -4.5, Z: -4.5}, 1},
		{"2D perfect square 49", NewBox2D(7, 7), 49, r3.Vec{X: -3, Y: -3}, 1},
		{"3D one site", NewBox(2, 2, 2), 1, r3.Vec{}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pts := Lattice(tt.box, tt.n)
			require.Len(t, pts, tt.n)
			assertVecInDelta(t, tt.first, pts[0], 1e-12)
			if tt.n > 1 {
				// x runs fastest
				assert.InDelta(t, tt.spacing, pts[1].X-pts[0].X, 1e-12)
			}
			// the last site fills the final slab: no empty tail
			last := tt.box.Fractional(pts[tt.n-1])
			if tt.box.Dimensions == 3 {
				assert.Greater(t, last.Z, 1-tt.spacing/tt.box.L.Z)
			} else {
				assert.Greater(t, last.Y, 1-tt.spacing/tt.box.L.Y)
			}
			for _, p := range pts {
				f := tt.box.Fractional(p)
				assert.True(t, f.X > 0 && f.X < 1 && f.Y > 0 && f.Y < 1)
				if tt.box.Dimensions == 2 {
					assert.Zero(t, p.Z)
				}
			}
		})
	}
}
