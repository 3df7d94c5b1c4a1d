package tracker

import (
	"fmt"
)

// lapLarge is treated as infinity when searching reduced costs
const lapLarge = 1000000.0

// lapSolver solves the dense Linear Assignment Problem using the
// Jonker-Volgenant algorithm
type lapSolver struct {
	n    int
	cost [][]float64
	// x is the column assigned to each row
	x []int
	// y is the row assigned to each column
	y []int
	// v holds the column dual values
	v []float64
	// free holds the rows not yet assigned
	free []int
}

// solveLAP finds the minimum cost assignment of a square cost matrix.  It
// returns the column assigned to each row and the row assigned to each column
func solveLAP(cost [][]float64) ([]int, []int, error) {

	n := len(cost)

	for i, row := range cost {
		if len(row) != n {
			return nil, nil, fmt.Errorf("cost matrix must be square, row %d has %d columns for %d rows",
				i, len(row), n)
		}
	}

	s := &lapSolver{
		n:    n,
		cost: cost,
		x:    make([]int, n),
		y:    make([]int, n),
		v:    make([]float64, n),
		free: make([]int, n),
	}

	if n == 0 {
		return s.x, s.y, nil
	}

	nFree := s.columnReduction()

	for i := 0; nFree > 0 && i < 2; i++ {
		nFree = s.augmentingRowReduction(nFree)
	}

	if nFree > 0 {
		if err := s.augment(nFree); err != nil {
			return nil, nil, err
		}
	}

	return s.x, s.y, nil
}

// columnReduction assigns each column to its cheapest row and transfers the
// reduction to rows with a unique assignment.  It returns the number of rows
// left free
func (s *lapSolver) columnReduction() int {

	unique := make([]bool, s.n)

	for i := 0; i < s.n; i++ {
		s.x[i] = -1
		s.v[i] = lapLarge
		s.y[i] = 0
		unique[i] = true
	}

	for i := 0; i < s.n; i++ {
		for j := 0; j < s.n; j++ {
			if c := s.cost[i][j]; c < s.v[j] {
				s.v[j] = c
				s.y[j] = i
			}
		}
	}

	// a row that is the cheapest for several columns keeps only the lowest
	// numbered one
	for j := s.n - 1; j >= 0; j-- {
		i := s.y[j]

		if s.x[i] < 0 {
			s.x[i] = j
		} else {
			unique[i] = false
			s.y[j] = -1
		}
	}

	nFree := 0

	for i := 0; i < s.n; i++ {

		if s.x[i] < 0 {
			s.free[nFree] = i
			nFree++
			continue
		}

		if !unique[i] {
			continue
		}

		j := s.x[i]
		minVal := lapLarge

		for j2 := 0; j2 < s.n; j2++ {
			if j2 == j {
				continue
			}

			if c := s.cost[i][j2] - s.v[j2]; c < minVal {
				minVal = c
			}
		}

		s.v[j] -= minVal
	}

	return nFree
}

// augmentingRowReduction tries to assign free rows by lowering column duals.
// It returns the number of rows still free
func (s *lapSolver) augmentingRowReduction(nFree int) int {

	current := 0
	newFree := 0
	rrCnt := 0

	for current < nFree {

		rrCnt++
		freeI := s.free[current]
		current++

		// find the lowest and second lowest reduced cost for the row
		j1 := 0
		v1 := s.cost[freeI][0] - s.v[0]
		j2 := -1
		v2 := lapLarge

		for j := 1; j < s.n; j++ {
			c := s.cost[freeI][j] - s.v[j]

			if c < v2 {
				if c >= v1 {
					v2 = c
					j2 = j
				} else {
					v2 = v1
					v1 = c
					j2 = j1
					j1 = j
				}
			}
		}

		i0 := s.y[j1]
		v1New := s.v[j1] - (v2 - v1)
		v1Lowers := v1New < s.v[j1]

		if rrCnt < current*s.n {
			if v1Lowers {
				s.v[j1] = v1New
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = s.y[j2]
			}

			if i0 >= 0 {
				if v1Lowers {
					current--
					s.free[current] = i0
				} else {
					s.free[newFree] = i0
					newFree++
				}
			}

		} else if i0 >= 0 {
			s.free[newFree] = i0
			newFree++
		}

		s.x[freeI] = j1
		s.y[j1] = freeI
	}

	return newFree
}

// augment assigns each remaining free row along a shortest augmenting path
func (s *lapSolver) augment(nFree int) error {

	pred := make([]int, s.n)

	for _, freeI := range s.free[:nFree] {

		j := s.shortestPath(freeI, pred)

		if j < 0 || j >= s.n {
			return fmt.Errorf("augmenting path for row %d ended at invalid column %d", freeI, j)
		}

		// flip assignments back along the path to the free row
		i := -1

		for k := 0; i != freeI; k++ {
			if k >= s.n {
				return fmt.Errorf("augmenting path for row %d did not terminate", freeI)
			}

			i = pred[j]
			s.y[j] = i
			j, s.x[i] = s.x[i], j
		}
	}

	return nil
}

// shortestPath runs a single modified Dijkstra search from startI and returns
// the unassigned column the path ends at.  This is a dense matrix version
func (s *lapSolver) shortestPath(startI int, pred []int) int {

	lo := 0
	hi := 0
	nReady := 0
	finalJ := -1
	cols := make([]int, s.n)
	d := make([]float64, s.n)

	for j := 0; j < s.n; j++ {
		cols[j] = j
		pred[j] = startI
		d[j] = s.cost[startI][j] - s.v[j]
	}

	for finalJ == -1 {

		// no columns left on the SCAN list
		if lo == hi {
			nReady = lo
			hi = s.findMinimum(lo, d, cols)

			for k := lo; k < hi; k++ {
				if j := cols[k]; s.y[j] < 0 {
					finalJ = j
				}
			}
		}

		if finalJ == -1 {
			finalJ = s.scan(&lo, &hi, d, cols, pred)
		}
	}

	mind := d[cols[lo]]

	for k := 0; k < nReady; k++ {
		j := cols[k]
		s.v[j] += d[j] - mind
	}

	return finalJ
}

// findMinimum moves the columns with the minimum d[j] to the SCAN list
// starting at lo and returns the new end of the list
func (s *lapSolver) findMinimum(lo int, d []float64, cols []int) int {

	hi := lo + 1
	mind := d[cols[lo]]

	for k := hi; k < s.n; k++ {
		j := cols[k]

		if d[j] <= mind {
			if d[j] < mind {
				hi = lo
				mind = d[j]
			}

			cols[k] = cols[hi]
			cols[hi] = j
			hi++
		}
	}

	return hi
}

// scan takes columns off the SCAN list and uses them to lower d of the
// columns not yet reached.  It returns an unassigned column reached at minimum distance or
// -1 when the SCAN list is exhausted
func (s *lapSolver) scan(lo, hi *int, d []float64, cols, pred []int) int {

	for *lo != *hi {

		j := cols[*lo]
		(*lo)++
		i := s.y[j]
		mind := d[j]
		h := s.cost[i][j] - s.v[j] - mind

		for k := *hi; k < s.n; k++ {
			j = cols[k]
			credIJ := s.cost[i][j] - s.v[j] - h

			if credIJ < d[j] {
				d[j] = credIJ
				pred[j] = i

				if credIJ == mind {
					if s.y[j] < 0 {
						return j
					}

					cols[k] = cols[*hi]
					cols[*hi] = j
					(*hi)++
				}
			}
		}
	}

	return -1
}
