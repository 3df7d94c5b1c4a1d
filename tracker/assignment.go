package tracker

import (
	"fmt"
)

// linearAssignment pairs the rows and columns of a rectangular cost matrix
// with LAPJV.  Pairs costing more than costLimit are left unmatched
func linearAssignment(cost [][]float64, nRows, nCols int,
	costLimit float64) (matches [][2]int, unmatchedRows, unmatchedCols []int, err error) {

	if nRows == 0 || nCols == 0 {
		for i := 0; i < nRows; i++ {
			unmatchedRows = append(unmatchedRows, i)
		}
		for j := 0; j < nCols; j++ {
			unmatchedCols = append(unmatchedCols, j)
		}
		return
	}

	rowsol, colsol, err := solveExtended(cost, nRows, nCols, costLimit)

	if err != nil {
		return nil, nil, nil, fmt.Errorf("linear assignment: %w", err)
	}

	for i, j := range rowsol {
		if j >= 0 {
			matches = append(matches, [2]int{i, j})
		} else {
			unmatchedRows = append(unmatchedRows, i)
		}
	}

	for j, i := range colsol {
		if i < 0 {
			unmatchedCols = append(unmatchedCols, j)
		}
	}

	return
}

// solveExtended embeds the nRows x nCols cost matrix in a square matrix of
// size nRows+nCols.  Every row and column gets a dummy partner costing
// costLimit/2, so a real pair is only chosen when it costs less than
// costLimit.  Assignments to dummies are returned as -1
func solveExtended(cost [][]float64, nRows, nCols int,
	costLimit float64) (rowsol, colsol []int, err error) {

	n := nRows + nCols
	extended := make([][]float64, n)

	for i := range extended {
		extended[i] = make([]float64, n)

		for j := range extended[i] {
			switch {
			case i < nRows && j < nCols:
				extended[i][j] = cost[i][j]
			case i >= nRows && j >= nCols:
				extended[i][j] = 0
			default:
				extended[i][j] = costLimit / 2
			}
		}
	}

	x, y, err := solveLAP(extended)

	if err != nil {
		return nil, nil, err
	}

	rowsol = make([]int, nRows)
	colsol = make([]int, nCols)

	for i := 0; i < nRows; i++ {
		rowsol[i] = x[i]

		if rowsol[i] >= nCols {
			rowsol[i] = -1
		}
	}

	for j := 0; j < nCols; j++ {
		colsol[j] = y[j]

		if colsol[j] >= nRows {
			colsol[j] = -1
		}
	}

	return rowsol, colsol, nil
}
