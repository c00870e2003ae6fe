package replay

// inferTrackInterior marks the bins the animal actually visited.
//
// A bin is interior when at least one finite sample falls inside it. For two
// or more dimensions, empty bins fully enclosed by visited bins are interior
// as well: an empty bin stays exterior only if it connects to the grid border
// through face-adjacent empty bins.
func inferTrackInterior(position [][]float64, geometry BinGeometry) []bool {
	interior := make([]bool, geometry.NumBins())
	for _, row := range position {
		index, ok := geometry.locate(row)
		if !ok {
			continue
		}
		interior[geometry.flatIndex(index)] = true
	}
	if geometry.NumDims() > 1 {
		fillHoles(interior, geometry.shape)
	}
	return interior
}

// fillHoles flood-fills the empty region reachable from the border and
// marks every other empty bin as interior.
func fillHoles(interior []bool, shape []int) {
	n := len(interior)
	outside := make([]bool, n)
	queue := make([]int, 0)
	index := make([]int, len(shape))

	unravel := func(flat int) {
		for d := len(shape) - 1; d >= 0; d-- {
			index[d] = flat % shape[d]
			flat /= shape[d]
		}
	}
	ravel := func(idx []int) int {
		flat := 0
		for d := range shape {
			flat = flat*shape[d] + idx[d]
		}
		return flat
	}

	for flat := 0; flat < n; flat++ {
		if interior[flat] {
			continue
		}
		unravel(flat)
		onBorder := false
		for d := range shape {
			if index[d] == 0 || index[d] == shape[d]-1 {
				onBorder = true
				break
			}
		}
		if onBorder {
			outside[flat] = true
			queue = append(queue, flat)
		}
	}

	neighbor := make([]int, len(shape))
	for len(queue) > 0 {
		flat := queue[0]
		queue = queue[1:]
		unravel(flat)
		for d := range shape {
			for _, step := range [2]int{-1, 1} {
				copy(neighbor, index)
				neighbor[d] += step
				if neighbor[d] < 0 || neighbor[d] >= shape[d] {
					continue
				}
				next := ravel(neighbor)
				if interior[next] || outside[next] {
					continue
				}
				outside[next] = true
				queue = append(queue, next)
			}
		}
	}

	for flat := range interior {
		if !interior[flat] && !outside[flat] {
			interior[flat] = true
		}
	}
}
