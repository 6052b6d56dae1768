package parallel

import (
	"runtime"
	"sync"
)

// PrefixSum computes the inclusive prefix sum of values in place and returns
// the total. For large inputs the work is split into blocks: each block is
// summed independently, block offsets are accumulated sequentially, and the
// offsets are applied in a second parallel sweep.
func PrefixSum(values []int32, numWorkers int) int32 {
	n := len(values)
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if n < minChunk || numWorkers == 1 {
		var sum int32
		for i := range values {
			sum += values[i]
			values[i] = sum
		}
		return sum
	}

	chunk := (n + numWorkers - 1) / numWorkers
	if chunk < minChunk {
		chunk = minChunk
	}
	numChunks := (n + chunk - 1) / chunk
	blockSums := make([]int32, numChunks)

	var wg sync.WaitGroup
	for c := 0; c < numChunks; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			lo := c * chunk
			hi := lo + chunk
			if hi > n {
				hi = n
			}
			var sum int32
			for i := lo; i < hi; i++ {
				sum += values[i]
				values[i] = sum
			}
			blockSums[c] = sum
		}(c)
	}
	wg.Wait()

	var total int32
	for c := 0; c < numChunks; c++ {
		offset := total
		total += blockSums[c]
		blockSums[c] = offset
	}

	for c := 1; c < numChunks; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			lo := c * chunk
			hi := lo + chunk
			if hi > n {
				hi = n
			}
			offset := blockSums[c]
			for i := lo; i < hi; i++ {
				values[i] += offset
			}
		}(c)
	}
	wg.Wait()

	return total
}

// ExclusiveOffsets converts per-element sizes into exclusive start offsets.
// The returned slice has length len(sizes)+1 with the total in the last slot.
func ExclusiveOffsets(sizes []int32, numWorkers int) []int32 {
	offsets := make([]int32, len(sizes)+1)
	copy(offsets[1:], sizes)
	PrefixSum(offsets[1:], numWorkers)
	return offsets
}
