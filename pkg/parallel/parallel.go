package parallel

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// minChunk is the smallest index range a worker claims at a time. Smaller
// ranges are executed sequentially because goroutine handoff dominates.
const minChunk = 1024

// For splits the index range [0, n) into chunks and executes body on each
// index from numWorkers goroutines. body must be safe to call concurrently
// for distinct indices.
func For(n int, numWorkers int, body func(i int)) {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if n < minChunk || numWorkers == 1 {
		for i := 0; i < n; i++ {
			body(i)
		}
		return
	}

	chunk := (n + numWorkers - 1) / numWorkers
	if chunk < minChunk {
		chunk = minChunk
	}

	var wg sync.WaitGroup
	for begin := 0; begin < n; begin += chunk {
		end := begin + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				body(i)
			}
		}(begin, end)
	}
	wg.Wait()
}

// ForErr is For with error propagation. The first error returned by body
// aborts remaining chunks and is returned to the caller.
func ForErr(n int, numWorkers int, body func(i int) error) error {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if n < minChunk || numWorkers == 1 {
		for i := 0; i < n; i++ {
			if err := body(i); err != nil {
				return err
			}
		}
		return nil
	}

	chunk := (n + numWorkers - 1) / numWorkers
	if chunk < minChunk {
		chunk = minChunk
	}

	var g errgroup.Group
	for begin := 0; begin < n; begin += chunk {
		lo, hi := begin, begin+chunk
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := body(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Invoke runs the given tasks concurrently and waits for all of them.
func Invoke(tasks ...func()) {
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(f func()) {
			defer wg.Done()
			f()
		}(task)
	}
	wg.Wait()
}

// Reduce computes a parallel reduction over [0, n). leaf maps a range to a
// partial result, combine merges two partial results.
func Reduce[T any](n int, numWorkers int, identity T, leaf func(lo, hi int, acc T) T, combine func(a, b T) T) T {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if n < minChunk || numWorkers == 1 {
		return leaf(0, n, identity)
	}

	chunk := (n + numWorkers - 1) / numWorkers
	if chunk < minChunk {
		chunk = minChunk
	}
	numChunks := (n + chunk - 1) / chunk
	partials := make([]T, numChunks)

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
			partials[c] = leaf(lo, hi, identity)
		}(c)
	}
	wg.Wait()

	result := identity
	for _, p := range partials {
		result = combine(result, p)
	}
	return result
}
