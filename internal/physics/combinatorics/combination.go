package combinatorics

import "iter"

// Combination enumerates the k-element index subsets of {0..n-1} in
// lexicographic order.
type Combination struct {
	n, k int
	idx  []int
	done bool
}

// NewCombination starts at the first subset {0..k-1}. For k == 0 it yields
// the empty subset once; it is immediately Done when k < 0 or k > n.
func NewCombination(n, k int) *Combination {
	c := &Combination{n: n, k: k}
	if k < 0 || k > n {
		c.done = true
		return c
	}
	c.idx = make([]int, k)
	for i := range c.idx {
		c.idx[i] = i
	}
	return c
}

// Indices is the current subset. The slice is reused by Next.
func (c *Combination) Indices() []int { return c.idx }

// Done reports whether the enumeration is exhausted.
func (c *Combination) Done() bool { return c.done }

// Next advances to the following subset.
func (c *Combination) Next() {
	if c.done {
		return
	}
	i := c.k - 1
	for i >= 0 && c.idx[i] == c.n-c.k+i {
		i--
	}
	if i < 0 {
		c.done = true
		return
	}
	c.idx[i]++
	for j := i + 1; j < c.k; j++ {
		c.idx[j] = c.idx[j-1] + 1
	}
}

// Subsets yields every k-subset of items. The yielded slice is reused
// between iterations; copy it to keep it.
func Subsets[T any](items []T, k int) iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		buf := make([]T, 0, max(k, 0))
		for c := NewCombination(len(items), k); !c.Done(); c.Next() {
			buf = buf[:0]
			for _, i := range c.Indices() {
				buf = append(buf, items[i])
			}
			if !yield(buf) {
				return
			}
		}
	}
}

// Binomial is n choose k.
func Binomial(n, k int) int {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	r := 1
	for i := 1; i <= k; i++ {
		r = r * (n - k + i) / i
	}
	return r
}
