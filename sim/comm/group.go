// comm/group.go
package comm

import "sync"

// Group is an in-process communicator set: n ranks backed by goroutines
// rendezvous at each reduction, exactly like an MPI all-reduce barrier. It
// exists so the multi-rank behaviour of the integrator (step equalization,
// bad-step voting, next-kick agreement) is testable without an MPI runtime.
type Group struct {
	size int

	mu    sync.Mutex
	cond  *sync.Cond
	gen   uint64 // reduction generation, guards against late arrivals
	count int    // ranks arrived in the current generation

	accInt64   int64
	accFloat64 float64
	accSlice   []float64

	// Completed-generation results. A new generation cannot complete before
	// every rank has read the previous one (reading happens before the next
	// arrival), so these are stable for late readers even when a fast rank
	// has already seeded the next accumulator.
	resInt64   int64
	resFloat64 float64
	resSlice   []float64
}

// NewGroup returns one Communicator per rank, all sharing a reduction state.
func NewGroup(n int) []Communicator {
	g := &Group{size: n}
	g.cond = sync.NewCond(&g.mu)
	comms := make([]Communicator, n)
	for r := 0; r < n; r++ {
		comms[r] = &groupRank{g: g, rank: r}
	}
	return comms
}

type groupRank struct {
	g    *Group
	rank int
}

func (c *groupRank) Rank() int { return c.rank }
func (c *groupRank) Size() int { return c.g.size }

// reduce runs one rendezvous. The first arrival seeds the accumulator, later
// arrivals fold into it, the last arrival releases the generation. The read
// callback runs under the lock, before any rank can seed the next
// generation's accumulator.
func (c *groupRank) reduce(seed, fold, read func()) {
	g := c.g
	g.mu.Lock()
	defer g.mu.Unlock()

	gen := g.gen
	if g.count == 0 {
		seed()
	} else {
		fold()
	}
	g.count++
	if g.count == g.size {
		g.count = 0
		g.gen++
		g.resInt64 = g.accInt64
		g.resFloat64 = g.accFloat64
		g.resSlice = append(g.resSlice[:0], g.accSlice...)
		g.cond.Broadcast()
	} else {
		for g.gen == gen {
			g.cond.Wait()
		}
	}
	read()
}

func (c *groupRank) AllreduceMinInt64(v int64) int64 {
	var out int64
	c.reduce(
		func() { c.g.accInt64 = v },
		func() {
			if v < c.g.accInt64 {
				c.g.accInt64 = v
			}
		},
		func() { out = c.g.resInt64 },
	)
	return out
}

func (c *groupRank) AllreduceSumInt64(v int64) int64 {
	var out int64
	c.reduce(
		func() { c.g.accInt64 = v },
		func() { c.g.accInt64 += v },
		func() { out = c.g.resInt64 },
	)
	return out
}

func (c *groupRank) AllreduceMinFloat64(v float64) float64 {
	var out float64
	c.reduce(
		func() { c.g.accFloat64 = v },
		func() {
			if v < c.g.accFloat64 {
				c.g.accFloat64 = v
			}
		},
		func() { out = c.g.resFloat64 },
	)
	return out
}

func (c *groupRank) AllreduceSumFloat64s(v []float64) []float64 {
	c.reduce(
		func() { c.g.accSlice = append(c.g.accSlice[:0], v...) },
		func() {
			for i := range v {
				c.g.accSlice[i] += v[i]
			}
		},
		func() { copy(v, c.g.resSlice) },
	)
	return v
}

func (c *groupRank) AllreduceMinFloat64s(v []float64) []float64 {
	c.reduce(
		func() { c.g.accSlice = append(c.g.accSlice[:0], v...) },
		func() {
			for i := range v {
				if v[i] < c.g.accSlice[i] {
					c.g.accSlice[i] = v[i]
				}
			}
		},
		func() { copy(v, c.g.resSlice) },
	)
	return v
}
