package main

import (
	"math/rand"
	"sync"
	"time"
)

// roller draws uniform dice values for every game on the server. One
// locked source is plenty; dice resolution is instant and never holds
// a game lock while waiting on anything.
type roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newRoller(seed int64) *roller {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &roller{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// rollTeam draws one die in [min, max] per team member and returns the
// individual draws plus their sum. Bigger teams roll more dice.
func (r *roller) rollTeam(min, max, members int) ([]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	draws := make([]int, members)
	total := 0
	for i := range draws {
		draws[i] = min + r.rng.Intn(max-min+1)
		total += draws[i]
	}
	return draws, total
}
