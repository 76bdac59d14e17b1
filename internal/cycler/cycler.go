// Package cycler implements deterministic round-robin traversal of a fixed
// candidate set, handing out each candidate at most once per epoch.
package cycler

import "math/rand"

// Cycler walks an ordered candidate list one name at a time. Within an epoch
// no candidate is handed out twice; the pinned best candidate counts as
// visited the moment it is read, so a fresh epoch does not re-offer the
// incumbent as if it were untested.
//
// A Cycler is not safe for concurrent use. Each spoke drives its own from a
// single loop.
type Cycler struct {
	order   []string
	cursor  int
	visited map[string]bool
	best    string
}

// New builds a cycler over order. The slice is copied and never reordered;
// shuffling is the caller's concern.
func New(order []string) *Cycler {
	c := &Cycler{
		order:   make([]string, len(order)),
		visited: make(map[string]bool, len(order)),
	}
	copy(c.order, order)
	return c
}

// Next returns the candidate at the cursor and advances. If that candidate
// was already visited this epoch, the cursor still advances but ok is false
// and nothing is handed out this call. A miss happens when the cursor lands
// on the pinned incumbent mid-pass and again once the pass wraps; Exhausted
// tells the two apart.
func (c *Cycler) Next() (name string, ok bool) {
	if len(c.order) == 0 {
		return "", false
	}
	name = c.order[c.cursor]
	c.cursor = (c.cursor + 1) % len(c.order)
	if c.visited[name] {
		return "", false
	}
	c.visited[name] = true
	return name, true
}

// Exhausted reports whether every candidate has been visited this epoch.
// Once true, Next cannot hand out anything until BeginEpoch.
func (c *Cycler) Exhausted() bool {
	return len(c.visited) >= len(c.order)
}

// BeginEpoch clears the visited set and restarts traversal from the top of
// the order. The pinned best carries over.
func (c *Cycler) BeginEpoch() {
	c.visited = make(map[string]bool, len(c.order))
	c.cursor = 0
}

// Best returns the pinned best candidate and, as a side effect, marks it
// visited in the current epoch. Returns "" when no best has been pinned.
func (c *Cycler) Best() string {
	if c.best != "" {
		c.visited[c.best] = true
	}
	return c.best
}

// SetBest pins name as the current best candidate. It does not touch the
// visited set; only reading Best does.
func (c *Cycler) SetBest(name string) {
	c.best = name
}

// Len returns the number of candidates in the traversal order.
func (c *Cycler) Len() int {
	return len(c.order)
}

// Shuffle returns a new permutation of names derived from seed. Every
// process that shuffles the same names with the same seed gets the same
// order, which is what lets cooperating sampling spokes explore candidates
// identically without talking to each other.
func Shuffle(names []string, seed int64) []string {
	out := make([]string, len(names))
	copy(out, names)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
