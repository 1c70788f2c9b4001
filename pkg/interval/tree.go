// Package interval implements an augmented AVL interval tree over port
// ranges. Nodes are ordered by (low, high, id) and carry the maximum
// high value of their subtree, which bounds overlap searches.
package interval

import (
	"fmt"
	"sort"
)

// MaxPort is the highest representable port value.
const MaxPort = 65535

type node struct {
	lo, hi  int
	id      uint32
	maxHigh int
	height  int
	left    *node
	right   *node
}

// Tree is an augmented AVL interval tree. It is not self-locking:
// writers serialize externally, and readers share only published,
// no-longer-mutated instances.
type Tree struct {
	root *node
	size int
}

// New creates an empty tree.
func New() *Tree { return &Tree{} }

// Insert stores the range [lo, hi] under a rule ID. Inverted ranges
// and ports above MaxPort are rejected.
func (t *Tree) Insert(lo, hi int, id uint32) error {
	if lo > hi {
		return fmt.Errorf("interval [%d,%d] inverted", lo, hi)
	}
	if lo < 0 || hi > MaxPort {
		return fmt.Errorf("interval [%d,%d] outside 0..%d", lo, hi, MaxPort)
	}
	var inserted bool
	t.root, inserted = insert(t.root, lo, hi, id)
	if inserted {
		t.size++
	}
	return nil
}

// Remove deletes the exact (lo, hi, id) entry, reporting whether it was
// present.
func (t *Tree) Remove(lo, hi int, id uint32) bool {
	var removed bool
	t.root, removed = remove(t.root, lo, hi, id)
	if removed {
		t.size--
	}
	return removed
}

// VisitPoint invokes fn for every stored range containing p.
func (t *Tree) VisitPoint(p int, fn func(lo, hi int, id uint32)) {
	visitPoint(t.root, p, fn)
}

// QueryPoint returns the IDs of every range containing p, sorted
// ascending.
func (t *Tree) QueryPoint(p int) []uint32 {
	var out []uint32
	t.VisitPoint(p, func(_, _ int, id uint32) { out = append(out, id) })
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VisitRange invokes fn for every stored range overlapping [qlo, qhi].
func (t *Tree) VisitRange(qlo, qhi int, fn func(lo, hi int, id uint32)) {
	if qlo > qhi {
		return
	}
	visitRange(t.root, qlo, qhi, fn)
}

// QueryRange returns the IDs of every range overlapping [qlo, qhi],
// sorted ascending.
func (t *Tree) QueryRange(qlo, qhi int) []uint32 {
	var out []uint32
	t.VisitRange(qlo, qhi, func(_, _ int, id uint32) { out = append(out, id) })
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contains reports whether the exact (lo, hi, id) entry is stored.
func (t *Tree) Contains(lo, hi int, id uint32) bool {
	n := t.root
	for n != nil {
		switch c := cmp(lo, hi, id, n); {
		case c < 0:
			n = n.left
		case c > 0:
			n = n.right
		default:
			return true
		}
	}
	return false
}

// ContainsID reports whether any stored range carries the rule ID.
func (t *Tree) ContainsID(id uint32) bool {
	found := false
	walk(t.root, func(n *node) {
		if n.id == id {
			found = true
		}
	})
	return found
}

// Len returns the number of stored entries.
func (t *Tree) Len() int { return t.size }

// Clone returns a deep copy sharing no nodes with the original, so the
// copy can be mutated while the original stays published to readers.
func (t *Tree) Clone() *Tree {
	return &Tree{root: cloneNode(t.root), size: t.size}
}

// cmp orders a (lo, hi, id) triple against a node's key: negative
// when the triple sorts before the node, positive after, zero on an
// exact match.
func cmp(lo, hi int, id uint32, n *node) int {
	if lo != n.lo {
		if lo < n.lo {
			return -1
		}
		return 1
	}
	if hi != n.hi {
		if hi < n.hi {
			return -1
		}
		return 1
	}
	if id != n.id {
		if id < n.id {
			return -1
		}
		return 1
	}
	return 0
}

func height(n *node) int {
	if n == nil {
		return 0
	}
	return n.height
}

func maxHigh(n *node) int {
	if n == nil {
		return -1
	}
	return n.maxHigh
}

// update recomputes height and maxHigh from the children. Rotations
// must call it on reparented nodes, bottom-up.
func update(n *node) {
	n.height = 1 + max(height(n.left), height(n.right))
	n.maxHigh = max(n.hi, maxHigh(n.left), maxHigh(n.right))
}

func balanceFactor(n *node) int {
	return height(n.left) - height(n.right)
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	update(y)
	update(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	update(x)
	update(y)
	return y
}

// rebalance restores the AVL invariant at n after a subtree change.
func rebalance(n *node) *node {
	update(n)
	bf := balanceFactor(n)
	if bf > 1 {
		if balanceFactor(n.left) < 0 {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	}
	if bf < -1 {
		if balanceFactor(n.right) > 0 {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

func insert(n *node, lo, hi int, id uint32) (*node, bool) {
	if n == nil {
		nn := &node{lo: lo, hi: hi, id: id, maxHigh: hi, height: 1}
		return nn, true
	}
	var inserted bool
	switch c := cmp(lo, hi, id, n); {
	case c < 0:
		n.left, inserted = insert(n.left, lo, hi, id)
	case c > 0:
		n.right, inserted = insert(n.right, lo, hi, id)
	default:
		return n, false // exact duplicate entry
	}
	return rebalance(n), inserted
}

func findMin(n *node) *node {
	for n.left != nil {
		n = n.left
	}
	return n
}

func remove(n *node, lo, hi int, id uint32) (*node, bool) {
	if n == nil {
		return nil, false
	}
	var removed bool
	switch c := cmp(lo, hi, id, n); {
	case c < 0:
		n.left, removed = remove(n.left, lo, hi, id)
	case c > 0:
		n.right, removed = remove(n.right, lo, hi, id)
	default:
		removed = true
		if n.left == nil || n.right == nil {
			child := n.left
			if child == nil {
				child = n.right
			}
			return child, true
		}
		// Two children: swap in the in-order successor, then delete it
		// from the right subtree.
		succ := findMin(n.right)
		n.lo, n.hi, n.id = succ.lo, succ.hi, succ.id
		n.right, _ = remove(n.right, succ.lo, succ.hi, succ.id)
	}
	return rebalance(n), removed
}

func visitPoint(n *node, p int, fn func(lo, hi int, id uint32)) {
	if n == nil {
		return
	}
	if n.left != nil && n.left.maxHigh >= p {
		visitPoint(n.left, p, fn)
	}
	if n.lo <= p && p <= n.hi {
		fn(n.lo, n.hi, n.id)
	}
	if p >= n.lo {
		visitPoint(n.right, p, fn)
	}
}

func visitRange(n *node, qlo, qhi int, fn func(lo, hi int, id uint32)) {
	if n == nil {
		return
	}
	if n.left != nil && n.left.maxHigh >= qlo {
		visitRange(n.left, qlo, qhi, fn)
	}
	if qlo <= n.hi && qhi >= n.lo {
		fn(n.lo, n.hi, n.id)
	}
	if qhi >= n.lo {
		visitRange(n.right, qlo, qhi, fn)
	}
}

func cloneNode(n *node) *node {
	if n == nil {
		return nil
	}
	return &node{
		lo: n.lo, hi: n.hi, id: n.id,
		maxHigh: n.maxHigh, height: n.height,
		left:  cloneNode(n.left),
		right: cloneNode(n.right),
	}
}

func walk(n *node, fn func(*node)) {
	if n == nil {
		return
	}
	fn(n)
	walk(n.left, fn)
	walk(n.right, fn)
}
