// Package router maps slash-delimited request paths onto configured values.
//
// Paths are stored as a tree of namespace segments. A lookup walks down the
// tree as far as the request path allows and returns the deepest value it
// passed, so a route configured at "/feeds" also serves "/feeds/eu/west".
package router

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by Find when no node exists at a namespace.
var ErrNotFound = errors.New("namespace not found")

// Namespace is a path split into its segments.
type Namespace []string

// NS converts a slash-delimited string into a Namespace.
func NS(s string) Namespace {
	trimmed := strings.Trim(s, "/ ")
	if trimmed == "" {
		return Namespace{}
	}
	return Namespace(strings.Split(trimmed, "/"))
}

func (ns Namespace) String() string {
	return "/" + strings.Join(ns, "/")
}

// A Node holds at most one value and any number of children.
type Node[V any] struct {
	parent   *Node[V]
	children map[string]*Node[V]
	key      string
	value    V
	set      bool
}

// New returns a new root Node (without a parent).
func New[V any]() *Node[V] {
	return newNode[V](nil, "")
}

func newNode[V any](parent *Node[V], key string) *Node[V] {
	return &Node[V]{
		key:      key,
		parent:   parent,
		children: make(map[string]*Node[V]),
	}
}

// Find returns the child Node at relative namespace ns.
func (n *Node[V]) Find(ns Namespace) (*Node[V], error) {
	if len(ns) == 0 {
		return n, nil
	}
	target, rest := ns[0], ns[1:]
	if c, ok := n.children[target]; ok {
		return c.Find(rest)
	}
	return nil, errors.Join(ErrNotFound, errors.New(ns.String()))
}

// FindOrCreate returns the child Node at relative namespace ns, creating it
// and any missing parents.
func (n *Node[V]) FindOrCreate(ns Namespace) *Node[V] {
	if len(ns) == 0 {
		return n
	}
	target, rest := ns[0], ns[1:]
	if _, exists := n.children[target]; !exists {
		n.children[target] = newNode(n, target)
	}
	return n.children[target].FindOrCreate(rest)
}

// Value returns the value stored at n, if any.
func (n *Node[V]) Value() (V, bool) {
	return n.value, n.set
}

// Set stores v at n, replacing any previous value.
func (n *Node[V]) Set(v V) {
	n.value, n.set = v, true
}

// Clear removes the value stored at n.
func (n *Node[V]) Clear() {
	var zero V
	n.value, n.set = zero, false
}

// InsertAt stores v at namespace ns relative to n and returns the node it was
// stored in.
func (n *Node[V]) InsertAt(ns Namespace, v V) *Node[V] {
	dst := n.FindOrCreate(ns)
	dst.Set(v)
	return dst
}

// Lookup returns the value of the deepest node along ns that holds one,
// together with the namespace of that node. ok is false when no node on the
// way holds a value.
func (n *Node[V]) Lookup(ns Namespace) (v V, at Namespace, ok bool) {
	cur := n
	depth := 0
	if cur.set {
		v, ok = cur.value, true
	}
	for i, key := range ns {
		next, exists := cur.children[key]
		if !exists {
			break
		}
		cur = next
		if cur.set {
			v, ok, depth = cur.value, true, i+1
		}
	}
	if !ok {
		return v, nil, false
	}
	return v, ns[:depth:depth], true
}

// TraverseDown visits the node and each descendent node, applying fn.
func (n *Node[V]) TraverseDown(fn func(*Node[V])) {
	fn(n)
	for _, c := range n.children {
		c.TraverseDown(fn)
	}
}

// TraverseUp visits the node and each ancestor node, applying fn.
func (n *Node[V]) TraverseUp(fn func(*Node[V])) {
	fn(n)
	if n.parent != nil {
		n.parent.TraverseUp(fn)
	}
}

// Children returns the direct children of a Node only.
func (n *Node[V]) Children() []*Node[V] {
	childs := make([]*Node[V], 0, len(n.children))
	for _, c := range n.children {
		childs = append(childs, c)
	}
	return childs
}

// Descendents returns all children of the Node, and their children, and their
// children...
func (n *Node[V]) Descendents() []*Node[V] {
	var descNodes []*Node[V]
	n.TraverseDown(func(d *Node[V]) {
		descNodes = append(descNodes, d)
	})
	return descNodes[1:]
}

// Namespace returns the fully-qualified namespace for a Node by walking up the
// tree. The root has an empty namespace.
func (n *Node[V]) Namespace() Namespace {
	keys := Namespace{}
	n.TraverseUp(func(a *Node[V]) {
		if a.parent != nil {
			keys = append(keys, a.key)
		}
	})
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return keys
}

// Walk calls fn for every node under n, n included, that holds a value.
func (n *Node[V]) Walk(fn func(ns Namespace, v V)) {
	n.TraverseDown(func(d *Node[V]) {
		if d.set {
			fn(d.Namespace(), d.value)
		}
	})
}
