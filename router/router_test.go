package router

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"
)

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randKey(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}

// something like a relay fronting a few hundred per-item feeds
func mockFeedTable() *Node[string] {
	tree := New[string]()
	tree.InsertAt(NS("raw"), "raw")
	for i := 0; i < 500; i++ {
		k := randKey(6)
		tree.InsertAt(Namespace{"details", k}, "details:"+k)
	}
	tree.InsertAt(NS("eps"), "eps")
	return tree
}

func TestStringToNamespace(t *testing.T) {
	testCases := []struct {
		s  string
		ns Namespace
	}{
		{s: "/", ns: Namespace{}},
		{s: "", ns: Namespace{}},
		{s: "/pets", ns: Namespace{"pets"}},
		{s: "pets", ns: Namespace{"pets"}},
		{s: "pets/", ns: Namespace{"pets"}},
		{s: "/pets/cats", ns: Namespace{"pets", "cats"}},
		{s: "/pets/cats/", ns: Namespace{"pets", "cats"}},
		{s: "/pets/dogs/terriers", ns: Namespace{"pets", "dogs", "terriers"}},
	}
	for _, tc := range testCases {
		actual := NS(tc.s)
		if !reflect.DeepEqual(tc.ns, actual) {
			t.Errorf("for string %#v\nwant %#v\ngot  %#v", tc.s, tc.ns, actual)
		}
	}
}

func TestNamespaceToString(t *testing.T) {
	testCases := []struct {
		ns Namespace
		s  string
	}{
		{ns: Namespace{}, s: "/"},
		{ns: Namespace{"pets"}, s: "/pets"},
		{ns: Namespace{"pets", "dogs", "terriers"}, s: "/pets/dogs/terriers"},
	}
	for _, tc := range testCases {
		if actual := tc.ns.String(); actual != tc.s {
			t.Errorf("want %#v got %#v", tc.s, actual)
		}
	}
}

func TestLookup(t *testing.T) {
	root := New[string]()
	root.InsertAt(NS("/time"), "clock")
	root.InsertAt(NS("/feeds"), "all-feeds")
	root.InsertAt(NS("/feeds/eu"), "eu-feed")
	// intermediate node without a value
	root.FindOrCreate(NS("/empty/child"))

	testCases := []struct {
		path   string
		want   string
		wantAt string
		wantOK bool
	}{
		{"/time", "clock", "/time", true},
		{"/time/", "clock", "/time", true},
		{"/feeds/us", "all-feeds", "/feeds", true},
		{"/feeds/eu", "eu-feed", "/feeds/eu", true},
		{"/feeds/eu/west/1", "eu-feed", "/feeds/eu", true},
		{"/", "", "", false},
		{"/timer", "", "", false},
		{"/empty/child", "", "", false},
	}
	for _, tc := range testCases {
		v, at, ok := root.Lookup(NS(tc.path))
		if ok != tc.wantOK || v != tc.want {
			t.Errorf("Lookup(%q): got (%q, %v) want (%q, %v)", tc.path, v, ok, tc.want, tc.wantOK)
			continue
		}
		if ok && at.String() != tc.wantAt {
			t.Errorf("Lookup(%q): matched at %v want %v", tc.path, at, tc.wantAt)
		}
	}
}

func TestLookupRootValue(t *testing.T) {
	root := New[int]()
	root.Set(7)
	v, at, ok := root.Lookup(NS("/anything/at/all"))
	if !ok || v != 7 || len(at) != 0 {
		t.Errorf("got (%v, %v, %v) want (7, [], true)", v, at, ok)
	}
}

func TestSetAndClear(t *testing.T) {
	root := New[string]()
	n := root.InsertAt(NS("a/b"), "x")
	n.Set("y")
	if v, ok := n.Value(); !ok || v != "y" {
		t.Errorf("got (%q, %v) want (\"y\", true)", v, ok)
	}
	n.Clear()
	if _, ok := n.Value(); ok {
		t.Error("value still set after Clear")
	}
	if _, _, ok := root.Lookup(NS("a/b")); ok {
		t.Error("cleared node still matched")
	}
}

func TestFind(t *testing.T) {
	root := New[string]()
	want := root.InsertAt(NS("a/b"), "x")

	got, err := root.Find(NS("a/b"))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Error("Find returned a different node")
	}
	if _, err := root.Find(NS("a/c")); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v want ErrNotFound", err)
	}
}

func TestRelationships(t *testing.T) {
	root := New[string]()
	foo := root.FindOrCreate(NS("foo"))
	foo.FindOrCreate(NS("bar1"))
	foo.FindOrCreate(NS("bar2"))
	bar3 := foo.FindOrCreate(NS("bar3"))
	hey1 := bar3.FindOrCreate(NS("hey1"))
	bar3.FindOrCreate(NS("hey2"))

	testCases := []struct {
		node         *Node[string]
		expectChilds int
		expectDescs  int
		expectNS     Namespace
	}{
		{node: hey1, expectChilds: 0, expectDescs: 0, expectNS: Namespace{"foo", "bar3", "hey1"}},
		{node: bar3, expectChilds: 2, expectDescs: 2, expectNS: Namespace{"foo", "bar3"}},
		{node: foo, expectChilds: 3, expectDescs: 5, expectNS: Namespace{"foo"}},
		{node: root, expectChilds: 1, expectDescs: 6, expectNS: Namespace{}},
	}

	for _, tc := range testCases {
		if actual := len(tc.node.Children()); actual != tc.expectChilds {
			t.Errorf("wrong number of children - want %v got %v", tc.expectChilds, actual)
		}
		if actual := len(tc.node.Descendents()); actual != tc.expectDescs {
			t.Errorf("wrong number of descendents - want %v got %v", tc.expectDescs, actual)
		}
		if actual := tc.node.Namespace(); !reflect.DeepEqual(actual, tc.expectNS) {
			t.Errorf("wrong namespace - want %v got %v", tc.expectNS, actual)
		}
	}
}

func TestWalk(t *testing.T) {
	root := New[string]()
	root.InsertAt(NS("/b"), "2")
	root.InsertAt(NS("/a"), "1")
	root.InsertAt(NS("/a/c/d"), "3")

	var got []string
	root.Walk(func(ns Namespace, v string) {
		got = append(got, fmt.Sprintf("%v=%s", ns, v))
	})
	sort.Strings(got)
	want := []string{"/a/c/d=3", "/a=1", "/b=2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v want %v", got, want)
	}
}

func BenchmarkStringToNamespace(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NS("/pets/dogs/terriers/")
	}
}

func BenchmarkLookup(b *testing.B) {
	tree := mockFeedTable()
	target := Namespace{"details", randKey(6)}
	tree.InsertAt(target, "myspecialfriend")
	deep := append(append(Namespace{}, target...), "extra", "segments")

	b.Run("exact", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			tree.Lookup(target)
		}
	})
	b.Run("prefix", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			tree.Lookup(deep)
		}
	})
	b.Run("miss", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			tree.Lookup(Namespace{"nope"})
		}
	})
}
