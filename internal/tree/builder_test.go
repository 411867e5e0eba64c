package tree

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"wfmirror/internal/cache"
)

func newTestStore(t *testing.T, nodes ...*cache.Node) *cache.DB {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("cache.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	for _, n := range nodes {
		if err := db.UpsertNode(n); err != nil {
			t.Fatalf("UpsertNode(%s) failed: %v", n.ID, err)
		}
	}
	return db
}

func strPtr(s string) *string { return &s }

// chain seeds root > l1 > l2 > ... to the given length.
func chain(length int) []*cache.Node {
	nodes := []*cache.Node{{ID: "root", Name: "Root", ChildrenCount: 1}}
	parent := "root"
	for i := 1; i <= length; i++ {
		id := fmt.Sprintf("l%d", i)
		p := parent
		count := 1
		if i == length {
			count = 0
		}
		nodes = append(nodes, &cache.Node{ID: id, Name: "Level", ParentID: &p, ChildrenCount: count})
		parent = id
	}
	return nodes
}

func TestClampDepth(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 1},
		{-3, 1},
		{1, 1},
		{5, 5},
		{10, 10},
		{11, MaxDepth},
		{100, MaxDepth},
	}
	for _, tt := range tests {
		if got := ClampDepth(tt.in); got != tt.want {
			t.Errorf("ClampDepth(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBuild_DepthAndOrdering(t *testing.T) {
	store := newTestStore(t,
		&cache.Node{ID: "r", Name: "Root", ChildrenCount: 3},
		&cache.Node{ID: "c1", Name: "Zebra", ParentID: strPtr("r"), Priority: 1},
		&cache.Node{ID: "c2", Name: "Apple", ParentID: strPtr("r"), Priority: 1},
		&cache.Node{ID: "c3", Name: "First", ParentID: strPtr("r"), Priority: 0, ChildrenCount: 1},
		&cache.Node{ID: "g1", Name: "Grandkid", ParentID: strPtr("c3")},
	)

	got, err := Build(context.Background(), store, "r", 1, nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(got.Children) != 3 {
		t.Fatalf("Build() returned %d children, want 3", len(got.Children))
	}
	// Priority ascending, then name.
	wantOrder := []string{"c3", "c2", "c1"}
	for i, id := range wantOrder {
		if got.Children[i].ID != id {
			t.Errorf("Children[%d] = %s, want %s", i, got.Children[i].ID, id)
		}
	}
	// Depth 1 stops above the grandchild, but the boundary node still
	// reports its child count.
	boundary := got.Children[0]
	if len(boundary.Children) != 0 {
		t.Errorf("depth-1 build expanded grandchildren: %v", boundary.Children)
	}
	if boundary.ChildrenCount != 1 {
		t.Errorf("boundary ChildrenCount = %d, want 1", boundary.ChildrenCount)
	}

	got, err = Build(context.Background(), store, "r", 2, nil)
	if err != nil {
		t.Fatalf("Build() depth 2 failed: %v", err)
	}
	if len(got.Children[0].Children) != 1 || got.Children[0].Children[0].ID != "g1" {
		t.Errorf("depth-2 build missing grandchild")
	}
}

func TestBuild_MissingRoot(t *testing.T) {
	store := newTestStore(t)
	if _, err := Build(context.Background(), store, "nope", 1, nil); err == nil {
		t.Error("Build() on missing root should fail")
	}
}

func TestBuild_DepthClampStopsRecursion(t *testing.T) {
	store := newTestStore(t, chain(12)...)

	got, err := Build(context.Background(), store, "root", 99, nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	levels := 0
	for n := got; len(n.Children) > 0; n = n.Children[0] {
		levels++
	}
	if levels != MaxDepth {
		t.Errorf("expanded %d levels, want clamp at %d", levels, MaxDepth)
	}
}

func TestBuild_ExclusionPrunesSubtree(t *testing.T) {
	store := newTestStore(t,
		&cache.Node{ID: "r", Name: "Root", ChildrenCount: 2},
		&cache.Node{ID: "keep", Name: "Keep", ParentID: strPtr("r")},
		&cache.Node{ID: "priv", Name: "Private", ParentID: strPtr("r"), ChildrenCount: 1},
		&cache.Node{ID: "priv-kid", Name: "Hidden child", ParentID: strPtr("priv")},
	)

	got, err := Build(context.Background(), store, "r", 5, []string{"private"})
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(got.Children) != 1 || got.Children[0].ID != "keep" {
		t.Errorf("exclusion did not prune: %v", got.Children)
	}
}

func TestBuildRoots(t *testing.T) {
	store := newTestStore(t,
		&cache.Node{ID: "r1", Name: "Work", ChildrenCount: 1},
		&cache.Node{ID: "r2", Name: "Archive"},
		&cache.Node{ID: "c", Name: "Task", ParentID: strPtr("r1")},
	)

	forest, err := BuildRoots(context.Background(), store, 2, []string{"Archive"})
	if err != nil {
		t.Fatalf("BuildRoots() failed: %v", err)
	}
	if len(forest) != 1 || forest[0].ID != "r1" {
		t.Fatalf("BuildRoots() = %v, want just r1", forest)
	}
	if len(forest[0].Children) != 1 || forest[0].Children[0].ID != "c" {
		t.Errorf("BuildRoots() did not expand r1's child")
	}
}

func TestRenderOutline(t *testing.T) {
	nodes := []*Node{
		{
			Name:          "Groceries",
			Note:          "weekly run",
			ChildrenCount: 2,
			Children: []*Node{
				{Name: "Milk", Completed: true},
				{Name: "Eggs", ChildrenCount: 1},
			},
		},
	}

	got := RenderOutline(nodes)
	want := strings.Join([]string{
		"- Groceries (2 children)",
		"    note: weekly run",
		"  - Milk [completed]",
		"  - Eggs (1 child)",
		"",
	}, "\n")
	if got != want {
		t.Errorf("RenderOutline() =\n%q\nwant\n%q", got, want)
	}
}

func TestRenderOutline_MultilineNote(t *testing.T) {
	got := RenderOutline([]*Node{{Name: "N", Note: "line one\nline two"}})
	want := "- N\n    note: line one\n    note: line two\n"
	if got != want {
		t.Errorf("RenderOutline() = %q, want %q", got, want)
	}
}
