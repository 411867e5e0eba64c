package workflowy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExport(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]interface{}{
			"nodes": []Node{
				{ID: "r1", Name: "Root"},
				{ID: "c1", Name: "Child", ParentID: "r1", Completed: true, Priority: 2},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("secret-key", srv.URL)
	nodes, err := client.Export(context.Background())
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	if gotAuth != "Bearer secret-key" {
		t.Errorf("Authorization = %q, want bearer credential", gotAuth)
	}
	if gotPath != "/nodes/export" {
		t.Errorf("path = %q, want /nodes/export", gotPath)
	}
	if len(nodes) != 2 {
		t.Fatalf("Export() returned %d nodes, want 2", len(nodes))
	}
	if nodes[1].ParentID != "r1" || !nodes[1].Completed || nodes[1].Priority != 2 {
		t.Errorf("decoded node = %+v, want full fields", nodes[1])
	}
}

func TestGetNode_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such node", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL)
	if _, err := client.GetNode(context.Background(), "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetNode() = %v, want ErrNotFound", err)
	}
}

func TestUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := NewClient("bad-key", srv.URL)
		if err := client.ValidateKey(context.Background()); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("ValidateKey() with status %d = %v, want ErrUnauthorized", status, err)
		}
		srv.Close()
	}
}

func TestServerError_IncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL)
	err := client.ValidateKey(context.Background())
	if err == nil {
		t.Fatal("ValidateKey() should fail on 429")
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
		t.Errorf("429 mapped to a sentinel: %v", err)
	}
}

func TestCreate_SendsBody(t *testing.T) {
	var got CreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/nodes" {
			t.Errorf("request = %s %s, want POST /nodes", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(Node{ID: "new-id", Name: got.Name, ParentID: got.ParentID})
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL)
	node, err := client.Create(context.Background(), CreateRequest{
		ParentID: "p1",
		Name:     "Buy milk",
		Note:     "2%",
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if got.ParentID != "p1" || got.Name != "Buy milk" || got.Note != "2%" {
		t.Errorf("server received %+v, want request fields", got)
	}
	if node.ID != "new-id" {
		t.Errorf("created node ID = %q, want new-id", node.ID)
	}
}

func TestUpdate_OmitsUnsetFields(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	name := "Renamed"
	client := NewClient("key", srv.URL)
	if err := client.Update(context.Background(), "n1", UpdateRequest{Name: &name}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if raw["name"] != "Renamed" {
		t.Errorf("name = %v, want Renamed", raw["name"])
	}
	if _, present := raw["note"]; present {
		t.Error("unset note was sent in the patch")
	}
}

func TestSetCompleted_PicksEndpoint(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL)
	if err := client.SetCompleted(context.Background(), "n1", true); err != nil {
		t.Fatalf("SetCompleted(true) failed: %v", err)
	}
	if err := client.SetCompleted(context.Background(), "n1", false); err != nil {
		t.Fatalf("SetCompleted(false) failed: %v", err)
	}

	want := []string{"/nodes/n1/complete", "/nodes/n1/uncomplete"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestListChildren_QueryParam(t *testing.T) {
	var gotParent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotParent = r.URL.Query().Get("parent_id")
		json.NewEncoder(w).Encode(map[string]interface{}{"nodes": []Node{}})
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL)
	if _, err := client.ListChildren(context.Background(), "p 1"); err != nil {
		t.Fatalf("ListChildren() failed: %v", err)
	}
	if gotParent != "p 1" {
		t.Errorf("parent_id = %q, want escaped round-trip of %q", gotParent, "p 1")
	}

	if _, err := client.ListChildren(context.Background(), ""); err != nil {
		t.Fatalf("ListChildren(top-level) failed: %v", err)
	}
	if gotParent != "" {
		t.Errorf("top-level list sent parent_id = %q, want none", gotParent)
	}
}

func TestParseTime(t *testing.T) {
	got := ParseTime("2026-01-02T15:04:05Z")
	if got == nil {
		t.Fatal("ParseTime() returned nil for a valid timestamp")
	}
	want := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseTime() = %v, want %v", got, want)
	}

	if ParseTime("") != nil {
		t.Error("ParseTime(empty) should be nil")
	}
	if ParseTime("not a time") != nil {
		t.Error("ParseTime(garbage) should be nil")
	}
}
