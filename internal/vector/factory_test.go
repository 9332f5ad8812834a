package vector

import (
	"context"
	"testing"
)

func TestNewIndex_Memory(t *testing.T) {
	idx, err := NewIndex("memory", 3)
	if err != nil {
		t.Fatalf("NewIndex(memory): %v", err)
	}
	defer idx.Close()

	if err := idx.Add(context.Background(), [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
	if idx.Type() != "memory" {
		t.Errorf("Type=%s, want memory", idx.Type())
	}
}

func TestNewIndex_EmptyDefaultsToMemory(t *testing.T) {
	idx, err := NewIndex("", 3)
	if err != nil {
		t.Fatalf("NewIndex(''): %v", err)
	}
	defer idx.Close()
	if idx.Type() != "memory" {
		t.Errorf("Type=%s, want memory", idx.Type())
	}
}

func TestNewIndex_Unknown(t *testing.T) {
	if _, err := NewIndex("hnsw", 3); err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewIndex_FAISSMatchesAvailability(t *testing.T) {
	idx, err := NewIndex("faiss", 3)
	if IsFAISSAvailable() {
		if err != nil {
			t.Fatalf("NewIndex(faiss): %v", err)
		}
		_ = idx.Close()
		return
	}
	if err == nil {
		t.Error("expected error when FAISS is not compiled in")
	}
}
