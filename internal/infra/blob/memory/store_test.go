package memory

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"vaultcore/internal/blob/core"
)

func TestStoreReturnsCopies(t *testing.T) {
	s := New()
	fixed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	md := map[string]string{"k": "v"}
	info, err := s.Put(context.Background(), "obj", bytes.NewReader([]byte("data")), core.PutOptions{Metadata: md})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !info.LastModified.Equal(fixed) {
		t.Fatalf("expected injected clock, got %v", info.LastModified)
	}
	md["k"] = "mutated"
	info.Metadata["k"] = "mutated"

	got, rc, err := s.Get(context.Background(), "obj")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if got.Metadata["k"] != "v" || string(data) != "data" {
		t.Fatalf("stored object leaked mutations: %+v %q", got, data)
	}
	if _, err := s.Put(context.Background(), " ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
}
