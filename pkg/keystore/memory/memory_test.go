package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haugen-media/gatekeeper/pkg/keystore"
)

func TestLookupByHash(t *testing.T) {
	s := New([]keystore.Record{
		{ID: "k-1", KeyHash: "hash-1", Site: "blog", Level: "write", Status: keystore.StatusActive},
	})

	rec, err := s.LookupByHash(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("LookupByHash() error: %v", err)
	}
	if rec.ID != "k-1" || rec.Site != "blog" {
		t.Errorf("record = %+v, want k-1/blog", rec)
	}

	_, err = s.LookupByHash(context.Background(), "hash-nope")
	if !errors.Is(err, keystore.ErrNotFound) {
		t.Errorf("unknown hash: err = %v, want ErrNotFound", err)
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	s := New([]keystore.Record{
		{ID: "k-1", KeyHash: "hash-1", Status: keystore.StatusActive},
	})

	rec, _ := s.LookupByHash(context.Background(), "hash-1")
	rec.Status = keystore.StatusBlocked

	again, _ := s.LookupByHash(context.Background(), "hash-1")
	if again.Status != keystore.StatusActive {
		t.Error("mutating a looked-up record leaked into the store")
	}
}

func TestNewAssignsMissingIDs(t *testing.T) {
	s := New([]keystore.Record{{KeyHash: "hash-1", Status: keystore.StatusActive}})

	rec, err := s.LookupByHash(context.Background(), "hash-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" {
		t.Error("record without an ID was not assigned one")
	}
}

func TestTouchLastUsed(t *testing.T) {
	s := New([]keystore.Record{
		{ID: "k-1", KeyHash: "hash-1", Status: keystore.StatusActive},
	})

	at := time.Now().Truncate(time.Second)
	if err := s.TouchLastUsed(context.Background(), "k-1", at); err != nil {
		t.Fatalf("TouchLastUsed() error: %v", err)
	}

	rec, _ := s.LookupByHash(context.Background(), "hash-1")
	if rec.LastUsedAt == nil || !rec.LastUsedAt.Equal(at) {
		t.Errorf("LastUsedAt = %v, want %v", rec.LastUsedAt, at)
	}

	if err := s.TouchLastUsed(context.Background(), "k-nope", at); !errors.Is(err, keystore.ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
}
