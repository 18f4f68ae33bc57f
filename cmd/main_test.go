package main

import (
	"context"
	"testing"

	"github.com/CDeX-Labs/CDeX-Live-Service/config"
	"github.com/CDeX-Labs/CDeX-Live-Service/internal/store/memory"
	"github.com/rs/zerolog"
)

func TestOpenStoreRequiresDSN(t *testing.T) {
	cfg := &config.AppConfig{}

	if _, _, err := openStore(context.Background(), cfg, false, zerolog.Nop()); err == nil {
		t.Fatal("empty DATABASE_URL without --memory-store must fail")
	}

	store, closeStore, err := openStore(context.Background(), cfg, true, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer closeStore()
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("store = %T, want *memory.Store", store)
	}
}
