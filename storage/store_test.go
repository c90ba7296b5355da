package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"omnidata/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "data", "market_data.json"), 5)
}

func samplePortfolio() models.Portfolio {
	return models.Portfolio{
		models.NewEquity("AAPL", 180.5, "NASDAQ", 5),
		models.NewCrypto("BTC", 65000, "Bitcoin", 5),
		models.NewAsset("GOLD", 2300, 5),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	original := samplePortfolio()

	if err := store.Save(original); err != nil {
		t.Fatalf("save: %v", err)
	}
	restored, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(restored) != len(original) {
		t.Fatalf("restored %d assets, want %d", len(restored), len(original))
	}
	for i, a := range restored {
		want := original[i]
		if a.Symbol() != want.Symbol() || a.Price() != want.Price() || a.Kind() != want.Kind() {
			t.Fatalf("asset %d mismatch: got %s/%v/%s", i, a.Symbol(), a.Price(), a.Kind())
		}
	}
	if restored[0].Exchange() != "NASDAQ" {
		t.Fatalf("exchange lost: %q", restored[0].Exchange())
	}
	if restored[1].Chain() != "Bitcoin" {
		t.Fatalf("chain lost: %q", restored[1].Chain())
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := newTestStore(t)
	portfolio, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(portfolio) != 0 {
		t.Fatalf("expected empty portfolio on first run, got %d assets", len(portfolio))
	}
}

func TestLoadTamperedData(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(samplePortfolio()); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(store.DataPath())
	if err != nil {
		t.Fatalf("read data: %v", err)
	}
	// Flip one byte of the protected file.
	data[len(data)/2] ^= 0x01
	if err := os.WriteFile(store.DataPath(), data, 0644); err != nil {
		t.Fatalf("rewrite data: %v", err)
	}

	portfolio, err := store.Load()
	if err != nil {
		t.Fatalf("load after tamper: %v", err)
	}
	if len(portfolio) != 0 {
		t.Fatalf("tampered data must yield an empty portfolio, got %d assets", len(portfolio))
	}
}

func TestLoadTamperedSignature(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(samplePortfolio()); err != nil {
		t.Fatalf("save: %v", err)
	}

	sig, err := os.ReadFile(store.SigPath())
	if err != nil {
		t.Fatalf("read signature: %v", err)
	}
	if sig[0] == '0' {
		sig[0] = '1'
	} else {
		sig[0] = '0'
	}
	if err := os.WriteFile(store.SigPath(), sig, 0644); err != nil {
		t.Fatalf("rewrite signature: %v", err)
	}

	portfolio, err := store.Load()
	if err != nil {
		t.Fatalf("load after tamper: %v", err)
	}
	if len(portfolio) != 0 {
		t.Fatalf("tampered signature must yield an empty portfolio")
	}
}

func TestLoadMissingSignatureIsFirstRun(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(samplePortfolio()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.Remove(store.SigPath()); err != nil {
		t.Fatalf("remove signature: %v", err)
	}

	portfolio, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// No signature to compare against: data is trusted with a warning.
	if len(portfolio) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(portfolio))
	}
}

func TestLoadSkipsUnknownDiscriminant(t *testing.T) {
	store := newTestStore(t)

	records := []models.Record{
		{Symbol: "AAPL", Price: 100, Type: models.KindEquity, Exchange: "NASDAQ"},
		{Symbol: "WAT", Price: 1, Type: "Hologram"},
		{Symbol: "BTC", Price: 65000, Type: models.KindCrypto, Chain: "Bitcoin"},
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(store.DataPath()), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(store.DataPath(), data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	portfolio, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(portfolio) != 2 {
		t.Fatalf("expected unknown record to be skipped, got %d assets", len(portfolio))
	}
	if portfolio[0].Symbol() != "AAPL" || portfolio[1].Symbol() != "BTC" {
		t.Fatalf("order not preserved: %v", portfolio.Symbols())
	}
}

func TestSaveOverwritesSignature(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(samplePortfolio()); err != nil {
		t.Fatalf("first save: %v", err)
	}
	first, err := os.ReadFile(store.SigPath())
	if err != nil {
		t.Fatalf("read signature: %v", err)
	}

	p := samplePortfolio()
	p[0].UpdatePrice(181)
	if err := store.Save(p); err != nil {
		t.Fatalf("second save: %v", err)
	}
	second, err := os.ReadFile(store.SigPath())
	if err != nil {
		t.Fatalf("read signature: %v", err)
	}
	if string(first) == string(second) {
		t.Fatalf("signature not refreshed after content change")
	}
}
