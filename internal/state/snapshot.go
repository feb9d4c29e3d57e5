package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/yanun0323/errors"

	"autotrader/internal/risk"
)

// Snapshot is the on-disk form of the ledger at a point in time.
type Snapshot struct {
	Timestamp int64         `json:"timestamp"`
	Ledger    risk.Snapshot `json:"ledger"`
}

// PositionEntry is a single symbol quantity.
type PositionEntry struct {
	Symbol string `json:"symbol"`
	Qty    int64  `json:"qty"`
}

// Capture snapshots the ledger, stamped with ts in milliseconds.
func Capture(ledger *risk.Ledger, ts int64) Snapshot {
	return Snapshot{Timestamp: ts, Ledger: ledger.Snapshot()}
}

// Entries returns position quantities sorted by symbol.
func (s Snapshot) Entries() []PositionEntry {
	entries := make([]PositionEntry, 0, len(s.Ledger.Positions))
	for _, pos := range s.Ledger.Positions {
		entries = append(entries, PositionEntry{Symbol: pos.Symbol, Qty: pos.Quantity})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Symbol < entries[j].Symbol
	})
	return entries
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create snapshot dir %s", dir)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(err, "decode snapshot %s", path)
	}
	return snap, nil
}

// CompareSnapshots checks that both snapshots hold the same quantities.
func CompareSnapshots(expected, actual Snapshot) error {
	return CompareQuantities(toMap(expected.Entries()), toMap(actual.Entries()))
}

// CompareQuantities checks two symbol to quantity maps for equality. Zero
// quantities count as absent.
func CompareQuantities(expected, actual map[string]int64) error {
	want := nonZero(expected)
	got := nonZero(actual)
	if len(want) != len(got) {
		return errors.Errorf("position count mismatch: expected=%d actual=%d", len(want), len(got))
	}
	symbols := make([]string, 0, len(want))
	for symbol := range want {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		qty, ok := got[symbol]
		if !ok {
			return errors.Errorf("position missing symbol: %s", symbol)
		}
		if qty != want[symbol] {
			return errors.Errorf("position qty mismatch: symbol=%s expected=%d actual=%d", symbol, want[symbol], qty)
		}
	}
	return nil
}

func toMap(entries []PositionEntry) map[string]int64 {
	out := make(map[string]int64, len(entries))
	for _, e := range entries {
		out[e.Symbol] = e.Qty
	}
	return out
}

func nonZero(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}
