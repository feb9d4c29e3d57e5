package state

import (
	"os"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"autotrader/internal/risk"
)

// RecoverResult reports what Recover restored.
type RecoverResult struct {
	Restored  bool
	Day       string
	Positions int
	Trades    int
	// Drift is set when the trade log does not reproduce the positions.
	Drift error
}

// Recover restores the ledger from the snapshot at path when it was taken on
// day. A missing file or a snapshot from another day leaves the ledger
// untouched.
func Recover(path, day string, ledger *risk.Ledger) (RecoverResult, error) {
	if path == "" {
		return RecoverResult{}, nil
	}
	snap, err := ReadSnapshot(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RecoverResult{}, nil
		}
		return RecoverResult{}, err
	}
	res := RecoverResult{Day: snap.Ledger.Day}
	if snap.Ledger.Day != day {
		logs.Infof("skip snapshot from %s, today is %s", snap.Ledger.Day, day)
		return res, nil
	}

	replayed := Replay(snap.Ledger.Trades)
	if err := CompareQuantities(toMap(snap.Entries()), replayed.Quantities()); err != nil {
		res.Drift = errors.Wrap(err, "trade log disagrees with positions")
		logs.Warnf("snapshot %s: %+v", path, res.Drift)
	}

	ledger.Restore(snap.Ledger)
	res.Restored = true
	res.Positions = len(snap.Ledger.Positions)
	res.Trades = len(snap.Ledger.Trades)
	logs.Infof("ledger restored from %s, positions: %d, trades: %d", path, res.Positions, res.Trades)
	return res, nil
}
