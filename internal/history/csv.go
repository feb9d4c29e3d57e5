package history

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"autotrader/internal/model"
	"autotrader/pkg/exception"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadCSV reads timestamp,open,high,low,close,volume rows after a header
// line. Rows with fewer than six columns are skipped.
func LoadCSV(path, symbol string) ([]model.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read header %s", path)
	}

	var out []model.Candle
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s line %d", path, line)
		}
		if len(row) < len(csvHeader) {
			continue
		}
		c, err := parseRow(row)
		if err != nil {
			return nil, errors.Wrapf(exception.ErrMalformedCandleRow, "%s line %d: %v", path, line, err)
		}
		c.Symbol = symbol
		out = append(out, c)
	}
	logs.Debugf("loaded %d candles from %s", len(out), path)
	return out, nil
}

func parseRow(row []string) (model.Candle, error) {
	var (
		c   model.Candle
		err error
	)
	if c.Timestamp, err = strconv.ParseInt(row[0], 10, 64); err != nil {
		return c, err
	}
	prices := []*float64{&c.Open, &c.High, &c.Low, &c.Close}
	for i, p := range prices {
		if *p, err = strconv.ParseFloat(row[i+1], 64); err != nil {
			return c, err
		}
	}
	if c.Volume, err = strconv.ParseInt(row[5], 10, 64); err != nil {
		return c, err
	}
	return c, nil
}

// SaveCSV writes candles with a header, prices at two decimals.
func SaveCSV(path string, candles []model.Candle) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create dir %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range candles {
		row := []string{
			strconv.FormatInt(c.Timestamp, 10),
			strconv.FormatFloat(c.Open, 'f', 2, 64),
			strconv.FormatFloat(c.High, 'f', 2, 64),
			strconv.FormatFloat(c.Low, 'f', 2, 64),
			strconv.FormatFloat(c.Close, 'f', 2, 64),
			strconv.FormatInt(c.Volume, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// FilterByDate keeps candles with from <= timestamp <= to.
func FilterByDate(candles []model.Candle, from, to time.Time) []model.Candle {
	lo, hi := from.UnixMilli(), to.UnixMilli()
	out := make([]model.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Timestamp >= lo && c.Timestamp <= hi {
			out = append(out, c)
		}
	}
	return out
}

// DownloadAndSave fetches days of daily candles and writes them to dir as
// <symbol>.csv, returning the file path.
func DownloadAndSave(ctx context.Context, src Source, symbol, dir string, days int) (string, error) {
	candles, err := src.DailyCandles(ctx, symbol, days)
	if err != nil {
		return "", err
	}
	if len(candles) == 0 {
		return "", errors.Wrapf(exception.ErrInsufficientData, "no daily candles for %s", symbol)
	}
	path := filepath.Join(dir, safe(symbol)+".csv")
	if err := SaveCSV(path, candles); err != nil {
		return "", err
	}
	logs.Infof("saved %d candles to %s", len(candles), path)
	return path, nil
}
