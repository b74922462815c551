package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/colinmarc/eventrader/event"
)

// CSVBarSource reads the row-per-bar CSV format from spec §6:
//
//	datetime,open,high,low,close,volume
//	2024-01-01T00:00:00+00:00,42000.00,42100.00,41950.00,42050.00,12.345
//
// The header is required; unknown trailing columns are ignored; datetime
// must carry an explicit offset. The source reads eagerly into memory at
// construction time (bars are small and CSVs are historical, not
// streaming), then serves them like a SliceSource.
type CSVBarSource struct {
	pair   string
	period time.Duration
	inner  *SliceSource
}

// NewCSVBarSource parses r as bar CSV for pair, with bars spaced period
// apart (period is not derivable from two adjacent close timestamps alone
// when bars are sparse, so the caller supplies it).
func NewCSVBarSource(r io.Reader, pair string, period time.Duration) (*CSVBarSource, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // unknown trailing columns are ignored

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("source: reading bar csv header: %w", err)
	}
	col, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var events []event.Event
	var prevClose time.Time
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("source: reading bar csv row: %w", err)
		}

		bar, err := parseBarRow(record, col, pair, period)
		if err != nil {
			return nil, err
		}
		if !prevClose.IsZero() && bar.CloseTime.Before(prevClose) {
			return nil, fmt.Errorf("source: bar csv rows are not chronologically ordered (%s before %s)", bar.CloseTime, prevClose)
		}
		prevClose = bar.CloseTime
		events = append(events, bar)
	}

	return &CSVBarSource{pair: pair, period: period, inner: NewSliceSource(events...)}, nil
}

type columns struct {
	datetime, open, high, low, close, volume int
}

func columnIndex(header []string) (columns, error) {
	want := map[string]*int{
		"datetime": nil, "open": nil, "high": nil, "low": nil, "close": nil, "volume": nil,
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for name := range want {
		if _, ok := idx[name]; !ok {
			return columns{}, fmt.Errorf("source: bar csv header missing required column %q", name)
		}
	}
	return columns{
		datetime: idx["datetime"],
		open:     idx["open"],
		high:     idx["high"],
		low:      idx["low"],
		close:    idx["close"],
		volume:   idx["volume"],
	}, nil
}

func parseBarRow(record []string, col columns, pair string, period time.Duration) (event.Bar, error) {
	field := func(i int, name string) (string, error) {
		if i >= len(record) {
			return "", fmt.Errorf("source: bar csv row missing column %q", name)
		}
		return record[i], nil
	}

	datetimeStr, err := field(col.datetime, "datetime")
	if err != nil {
		return event.Bar{}, err
	}
	closeTime, err := time.Parse(time.RFC3339, datetimeStr)
	if err != nil {
		return event.Bar{}, fmt.Errorf("source: bar csv datetime %q must carry an explicit offset: %w", datetimeStr, err)
	}

	dec := func(i int, name string) (decimal.Decimal, error) {
		raw, err := field(i, name)
		if err != nil {
			return decimal.Decimal{}, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("source: bar csv column %q: %w", name, err)
		}
		return d, nil
	}

	open, err := dec(col.open, "open")
	if err != nil {
		return event.Bar{}, err
	}
	high, err := dec(col.high, "high")
	if err != nil {
		return event.Bar{}, err
	}
	low, err := dec(col.low, "low")
	if err != nil {
		return event.Bar{}, err
	}
	closeP, err := dec(col.close, "close")
	if err != nil {
		return event.Bar{}, err
	}
	volume, err := dec(col.volume, "volume")
	if err != nil {
		return event.Bar{}, err
	}

	bar := event.Bar{
		Pair:      pair,
		Period:    period,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
		CloseTime: closeTime,
	}
	if err := bar.Validate(); err != nil {
		return event.Bar{}, err
	}
	return bar, nil
}

// PeekWhen implements EventSource.
func (s *CSVBarSource) PeekWhen() (time.Time, bool) { return s.inner.PeekWhen() }

// Pop implements EventSource.
func (s *CSVBarSource) Pop() (event.Event, bool) { return s.inner.Pop() }

// Terminated implements EventSource.
func (s *CSVBarSource) Terminated() bool { return s.inner.Terminated() }
