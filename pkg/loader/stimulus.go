package loader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/akhildatla/mcvm/pkg/hw"
)

// Stimulus table columns.
const (
	ColumnPin   = "pin"
	ColumnKind  = "kind"
	ColumnValue = "value"
)

var (
	ErrMissingColumn = errors.New("missing column")
	ErrBadCell       = errors.New("invalid cell")
)

// LoadStimulus reads a stimulus table with columns pin, kind and value.
// Rows are replayed per pin in file order.
func LoadStimulus(path string) (*hw.Stimulus, error) {
	df, err := LoadFrame(context.Background(), path)
	if err != nil {
		return nil, err
	}
	return StimulusFromFrame(df)
}

// StimulusFromFrame converts a dataframe with pin, kind and value columns.
func StimulusFromFrame(df *dataframe.DataFrame) (*hw.Stimulus, error) {
	pins, err := column(df, ColumnPin)
	if err != nil {
		return nil, err
	}
	kinds, err := column(df, ColumnKind)
	if err != nil {
		return nil, err
	}
	values, err := column(df, ColumnValue)
	if err != nil {
		return nil, err
	}

	st := hw.NewStimulus()
	for row := 0; row < df.NRows(); row++ {
		pin, ok := intValue(pins, row)
		if !ok || pin < 0 || pin > math.MaxUint8 {
			return nil, fmt.Errorf("%w: row %d: pin %v", ErrBadCell, row+1, pins.Value(row))
		}
		kindText, ok := stringValue(kinds, row)
		if !ok {
			return nil, fmt.Errorf("%w: row %d: kind %v", ErrBadCell, row+1, kinds.Value(row))
		}
		kind, err := hw.ParseKind(kindText)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row+1, err)
		}
		value, ok := intValue(values, row)
		if !ok || value < 0 || value > math.MaxUint32 {
			return nil, fmt.Errorf("%w: row %d: value %v", ErrBadCell, row+1, values.Value(row))
		}
		st.Add(uint8(pin), kind, uint32(value))
	}
	return st, nil
}

func column(df *dataframe.DataFrame, name string) (dataframe.Series, error) {
	idx, err := df.NameToColumn(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
	}
	return df.Series[idx], nil
}

// intValue extracts an integer from a cell. Whole floats and numeric
// strings are accepted since JSON and untyped CSV columns produce them.
func intValue(s dataframe.Series, i int) (int64, bool) {
	if i < 0 || i >= s.NRows() {
		return 0, false
	}
	switch v := s.Value(i).(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func stringValue(s dataframe.Series, i int) (string, bool) {
	if i < 0 || i >= s.NRows() {
		return "", false
	}
	if str, ok := s.Value(i).(string); ok {
		return str, true
	}
	return "", false
}
