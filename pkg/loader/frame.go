// Package loader reads tabular files into dataframes and converts them into
// the scripted pin readings used by the simulation backend.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/xitongsys/parquet-go-source/local"
)

// Error definitions
var (
	ErrEmptyFile         = errors.New("empty table file")
	ErrUnsupportedFormat = errors.New("unsupported table format")
)

// LoadFrame reads a CSV, JSON or Parquet file, chosen by extension.
func LoadFrame(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(ctx, path)
	case ".json", ".jsonl":
		return LoadJSON(ctx, path)
	case ".parquet":
		return LoadParquet(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// LoadCSV reads a CSV file whose first row is the header. Column types are
// inferred.
func LoadCSV(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	df, err := imports.LoadFromCSV(ctx, file, imports.CSVLoadOptions{
		InferDataTypes: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nonEmpty(df, path)
}

// LoadJSON reads a JSON array of objects: [{"col1": val1, ...}, ...].
func LoadJSON(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	df, err := imports.LoadFromJSON(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nonEmpty(df, path)
}

// LoadParquet reads a Parquet file through the local file source.
func LoadParquet(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	df, err := imports.LoadFromParquet(ctx, fr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nonEmpty(df, path)
}

func nonEmpty(df *dataframe.DataFrame, path string) (*dataframe.DataFrame, error) {
	if df == nil || len(df.Series) == 0 || df.NRows() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return df, nil
}
