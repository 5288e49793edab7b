package claims

import (
	"context"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// ReadCounts reads counts from a Parquet file with the Counts schema.
func ReadCounts(path string) ([]Counts, error) {
	counts, err := parquet.ReadFile[Counts](path)
	if err != nil {
		return nil, fmt.Errorf("read counts parquet: %w", err)
	}
	return counts, nil
}

// WriteCounts writes counts to a snappy-compressed Parquet file at path.
func WriteCounts(path string, counts []Counts) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create counts parquet: %w", err)
	}

	writer := parquet.NewGenericWriter[Counts](file,
		parquet.Compression(&parquet.Snappy),
	)
	if _, err := writer.Write(counts); err != nil {
		writer.Close()
		file.Close()
		return fmt.Errorf("write counts: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("close counts writer: %w", err)
	}
	return file.Close()
}

// ParquetSource serves counts from a Parquet file, e.g. one produced by
// `docrank export` from the claims database.
type ParquetSource struct {
	Path string
}

// Counts reads the whole file; ctx is only checked before reading.
func (s ParquetSource) Counts(ctx context.Context) ([]Counts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadCounts(s.Path)
}
