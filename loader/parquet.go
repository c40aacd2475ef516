package loader

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// RowWriter writes expanded charge rows to a Parquet file for analytical
// engines (DuckDB and friends) that read the warehouse handoff directly
// instead of going through PostgreSQL. Optional stage; the relational load
// path does not depend on it.
type RowWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[ChargeRow]
	count  int
}

// NewRowWriter creates a Parquet writer. Zstd keeps the files small; the
// hospital metadata columns repeat per row and dictionary-encode to near
// zero.
func NewRowWriter(filename string) (*RowWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[ChargeRow](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.CreatedBy("pricepipe", "1.0", ""),
	)

	return &RowWriter{file: file, writer: writer}, nil
}

// Write appends a batch of rows.
func (w *RowWriter) Write(rows []ChargeRow) (int, error) {
	n, err := w.writer.Write(rows)
	w.count += n
	if err != nil {
		return n, fmt.Errorf("write parquet rows: %w", err)
	}
	return n, nil
}

// Close flushes the final row group and closes the file.
func (w *RowWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return w.file.Close()
}

// Count returns the total number of rows written.
func (w *RowWriter) Count() int {
	return w.count
}
