package data

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// LoadConstraintJSON reads one hour's constraint payload from disk, in the same
// shape the publication tool returns.
func LoadConstraintJSON(path string) ([]RawRow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeConstraints(raw)
}

// DirFetcher serves hours from a directory of saved payloads named
// jao_YYYYMMDDTHH.json. A missing file is an hour without data. It lets the
// CLI and tests run the acquisition path offline.
type DirFetcher struct {
	Dir string
}

// HourFile returns the file name used for hour.
func HourFile(hour time.Time) string {
	return "jao_" + hour.UTC().Format("20060102T15") + ".json"
}

func (f DirFetcher) FetchHour(ctx context.Context, hour time.Time) ([]RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := LoadConstraintJSON(filepath.Join(f.Dir, HourFile(hour)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hour %s: %w", hour.UTC().Format(time.RFC3339), err)
	}
	return rows, nil
}
