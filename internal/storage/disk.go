package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk footprint of the stores backing one backend.
type Usage struct {
	DatabaseBytes  int64 `json:"database_bytes"`
	TextIndexBytes int64 `json:"text_index_bytes"`
	VectorBytes    int64 `json:"vector_bytes"`
}

// Total returns the sum of all components.
func (u Usage) Total() int64 {
	return u.DatabaseBytes + u.TextIndexBytes + u.VectorBytes
}

// MeasureUsage sizes the SQLite database (including its WAL side files), the bleve
// index directory, and the vector directory. Missing paths count as zero.
func MeasureUsage(dbPath, textIndexPath, vectorDir string) (Usage, error) {
	var u Usage
	var err error
	if u.DatabaseBytes, err = pathBytes(DatabaseFiles(dbPath)...); err != nil {
		return u, err
	}
	if u.TextIndexBytes, err = pathBytes(textIndexPath); err != nil {
		return u, err
	}
	if u.VectorBytes, err = pathBytes(vectorDir); err != nil {
		return u, err
	}
	return u, nil
}

// DatabaseFiles returns the SQLite database file and its WAL-mode side files.
func DatabaseFiles(dbPath string) []string {
	if dbPath == "" {
		return nil
	}
	return []string{dbPath, dbPath + "-wal", dbPath + "-shm"}
}

func pathBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
