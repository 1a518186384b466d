package pck

import (
	"fmt"
	"io/fs"
	"path/filepath"
)

// ResourcePrefix is prepended to scanned relative paths to form logical paths.
const ResourcePrefix = "res://"

// ScannedFile is a file on disk to be packed under a logical path.
type ScannedFile struct {
	Path   string // Logical path inside the archive
	Source string // Path on disk
	Size   int64
}

// ScanFiles walks inputDir and returns every regular file in lexical order,
// named res://<slash-separated path relative to inputDir>.
func ScanFiles(inputDir string) ([]ScannedFile, error) {
	var files []ScannedFile

	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(inputDir, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		files = append(files, ScannedFile{
			Path:   ResourcePrefix + filepath.ToSlash(relPath),
			Source: path,
			Size:   info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
