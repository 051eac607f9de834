// Package scan supplies the ordered file stream the container encoder
// consumes. Paths are recorded relative to the scan root with forward
// slashes, so an archive can be verified after being moved or burned to
// read-only media.
package scan

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
)

// Walk returns every regular file under root, sorted by relative path
// so generation is deterministic for a given tree.
func Walk(root string) ([]eccfile.FileInfo, error) {
	var files []eccfile.FileInfo
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, eccfile.FileInfo{
			RelPath: filepath.ToSlash(rel),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan: walking %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// LoadErrorsList reads a CSV produced by an external integrity audit
// and returns the relative paths in its first column. A header row
// whose first field is "filepath" or "path" is skipped.
func LoadErrorsList(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	out := make(map[string]struct{})
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan: reading errors list %s: %w", path, err)
		}
		if len(rec) == 0 {
			continue
		}
		p := strings.TrimSpace(rec[0])
		if first {
			first = false
			if p == "filepath" || p == "path" {
				continue
			}
		}
		if p != "" {
			out[filepath.ToSlash(p)] = struct{}{}
		}
	}
	return out, nil
}
