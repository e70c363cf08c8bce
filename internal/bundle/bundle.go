// Package bundle packs archive directories into deflate ZIP files.
package bundle

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// stagingPattern names in-progress archives. Leftovers from an interrupted
// run match it too and are never packed.
const stagingPattern = ".bundle-*.zip"

// Dir writes a ZIP of every regular file under src to dst and returns the
// number of files added. Entry names are relative to src with forward
// slashes. When dst lies inside src it is left out of its own archive, as
// is any path in exclude. The archive is staged next to dst and renamed
// into place.
func Dir(src, dst string, exclude ...string) (int, error) {
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", dst, err)
	}
	skip := make([]string, 0, len(exclude)+2)
	for _, e := range exclude {
		abs, err := filepath.Abs(e)
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", e, err)
		}
		skip = append(skip, abs)
	}
	if err := os.MkdirAll(filepath.Dir(absDst), 0o755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(absDst), stagingPattern)
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	skip = append(skip, absDst, tmpPath)
	n, err := write(tmp, src, skip)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close temp: %w", cerr)
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, absDst); err != nil {
		return 0, fmt.Errorf("rename %s: %w", filepath.Base(dst), err)
	}
	return n, nil
}

func write(w io.Writer, src string, skip []string) (int, error) {
	zw := zip.NewWriter(w)
	count := 0

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if staged, _ := filepath.Match(stagingPattern, d.Name()); staged {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		for _, s := range skip {
			if abs == s {
				return nil
			}
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel)); err != nil {
			return fmt.Errorf("add %s: %w", rel, err)
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return 0, fmt.Errorf("walk %s: %w", src, err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finish zip: %w", err)
	}
	return count, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
