package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// PartialExt marks an archive that is still being written.
const PartialExt = ".partial"

var errMarkerFound = errors.New("marker found")

// writeArchive compresses the full contents of folder into dest, with entry
// names relative to folder. The archive is written under a partial name and
// renamed into place only once complete, so dest never holds a truncated
// archive.
func (e *Engine) writeArchive(folder, dest string) (size int64, err error) {
	tmp := dest + PartialExt
	f, err := e.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if err != nil {
			_ = e.fs.Remove(tmp)
		}
	}()

	zw := zip.NewWriter(f)
	if err = e.addTree(zw, folder); err != nil {
		zw.Close()
		f.Close()
		return 0, err
	}
	if err = zw.Close(); err != nil {
		f.Close()
		return 0, fmt.Errorf("finish archive: %w", err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("sync archive: %w", err)
	}
	if err = f.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}

	if err = e.fs.Rename(tmp, dest); err != nil {
		return 0, fmt.Errorf("finalize archive: %w", err)
	}

	info, err := e.fs.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	return info.Size(), nil
}

func (e *Engine) addTree(zw *zip.Writer, folder string) error {
	return afero.Walk(e.fs, folder, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("header for %s: %w", rel, err)
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
			_, err = zw.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("add %s: %w", rel, err)
		}
		src, err := e.fs.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", rel, err)
		}
		defer src.Close()
		if _, err := io.Copy(w, src); err != nil {
			return fmt.Errorf("compress %s: %w", rel, err)
		}
		return nil
	})
}

// verify checks that an archive exists, is non-empty and lists at least one
// entry.
func (e *Engine) verify(path string) error {
	f, err := e.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errors.New("archive is empty")
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	if len(zr.File) == 0 {
		return errors.New("archive has no entries")
	}
	return nil
}

// hasMarker reports whether folder holds at least one file with the marker
// extension, at any depth.
func (e *Engine) hasMarker(folder string) (bool, error) {
	ext := strings.ToLower(e.opts.MarkerExt)
	err := afero.Walk(e.fs, folder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ext) {
			return errMarkerFound
		}
		return nil
	})
	if errors.Is(err, errMarkerFound) {
		return true, nil
	}
	return false, err
}

// uncovered lists the files of folder, relative and slash-separated, that
// the archive at path does not hold with the same size.
func (e *Engine) uncovered(path, folder string) ([]string, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	sizes := make(map[string]uint64, len(zr.File))
	for _, zf := range zr.File {
		sizes[zf.Name] = zf.UncompressedSize64
	}

	var missing []string
	err = afero.Walk(e.fs, folder, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(folder, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if size, ok := sizes[rel]; !ok || size != uint64(fi.Size()) {
			missing = append(missing, rel)
		}
		return nil
	})
	return missing, err
}
