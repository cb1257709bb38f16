package reconcile

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// PhotoExtensions are the image files picked up from a photos archive.
var PhotoExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

var ErrNotArchive = errors.New("photos must be uploaded as a .zip archive")

func IsPhotoArchive(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".zip")
}

func isPhoto(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, allowed := range PhotoExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// PhotoKey is how a spreadsheet cell or archive entry refers to a photo:
// the base name without extension, upper-cased.
func PhotoKey(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	return strings.ToUpper(strings.TrimSuffix(base, path.Ext(base)))
}

type Photo struct {
	Key  string
	Name string
	Ext  string
	Size int64
	file *zip.File
}

func (p Photo) Open() (io.ReadCloser, error) {
	if p.file == nil {
		return nil, errors.New("photo is not backed by an archive")
	}
	return p.file.Open()
}

// ReadAll returns the photo bytes, refusing anything larger than limit.
func (p Photo) ReadAll(limit int64) ([]byte, error) {
	rc, err := p.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s is larger than %d bytes", p.Name, limit)
	}
	return data, nil
}

// PhotoArchive indexes the images of a zip upload by PhotoKey. Later
// entries with the same key replace earlier ones.
type PhotoArchive struct {
	photos  map[string]Photo
	Skipped []string
}

func OpenPhotoArchive(r io.ReaderAt, size int64) (*PhotoArchive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open photos archive: %w", err)
	}
	archive := &PhotoArchive{photos: make(map[string]Photo)}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		base := path.Base(f.Name)
		if strings.HasPrefix(base, ".") || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		if !isPhoto(base) {
			archive.Skipped = append(archive.Skipped, f.Name)
			continue
		}
		key := PhotoKey(base)
		archive.photos[key] = Photo{
			Key:  key,
			Name: f.Name,
			Ext:  strings.ToLower(path.Ext(base)),
			Size: int64(f.UncompressedSize64),
			file: f,
		}
	}
	return archive, nil
}

func (a *PhotoArchive) Len() int {
	if a == nil {
		return 0
	}
	return len(a.photos)
}

// Lookup finds the photo a cell value points at.
func (a *PhotoArchive) Lookup(ref string) (Photo, bool) {
	if a == nil || strings.TrimSpace(ref) == "" {
		return Photo{}, false
	}
	p, ok := a.photos[PhotoKey(ref)]
	return p, ok
}

func (a *PhotoArchive) Keys() []string {
	if a == nil {
		return nil
	}
	keys := make([]string, 0, len(a.photos))
	for k := range a.photos {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Coverage counts the data rows whose column value names a photo in the
// archive, and how many rows reference a photo at all.
func (a *PhotoArchive) Coverage(sheet Sheet, column string) (matched, referenced int) {
	idx, ok := sheet.Column(column)
	if !ok {
		return 0, 0
	}
	for _, row := range sheet.Rows {
		ref := Cell(row, idx)
		if ref == "" {
			continue
		}
		referenced++
		if _, ok := a.Lookup(ref); ok {
			matched++
		}
	}
	return matched, referenced
}
