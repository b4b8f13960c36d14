package app

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shpitdev/palettex/pkg/extraction/core"
)

// ImageInput pairs a source path with the loaded image bytes.
type ImageInput struct {
	Path  string
	Image core.ImageHandle
}

// imageExts are the extensions picked up by a directory scan; they mirror
// the content types the extractors accept.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// LoadImages resolves batch inputs from exactly one source: a directory
// scanned for image files (sorted by name), or a CSV manifest with a
// "path" column. Relative manifest paths resolve against the manifest's
// own directory.
func LoadImages(dir, manifestPath string) ([]ImageInput, error) {
	switch {
	case dir != "" && manifestPath != "":
		return nil, fmt.Errorf("input dir and manifest are mutually exclusive")
	case dir == "" && manifestPath == "":
		return nil, fmt.Errorf("either an input dir or a manifest is required")
	}

	var paths []string
	if dir != "" {
		var err error
		paths, err = listImageDir(dir)
		if err != nil {
			return nil, err
		}
	} else {
		f, err := os.Open(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("open manifest: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		paths, err = readManifestPaths(f, filepath.Dir(manifestPath))
		if err != nil {
			return nil, err
		}
	}

	inputs := make([]ImageInput, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", p, err)
		}
		inputs = append(inputs, ImageInput{Path: p, Image: core.NewImageHandle(data)})
	}
	return inputs, nil
}

// listImageDir returns the image files directly under dir, sorted by name
// so batch indices are stable across runs.
func listImageDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// readManifestPaths reads a CSV manifest and returns the values from the
// "path" column in file order. Blank cells are skipped.
func readManifestPaths(r io.Reader, baseDir string) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read manifest header: %w", err)
	}
	pathIdx := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "path") {
			pathIdx = i
			break
		}
	}
	if pathIdx < 0 {
		return nil, fmt.Errorf("manifest missing required column %q", "path")
	}

	var paths []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest row: %w", err)
		}
		if pathIdx >= len(rec) {
			return nil, fmt.Errorf("manifest row has %d columns, want at least %d", len(rec), pathIdx+1)
		}
		p := strings.TrimSpace(rec[pathIdx])
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
