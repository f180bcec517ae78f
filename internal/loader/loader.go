// Package loader finds test module files and parses them into lib.Modules.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/liuxd6825/wdrunner/lib"
)

// Extensions of the files treated as test modules.
var Extensions = []string{".yaml", ".yml"}

// ErrNotFound is returned for a source that does not exist.
var ErrNotFound = errors.New("no such file or directory")

// File is a discovered module file.
type File struct {
	// Key is the module's path relative to the parent of the source it was
	// found through, slash separated and without the extension.
	Key string
	// Name is the path of the file on the filesystem.
	Name string
}

// Discover returns the module files under sources. Sources are visited in the
// given order and the files of a directory in lexical order, so the result is
// the same on every call. Hidden directories are not descended into.
func Discover(fs afero.Fs, sources []string) ([]File, error) {
	var (
		files []File
		seen  = make(map[string]string)
	)
	for _, src := range sources {
		src = filepath.Clean(src)
		found, err := discoverSource(fs, src)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if prev, ok := seen[f.Key]; ok {
				return nil, fmt.Errorf("module %q is defined by both %s and %s", f.Key, prev, f.Name)
			}
			seen[f.Key] = f.Name
			files = append(files, f)
		}
	}
	return files, nil
}

func discoverSource(fs afero.Fs, src string) ([]File, error) {
	fi, err := fs.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", src, ErrNotFound)
		}
		return nil, err
	}
	base := filepath.Dir(src)

	if !fi.IsDir() {
		if !isModuleFile(src) {
			return nil, fmt.Errorf("%s is not a test module, expected one of %s",
				src, strings.Join(Extensions, ", "))
		}
		return []File{{Key: keyOf(base, src), Name: src}}, nil
	}

	var files []File
	err = afero.Walk(fs, src, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if name != src && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isModuleFile(name) {
			files = append(files, File{Key: keyOf(base, name), Name: name})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", src, err)
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func isModuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func keyOf(base, name string) string {
	rel, err := filepath.Rel(base, name)
	if err != nil {
		rel = name
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, path.Ext(rel))
}

// Load discovers and parses every module under sources.
func Load(fs afero.Fs, sources []string) ([]*lib.Module, error) {
	files, err := Discover(fs, sources)
	if err != nil {
		return nil, err
	}
	modules := make([]*lib.Module, 0, len(files))
	for _, f := range files {
		data, err := afero.ReadFile(fs, f.Name)
		if err != nil {
			return nil, err
		}
		m, err := Parse(f.Key, f.Name, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		modules = append(modules, m)
	}
	return modules, nil
}
