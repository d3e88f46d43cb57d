package pagechunks

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/experius/pwa-buildpack/internal/logging"
)

// ModuleExtensions are the file extensions treated as page modules.
var ModuleExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}

// Page is one discovered page module.
type Page struct {
	Name       string // file base name without extension, case preserved
	SourcePath string // absolute path
}

// Duplicate records a page skipped because an earlier directory already
// provided a page with the same name.
type Duplicate struct {
	Name    string
	Kept    string
	Skipped string
}

// ScanResult is the outcome of scanning every pages directory.
type ScanResult struct {
	Pages      []Page
	Duplicates []Duplicate
}

// Scan returns the pages found in dirs. Directories are processed in order
// and the first page with a given name wins.
func Scan(dirs []string) ([]Page, error) {
	res, err := ScanDirs(dirs)
	if err != nil {
		return nil, err
	}
	return res.Pages, nil
}

// ScanDirs is Scan with the skipped duplicates reported.
func ScanDirs(dirs []string) (*ScanResult, error) {
	res := &ScanResult{}
	seen := make(map[string]string)

	for _, dir := range dirs {
		names, err := listModules(dir)
		if err != nil {
			return nil, err
		}
		for _, file := range names {
			name := pageName(file)
			path := filepath.Join(dir, file)
			if kept, ok := seen[name]; ok {
				logging.PagesWarn("page %q in %s is shadowed by %s", name, path, kept)
				res.Duplicates = append(res.Duplicates, Duplicate{Name: name, Kept: kept, Skipped: path})
				continue
			}
			seen[name] = path
			res.Pages = append(res.Pages, Page{Name: name, SourcePath: path})
		}
	}

	if len(res.Pages) == 0 {
		return nil, &DiscoveryError{Paths: dirs, Reason: "no page modules found in"}
	}
	logging.PagesDebug("discovered %d pages in %d directories", len(res.Pages), len(dirs))
	return res, nil
}

// listModules returns the page module file names in dir, sorted.
func listModules(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &DiscoveryError{Paths: []string{dir}, Reason: "pages directory does not exist"}
		}
		return nil, &DiscoveryError{Paths: []string{dir}, Reason: "cannot read pages directory", Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Paths: []string{dir}, Reason: "pages path is not a directory"}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &DiscoveryError{Paths: []string{dir}, Reason: "cannot read pages directory", Err: err}
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || !isModuleFile(name) {
			continue
		}
		if !isRegular(dir, e) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func isRegular(dir string, e fs.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.Mode().IsRegular()
}

func isModuleFile(name string) bool {
	if strings.HasSuffix(name, ".d.ts") {
		return false
	}
	ext := filepath.Ext(name)
	for _, m := range ModuleExtensions {
		if ext == m {
			return true
		}
	}
	return false
}

func pageName(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file))
}
