package client

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/signalnine/npubench/internal/bench"
)

// Texts recorded for bundles that cannot be sent.
const (
	msgIncomplete    = "Error: Model files incomplete, missing .bin or .param file"
	msgMissingGolden = "Error: Missing golden data folder"
)

// Bundle is a model directory ready to be sent.
type Bundle struct {
	Name   string
	Dir    string
	Bin    string
	Param  string
	Golden []string
}

// FileCount is the number of files the bundle puts on the wire.
func (b *Bundle) FileCount() int {
	return 2 + len(b.Golden)
}

// BundleError is a local problem with a bundle. Its message is recorded as the
// model's result.
type BundleError struct {
	Msg string
}

func (e *BundleError) Error() string { return e.Msg }

// Discover returns the model directories under root, sorted by name. With a
// non-empty filter only the named directories are returned and the names that
// matched nothing are reported in missing.
func Discover(root string, filter []string) (dirs []string, missing []string, err error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("reading model dir: %w", err)
	}
	found := map[string]bool{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if len(filter) > 0 && !slices.Contains(filter, e.Name()) {
			continue
		}
		found[e.Name()] = true
		dirs = append(dirs, filepath.Join(root, e.Name()))
	}
	for _, name := range filter {
		if !found[name] {
			missing = append(missing, name)
		}
	}
	slices.Sort(dirs)
	return dirs, missing, nil
}

// LoadBundle checks dir for <name>.bin and <name>.param, where name is the
// directory's base name, and with useGolden collects the regular files in
// golden/.
func LoadBundle(dir string, useGolden bool) (*Bundle, error) {
	name := filepath.Base(dir)
	b := &Bundle{
		Name:  name,
		Dir:   dir,
		Bin:   filepath.Join(dir, name+bench.ModelBinSuffix),
		Param: filepath.Join(dir, name+bench.ModelParamSuffix),
	}
	if !isFile(b.Bin) || !isFile(b.Param) {
		return nil, &BundleError{Msg: msgIncomplete}
	}
	if !useGolden {
		return b, nil
	}

	golden := filepath.Join(dir, bench.GoldenDir)
	entries, err := os.ReadDir(golden)
	if err != nil {
		return nil, &BundleError{Msg: msgMissingGolden}
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			b.Golden = append(b.Golden, filepath.Join(golden, e.Name()))
		}
	}
	return b, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
