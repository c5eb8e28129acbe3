// SPDX-License-Identifier: MPL-2.0

package dict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	// StrategyNone copies the compiled base unchanged.
	StrategyNone Strategy = "none"
	// StrategyMerge recompiles the base sources with the overlay entries.
	StrategyMerge Strategy = "merge"
	// StrategyOverlay compiles the overlay entries into a separate user
	// dictionary.
	StrategyOverlay Strategy = "overlay"

	// OverlayCSVName is the extra source file written by StrategyMerge. It
	// sorts after the upstream lexicon files.
	OverlayCSVName = "zz_overlay.csv"
	// UserDictName is the compiled user dictionary written beside the
	// dictionary directory.
	UserDictName = "user.dic"
)

var (
	// ErrInvalidStrategy is returned for an unknown Strategy.
	ErrInvalidStrategy = errors.New("invalid dictionary strategy")

	// CompiledFiles must exist in a compiled dictionary directory.
	CompiledFiles = []string{"sys.dic", "matrix.bin", "char.bin", "unk.dic"}

	// SourceFiles must exist in a dictionary source directory.
	SourceFiles = []string{"matrix.def", "char.def", "unk.def"}
)

type (
	// Strategy selects how overlay entries reach the image.
	Strategy string

	// Options describes one dictionary assembly.
	Options struct {
		Strategy Strategy
		// Base is a compiled dictionary directory (none, overlay).
		Base string
		// BaseSource is a dictionary source directory (merge).
		BaseSource string
		// Overlays are CSV files; missing files are skipped.
		Overlays []string
		// UserEntries are CSV files compiled into the user dictionary under
		// every strategy. Missing files are skipped.
		UserEntries []string
		// BakeUserDict compiles a user dictionary even when it has no
		// entries.
		BakeUserDict bool
		// Out receives <StableName>/ and, for overlay, user.dic.
		Out        string
		StableName string
		Compiler   Compiler
		Logger     *log.Logger
	}

	// Result describes the assembled output.
	Result struct {
		// Dir is <Out>/<StableName>.
		Dir string
		// UserDict is the compiled user dictionary, or "" when none was built.
		UserDict string
		// Entries is the number of overlay entries applied.
		Entries int
		// UserEntries is the number of entries in UserDict.
		UserEntries int
	}
)

// Validate returns an error if the Strategy is not recognized.
func (s Strategy) Validate() error {
	switch s {
	case StrategyNone, StrategyMerge, StrategyOverlay:
		return nil
	}
	return fmt.Errorf("%w: %q (valid: none, merge, overlay)", ErrInvalidStrategy, s)
}

// Assemble builds the dictionary described by opts.
func Assemble(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Strategy.Validate(); err != nil {
		return nil, err
	}
	if opts.StableName == "" || strings.ContainsRune(opts.StableName, '/') {
		return nil, fmt.Errorf("invalid stable dictionary name %q", opts.StableName)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("dict")
	}

	entries, err := ReadOverlays(opts.Overlays)
	if err != nil {
		return nil, err
	}
	userEntries, err := ReadOverlays(opts.UserEntries)
	if err != nil {
		return nil, err
	}
	if opts.Strategy == StrategyOverlay {
		userEntries = append(userEntries, entries...)
	}

	res := &Result{Dir: filepath.Join(opts.Out, opts.StableName), Entries: len(entries)}
	if err := os.MkdirAll(opts.Out, 0o755); err != nil {
		return nil, err
	}
	if _, err := os.Lstat(res.Dir); err == nil {
		return nil, fmt.Errorf("output %s already exists", res.Dir)
	}

	switch opts.Strategy {
	case StrategyNone, StrategyOverlay:
		if err := requireFiles(opts.Base, CompiledFiles); err != nil {
			return nil, err
		}
		if err := copyDir(opts.Base, res.Dir); err != nil {
			return nil, fmt.Errorf("copying base dictionary: %w", err)
		}
	case StrategyMerge:
		if err := requireFiles(opts.BaseSource, SourceFiles); err != nil {
			return nil, err
		}
		if err := compileMerged(ctx, opts, res, entries); err != nil {
			return nil, err
		}
	}

	if opts.BakeUserDict || len(userEntries) > 0 {
		if err := compileUser(ctx, opts, res, userEntries); err != nil {
			return nil, err
		}
		res.UserEntries = len(userEntries)
	}

	logger.Info("dictionary assembled", "strategy", opts.Strategy, "dir", res.Dir,
		"overlay_entries", len(entries), "user_dict", res.UserDict, "user_entries", res.UserEntries)
	return res, nil
}

func compileUser(ctx context.Context, opts Options, res *Result, entries []Entry) error {
	if opts.Compiler == nil {
		return errors.New("compiling a user dictionary requires a compiler")
	}
	work, err := os.MkdirTemp("", "vvimage-userdict-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(work) }()

	csvFile := filepath.Join(work, "user.csv")
	if err := writeCSVFile(csvFile, entries); err != nil {
		return err
	}
	res.UserDict = filepath.Join(opts.Out, UserDictName)
	if err := opts.Compiler.CompileUser(ctx, res.Dir, csvFile, res.UserDict); err != nil {
		return &DictionaryError{Path: csvFile, Err: fmt.Errorf("compiling user dictionary: %w", err)}
	}
	return nil
}

// compileMerged copies the sources into a private work dir, adds the overlay
// CSV when there are entries, and compiles into the output directory.
func compileMerged(ctx context.Context, opts Options, res *Result, entries []Entry) error {
	if opts.Compiler == nil {
		return errors.New("merge strategy requires a compiler")
	}
	work, err := os.MkdirTemp("", "vvimage-dicsrc-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(work) }()

	if err := copyDir(opts.BaseSource, work); err != nil {
		return fmt.Errorf("copying dictionary sources: %w", err)
	}
	if len(entries) > 0 {
		if err := writeCSVFile(filepath.Join(work, OverlayCSVName), entries); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(res.Dir, 0o755); err != nil {
		return err
	}
	if err := opts.Compiler.CompileSystem(ctx, work, res.Dir); err != nil {
		_ = os.RemoveAll(res.Dir)
		return &DictionaryError{Path: opts.BaseSource, Err: fmt.Errorf("compiling dictionary: %w", err)}
	}
	return requireFiles(res.Dir, CompiledFiles)
}

func requireFiles(dir string, names []string) error {
	if dir == "" {
		return &DictionaryError{Path: "<unset>", Err: errors.New("base dictionary directory is not configured")}
	}
	var missing []string
	for _, n := range names {
		if _, err := os.Stat(filepath.Join(dir, n)); err != nil {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &DictionaryError{Path: dir, Err: fmt.Errorf("incompatible dictionary format: missing %s", strings.Join(missing, ", "))}
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return fmt.Errorf("unsupported entry %s", rel)
		}
		return copyRegular(path, target)
	})
}

func copyRegular(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }() // read-only handle
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
