// Package util provides path helpers shared by the CLI commands.
package util

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OutputExt is the extension of every written course file.
const OutputExt = ".tcx"

// OutputPath derives the output file for input: the extension is dropped and
// suffix plus ".tcx" appended, in the same directory.
// Example: OutputPath("rides/loop.tcx", "New") == "rides/loopNew.tcx".
func OutputPath(input, suffix string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + suffix + OutputExt
}

// SamePath reports whether a and b name the same file after cleaning and
// resolving to absolute paths.
func SamePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// IsOutput reports whether path is named like a file OutputPath would
// produce for suffix. An empty suffix never matches.
func IsOutput(path, suffix string) bool {
	if suffix == "" || filepath.Ext(path) != OutputExt {
		return false
	}
	stem := strings.TrimSuffix(filepath.Base(path), OutputExt)
	return len(stem) > len(suffix) && strings.HasSuffix(stem, suffix)
}

// ExpandInputs expands glob patterns in args. Arguments without glob
// metacharacters are kept as given even if the file does not exist, so the
// caller reports the open error. Glob matches that look like earlier output
// for outputSuffix are returned in skipped instead. Duplicates are dropped;
// order is kept.
func ExpandInputs(args []string, outputSuffix string) (files, skipped []string, err error) {
	seen := make(map[string]bool, len(args))
	add := func(p string) {
		key := filepath.Clean(p)
		if seen[key] {
			return
		}
		seen[key] = true
		files = append(files, p)
	}

	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			add(arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, nil, fmt.Errorf("no files match %q", arg)
		}
		for _, m := range matches {
			if IsOutput(m, outputSuffix) {
				skipped = append(skipped, m)
				continue
			}
			add(m)
		}
	}
	return files, skipped, nil
}
