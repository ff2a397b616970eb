package dataprocessing

import (
	"fmt"
	"regexp"
	"strings"

	"pedeprep/internal/frame"
)

var dotSuffixRE = regexp.MustCompile(`^(.+)\.(\d+)$`)

// NormalizeHeaderLabels trims and whitespace-collapses raw column labels.
func NormalizeHeaderLabels(labels []string) []string {
	out := make([]string, len(labels))
	for i, label := range labels {
		out[i] = strings.Join(strings.Fields(label), " ")
	}
	return out
}

// ResolveDuplicateLabels rewrites duplicated header labels into deterministic
// __dupN names. Two shapes are handled: dot-suffixed re-import duplicates
// ("Foo.1") and literal repeats of a label already emitted. The suffix search
// ascends until it finds a name free among both pre-existing and freshly
// generated labels. Returns the resolved labels and the rename map for audit.
func ResolveDuplicateLabels(labels []string) ([]string, map[string]string) {
	occupied := make(map[string]bool, len(labels))
	for _, label := range labels {
		occupied[label] = true
	}

	newLabels := make([]string, 0, len(labels))
	emitted := make(map[string]bool, len(labels))
	renameMap := make(map[string]string)

	nextFree := func(base string) string {
		suffix := 1
		candidate := fmt.Sprintf("%s__dup%d", base, suffix)
		for occupied[candidate] || emitted[candidate] {
			suffix++
			candidate = fmt.Sprintf("%s__dup%d", base, suffix)
		}
		return candidate
	}

	for _, label := range labels {
		match := dotSuffixRE.FindStringSubmatch(label)
		if match == nil {
			if emitted[label] {
				candidate := nextFree(label)
				newLabels = append(newLabels, candidate)
				emitted[candidate] = true
				occupied[candidate] = true
				renameMap[label] = candidate
			} else {
				newLabels = append(newLabels, label)
				emitted[label] = true
			}
			continue
		}

		candidate := nextFree(match[1])
		newLabels = append(newLabels, candidate)
		emitted[candidate] = true
		occupied[candidate] = true
		renameMap[label] = candidate
	}

	return newLabels, renameMap
}

// NormalizeFrameHeaders applies label normalization and duplicate resolution
// to a frame's columns, returning a new frame and the combined rename map.
func NormalizeFrameHeaders(f *frame.Frame) (*frame.Frame, map[string]string, error) {
	cols := f.Columns()
	normalized := NormalizeHeaderLabels(cols)
	resolved, _ := ResolveDuplicateLabels(normalized)

	out, err := rebuildWithLabels(f, resolved)
	if err != nil {
		return nil, nil, err
	}

	renameMap := make(map[string]string)
	for i, original := range cols {
		if resolved[i] != original {
			renameMap[original] = resolved[i]
		}
	}
	return out, renameMap, nil
}

// rebuildWithLabels constructs a new frame with the same column data under
// new labels, preserving order and declared types.
func rebuildWithLabels(f *frame.Frame, labels []string) (*frame.Frame, error) {
	cols := f.Columns()
	if len(labels) != len(cols) {
		return nil, fmt.Errorf("label count %d does not match column count %d", len(labels), len(cols))
	}
	out := frame.New(f.NumRows())
	for i, col := range cols {
		values, _ := f.Column(col)
		copied := append([]frame.Value(nil), values...)
		if err := out.AddColumn(labels[i], copied); err != nil {
			return nil, err
		}
		out.SetColumnType(labels[i], f.ColumnType(col))
	}
	return out, nil
}
