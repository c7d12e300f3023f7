// Package diffblob encodes the reverse diff stored with each patch.
//
// Backends return a forward diff. When that diff carries before/after text
// snapshots per file, the stored reverse diff is a diff-match-patch patch
// that turns "after" back into "before". Otherwise the backend diff is kept
// verbatim. Either way the JSON document is gzip-compressed.
package diffblob

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Reverse diff formats.
const (
	FormatDMP = "dmp"
	FormatRaw = "raw"
)

// maxDecoded bounds the decompressed size of a blob.
const maxDecoded = 64 << 20

// Snapshot is one file of a forward diff with full text snapshots.
type Snapshot struct {
	Path   string  `json:"path"`
	Before *string `json:"before"`
	After  *string `json:"after"`
}

type forwardDiff struct {
	Files []Snapshot `json:"files"`
}

// FilePatch is the reverse patch text of one file.
type FilePatch struct {
	Path  string `json:"path"`
	Patch string `json:"patch"`
}

// Reverse is the decoded reverse diff of a patch.
type Reverse struct {
	Format string          `json:"format"`
	Files  []FilePatch     `json:"files,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Build derives the reverse diff from a backend forward diff.
// It returns nil for an empty or null diff.
func Build(diff json.RawMessage) (*Reverse, error) {
	trimmed := bytes.TrimSpace(diff)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var fwd forwardDiff
	if err := json.Unmarshal(trimmed, &fwd); err == nil && snapshotsComplete(fwd.Files) {
		dmp := diffmatchpatch.New()
		rev := &Reverse{Format: FormatDMP}
		for _, f := range fwd.Files {
			a, b, lines := dmp.DiffLinesToChars(*f.After, *f.Before)
			diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
			patches := dmp.PatchMake(*f.After, diffs)
			rev.Files = append(rev.Files, FilePatch{Path: f.Path, Patch: dmp.PatchToText(patches)})
		}
		return rev, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("diff is not valid JSON")
	}
	return &Reverse{Format: FormatRaw, Raw: append(json.RawMessage(nil), trimmed...)}, nil
}

func snapshotsComplete(files []Snapshot) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if f.Path == "" || f.Before == nil || f.After == nil {
			return false
		}
	}
	return true
}

// Encode builds the reverse diff and returns it gzip-compressed.
// It returns nil for an empty diff.
func Encode(diff json.RawMessage) ([]byte, error) {
	rev, err := Build(diff)
	if err != nil || rev == nil {
		return nil, err
	}
	raw, err := json.Marshal(rev)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress reverse diff: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress reverse diff: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress returns the JSON document stored in blob.
func Decompress(blob []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("open reverse diff: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(io.LimitReader(zr, maxDecoded+1))
	if err != nil {
		return nil, fmt.Errorf("read reverse diff: %w", err)
	}
	if len(raw) > maxDecoded {
		return nil, fmt.Errorf("reverse diff exceeds %d bytes", maxDecoded)
	}
	return raw, nil
}

// Decode decompresses and parses blob.
func Decode(blob []byte) (*Reverse, error) {
	raw, err := Decompress(blob)
	if err != nil {
		return nil, err
	}
	var rev Reverse
	if err := json.Unmarshal(raw, &rev); err != nil {
		return nil, fmt.Errorf("parse reverse diff: %w", err)
	}
	return &rev, nil
}

// Apply restores the previous content of path from its current content.
// It fails when the file is not part of the diff or a hunk does not apply.
func (r *Reverse) Apply(path, current string) (string, error) {
	if r.Format != FormatDMP {
		return "", fmt.Errorf("reverse diff format %q cannot be applied locally", r.Format)
	}
	for _, f := range r.Files {
		if f.Path != path {
			continue
		}
		dmp := diffmatchpatch.New()
		patches, err := dmp.PatchFromText(f.Patch)
		if err != nil {
			return "", fmt.Errorf("parse patch for %s: %w", path, err)
		}
		out, applied := dmp.PatchApply(patches, current)
		for i, ok := range applied {
			if !ok {
				return "", fmt.Errorf("hunk %d of %s did not apply", i, path)
			}
		}
		return out, nil
	}
	return "", fmt.Errorf("no reverse patch for %s", path)
}
