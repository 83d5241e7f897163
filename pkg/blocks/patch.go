package blocks

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// PatchOp is a single RFC 6902 operation applied to a block document.
// The only op the protocol requires is `replace` at `/data`, where Value is
// the full updated text (receivers compute deltas themselves if needed).
type PatchOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
	From  string          `json:"from,omitempty"`
}

// ReplaceData builds the canonical patch: replace /data with the given text.
func ReplaceData(text string) ([]PatchOp, error) {
	value, err := json.Marshal(text)
	if err != nil {
		return nil, fmt.Errorf("marshal patch value: %w", err)
	}
	return []PatchOp{{Op: "replace", Path: "/data", Value: value}}, nil
}

// ErrUnsupportedPatch is returned when a patch can be handled by neither the
// RFC 6902 applier nor the manual replace-/data fallback.
var ErrUnsupportedPatch = errors.New("unsupported patch")

// ApplyPatch applies an RFC 6902 patch to the block and returns the result.
// The full operation set is accepted; if the library rejects the patch, the
// applier falls back to the manual `replace /data` case the protocol
// guarantees, which must produce an identical result for that op.
func ApplyPatch(b Block, ops []PatchOp) (Block, error) {
	patched, err := applyRFC6902(b, ops)
	if err == nil {
		return patched, nil
	}
	slog.Warn("RFC 6902 patch application failed, trying manual fallback",
		"block_id", b.ID, "error", err)

	applied := false
	for _, op := range ops {
		if op.Op == "replace" && op.Path == "/data" && len(op.Value) > 0 {
			b.Data = append(json.RawMessage(nil), op.Value...)
			applied = true
		}
	}
	if !applied {
		return b, fmt.Errorf("%w: %v", ErrUnsupportedPatch, err)
	}
	return b, nil
}

func applyRFC6902(b Block, ops []PatchOp) (Block, error) {
	rawOps, err := json.Marshal(ops)
	if err != nil {
		return b, fmt.Errorf("marshal patch ops: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(rawOps)
	if err != nil {
		return b, fmt.Errorf("decode patch: %w", err)
	}
	doc, err := json.Marshal(b)
	if err != nil {
		return b, fmt.Errorf("marshal block document: %w", err)
	}
	patchedDoc, err := patch.Apply(doc)
	if err != nil {
		return b, fmt.Errorf("apply patch: %w", err)
	}
	var out Block
	if err := json.Unmarshal(patchedDoc, &out); err != nil {
		return b, fmt.Errorf("decode patched block: %w", err)
	}
	return out, nil
}
