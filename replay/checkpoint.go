package replay

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/beadwright/orchestrator/bead"
	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// CheckpointMetadata is the self-describing metadata stored alongside a
// checkpoint's compressed bytes, per §4.2/§6.
type CheckpointMetadata struct {
	ID               ids.CheckpointID `json:"id"`
	PhaseID          ids.PhaseID      `json:"phase_id"`
	CreatedAt        time.Time        `json:"created_at"`
	Version          int              `json:"version"`
	UncompressedSize int              `json:"uncompressed_size"`
	CompressedSize   int              `json:"compressed_size"`
	Ratio            float64          `json:"ratio"`
}

// CheckpointVersion is the current on-disk checkpoint format version.
const CheckpointVersion = 1

// Checkpoint is a compressed, immutable snapshot of bead state tied to a
// phase, plus the inputs/outputs that produced it.
type Checkpoint struct {
	PhaseID         ids.PhaseID
	Timestamp       time.Time
	CompressedBytes []byte
	InputsBytes     []byte
	OutputsBytes    []byte
	Metadata        CheckpointMetadata
}

var encoder, _ = zstd.NewWriter(nil)
var decoder, _ = zstd.NewReader(nil)

// CreateCheckpoint serializes and compresses state — any JSON-serializable
// value, not just a bead.Aggregate, so the Workflow Engine's own phase
// snapshots share this machinery — computing the self-describing metadata
// stored alongside it. Compression ratio is reported but, per §4.2, is not
// itself a correctness requirement.
func CreateCheckpoint(phaseID ids.PhaseID, state any, inputs, outputs []byte) (Checkpoint, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return Checkpoint{}, oerr.New(oerr.Durability, "serialize checkpoint state: %v", err).Wrap(err)
	}

	compressed := encoder.EncodeAll(raw, nil)

	ratio := 1.0
	if len(compressed) > 0 {
		ratio = float64(len(raw)) / float64(len(compressed))
	}

	meta := CheckpointMetadata{
		ID:               ids.New(),
		PhaseID:          phaseID,
		CreatedAt:        time.Now().UTC(),
		Version:          CheckpointVersion,
		UncompressedSize: len(raw),
		CompressedSize:   len(compressed),
		Ratio:            ratio,
	}

	return Checkpoint{
		PhaseID:         phaseID,
		Timestamp:       meta.CreatedAt,
		CompressedBytes: compressed,
		InputsBytes:     inputs,
		OutputsBytes:    outputs,
		Metadata:        meta,
	}, nil
}

// RestoreInto decompresses cp's bytes, verifies the stored
// uncompressed_size against the decompressed output, and deserializes into
// dest (a pointer, as for json.Unmarshal).
func RestoreInto(cp Checkpoint, dest any) error {
	raw, err := decoder.DecodeAll(cp.CompressedBytes, nil)
	if err != nil {
		return oerr.New(oerr.Durability, "decompress checkpoint %s: %v", cp.Metadata.ID, err).Wrap(err)
	}
	if len(raw) != cp.Metadata.UncompressedSize {
		return oerr.New(oerr.Durability,
			"checkpoint %s uncompressed_size mismatch: metadata=%d actual=%d",
			cp.Metadata.ID, cp.Metadata.UncompressedSize, len(raw))
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return oerr.New(oerr.Durability, "deserialize checkpoint %s: %v", cp.Metadata.ID, err).Wrap(err)
	}
	return nil
}

// RestoreFromCheckpoint decompresses and deserializes cp back into a bead
// Aggregate; a thin convenience wrapper over RestoreInto for the common
// case of restoring bead state during Resume.
func RestoreFromCheckpoint(cp Checkpoint) (bead.Aggregate, error) {
	var state bead.Aggregate
	if err := RestoreInto(cp, &state); err != nil {
		return bead.Aggregate{}, err
	}
	return state, nil
}

// contentHash renders b's SHA-256 as a "sha256:"-prefixed hex string, the
// teacher's hash format from computeIdempotencyKey; contentEqual uses it.
func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// contentEqual reports whether two checkpoints decompress to the same
// content (equal bytes or equal content hashes).
func (c Checkpoint) contentEqual(other Checkpoint) (bool, error) {
	a, err := decoder.DecodeAll(c.CompressedBytes, nil)
	if err != nil {
		return false, err
	}
	b, err := decoder.DecodeAll(other.CompressedBytes, nil)
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b) || contentHash(a) == contentHash(b), nil
}
