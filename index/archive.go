package index

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// Same shared-encoder/decoder, SpeedFastest construction package
// rangeset uses for its checkpoints, reused here to keep a
// version index's trimmed-entry archive cheap to append to on every
// write that triggers retention.
var (
	archiveEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	archiveDecoder, _ = zstd.NewReader(nil)
)

// archivedEntry is one history-log entry evicted by a retention policy,
// kept around (compressed, batched per primary key) instead of being
// destroyed outright.
type archivedEntry struct {
	Versionstamp []byte `json:"vs"`
	Timestamp    int64  `json:"ts"`
}

func decodeArchive(blob []byte) ([]archivedEntry, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	raw, err := archiveDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("index: version archive: zstd: %w", err)
	}
	var entries []archivedEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("index: version archive: %w", err)
	}
	return entries, nil
}

func encodeArchive(entries []archivedEntry) ([]byte, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return archiveEncoder.EncodeAll(raw, nil), nil
}
