package scrub

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// A completed Report is persisted to stats/ so a caller can inspect the
// outcome of a Run without having kept the returned value around. Same
// shared-encoder/decoder, SpeedFastest construction package rangeset
// uses for its checkpoints.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func encodeReport(r *Report) []byte {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return zstdEncoder.EncodeAll(raw, nil)
}

func decodeReport(blob []byte) (*Report, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	raw, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("scrub: report: zstd: %w", err)
	}
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("scrub: report: %w", err)
	}
	return &r, nil
}
