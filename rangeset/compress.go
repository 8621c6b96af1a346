package rangeset

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Checkpoints are re-read on every ClaimNextGap/MarkDone call against a
// RangeSet that can accumulate thousands of completed sub-ranges over a
// long-running build or scrub; compressing the envelope keeps that hot
// path's KV payload small. Same shared-encoder/decoder, SpeedFastest
// construction as the version index's archive and the scrub report.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compress(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return zstdEncoder.EncodeAll(data, nil)
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("rangeset: zstd: %w", err)
	}
	return out, nil
}
