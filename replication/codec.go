package replication

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ContentEncoding is the Content-Encoding of push and pull bodies.
const ContentEncoding = "zstd"

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
)

func codecs() (*zstd.Encoder, *zstd.Decoder) {
	encoderOnce.Do(func() {
		// Neither constructor fails without options.
		encoder, _ = zstd.NewWriter(nil)
		decoder, _ = zstd.NewReader(nil)
	})
	return encoder, decoder
}

// Encode marshals v as JSON and compresses it.
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	enc, _ := codecs()
	return enc.EncodeAll(raw, make([]byte, 0, len(raw))), nil
}

// Decode decompresses a body produced by Encode into v.
func Decode(body []byte, v any) error {
	_, dec := codecs()
	raw, err := dec.DecodeAll(body, nil)
	if err != nil {
		return fmt.Errorf("failed to decompress payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// DecodePlain decodes an uncompressed JSON body into v.
func DecodePlain(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
