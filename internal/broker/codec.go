package broker

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/kafka-go"
)

const (
	headerEncoding = "content-encoding"
	encodingZstd   = "zstd"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// encode marshals v to JSON, compressing it when compress is set.
func encode(v interface{}, compress bool) ([]byte, []kafka.Header, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	if !compress {
		return b, nil, nil
	}
	return encoder.EncodeAll(b, make([]byte, 0, len(b)/2)), []kafka.Header{{Key: headerEncoding, Value: []byte(encodingZstd)}}, nil
}

// payload returns the JSON body of msg, decompressing it if a zstd header is present.
func payload(msg kafka.Message) ([]byte, error) {
	for _, h := range msg.Headers {
		if h.Key == headerEncoding && string(h.Value) == encodingZstd {
			b, err := decoder.DecodeAll(msg.Value, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress message: %w", err)
			}
			return b, nil
		}
	}
	return msg.Value, nil
}

// Decode unmarshals the (possibly compressed) body of msg into v.
func Decode(msg kafka.Message, v interface{}) error {
	b, err := payload(msg)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
