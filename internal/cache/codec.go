package cache

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/cnrosu/yt-ai-summariser/internal/model"
	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the frame header used to sniff entries without an encoding field
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Decoded transcripts are capped to keep a corrupt header from exhausting memory
const maxDecodedSize = 64 << 20

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(maxDecodedSize))
)

var errUndecodable = errors.New("cache entry could not be decoded")

// Encode builds a canonical entry for text
func Encode(key, text string) *model.CacheEntry {
	return &model.CacheEntry{
		Key:       key,
		Encoding:  model.EncodingZstd,
		Value:     encoder.EncodeAll([]byte(text), nil),
		RawLength: len(text),
	}
}

// Decode returns the plain text of an entry in either supported encoding
func Decode(entry *model.CacheEntry) (string, error) {
	if entry == nil {
		return "", errUndecodable
	}

	encoding := entry.Encoding
	if encoding == "" {
		encoding = model.EncodingRaw
		if bytes.HasPrefix(entry.Value, zstdMagic) {
			encoding = model.EncodingZstd
		}
	}

	var text []byte
	switch encoding {
	case model.EncodingZstd:
		out, err := decoder.DecodeAll(entry.Value, nil)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errUndecodable, err)
		}
		text = out
	case model.EncodingRaw:
		text = entry.Value
	default:
		return "", fmt.Errorf("%w: unknown encoding %q", errUndecodable, encoding)
	}

	if !utf8.Valid(text) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", errUndecodable)
	}
	if entry.RawLength > 0 && entry.RawLength != len(text) {
		return "", fmt.Errorf("%w: length %d does not match recorded %d", errUndecodable, len(text), entry.RawLength)
	}

	return string(text), nil
}
