package model

import "time"

// Cache payload encodings. Entries written before compression existed carry no encoding.
const (
	EncodingZstd = "zstd"
	EncodingRaw  = "raw"
)

// CacheEntry is a stored transcript keyed by video id
type CacheEntry struct {
	Key       string    `json:"key" bson:"_id"`
	Encoding  string    `json:"encoding,omitempty" bson:"encoding,omitempty"`
	Value     []byte    `json:"-" bson:"value"`
	RawLength int       `json:"raw_length" bson:"raw_length"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
