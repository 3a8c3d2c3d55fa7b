package cache

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dshills/hastemap/pkg/types"
)

// Wire layout of a chunk file:
//
//	Chunk  { repeated Record records = 1; }
//	Record { string path = 1; repeated string dependencies = 2; }
const (
	chunkRecordsField protowire.Number = 1
	recordPathField   protowire.Number = 1
	recordDepsField   protowire.Number = 2
)

// EncodeChunk serializes records into the chunk wire format
func EncodeChunk(records []types.SourceRecord) []byte {
	var b []byte
	for i := range records {
		b = protowire.AppendTag(b, chunkRecordsField, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeRecord(&records[i]))
	}
	return b
}

func encodeRecord(rec *types.SourceRecord) []byte {
	var b []byte
	b = protowire.AppendTag(b, recordPathField, protowire.BytesType)
	b = protowire.AppendString(b, rec.Path)
	for _, dep := range rec.Dependencies {
		b = protowire.AppendTag(b, recordDepsField, protowire.BytesType)
		b = protowire.AppendString(b, dep)
	}
	return b
}

// DecodeChunk parses a chunk produced by EncodeChunk. Unknown fields are
// skipped; truncated or malformed input returns ErrMalformedChunk.
func DecodeChunk(b []byte) ([]types.SourceRecord, error) {
	records := make([]types.SourceRecord, 0)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]

		if num != chunkRecordsField || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]

		rec, err := decodeRecord(v)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRecord(b []byte) (types.SourceRecord, error) {
	rec := types.SourceRecord{Dependencies: make([]string, 0)}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return rec, malformed(protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType || (num != recordPathField && num != recordDepsField) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return rec, malformed(protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeString(b)
		if n < 0 {
			return rec, malformed(protowire.ParseError(n))
		}
		b = b[n:]

		if num == recordPathField {
			rec.Path = v
		} else {
			rec.Dependencies = append(rec.Dependencies, v)
		}
	}

	if rec.Path == "" {
		return rec, fmt.Errorf("%w: record without path", ErrMalformedChunk)
	}
	return rec, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedChunk, err)
}
