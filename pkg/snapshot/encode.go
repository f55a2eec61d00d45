package snapshot

import (
	"bytes"
	"encoding/json"

	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
)

func marshalMeta(meta Meta) ([]byte, error) {
	return json.Marshal(meta)
}

func marshalString(s string) ([]byte, error) {
	return json.Marshal(s)
}

// marshalRecords encodes records as a JSON array, keeping field order.
func marshalRecords(records []*record.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := r.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
