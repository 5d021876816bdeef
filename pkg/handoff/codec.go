package handoff

import (
	"encoding/json"
	"fmt"

	"github.com/asdfghjkxd/NFTScraper/pkg/batch"
	"github.com/tinylib/msgp/msgp"
)

var jsonNull = json.RawMessage("null")

// EncodeBatch serializes a batch as a MessagePack array of strings.
func EncodeBatch(b batch.Batch) []byte {
	buf := msgp.AppendArrayHeader(nil, uint32(len(b)))
	for _, u := range b {
		buf = msgp.AppendString(buf, u)
	}
	return buf
}

// DecodeBatch parses the output of EncodeBatch. Trailing bytes are an error.
func DecodeBatch(data []byte) (batch.Batch, error) {
	b, rest, err := readBatch(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("decode batch: %d trailing bytes", len(rest))
	}
	return b, nil
}

func readBatch(data []byte) (batch.Batch, []byte, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(data)
	if err != nil {
		return nil, nil, fmt.Errorf("decode batch header: %w", err)
	}

	// Each string needs at least one byte, which bounds a hostile header.
	if int(n) > len(rest) {
		return nil, nil, fmt.Errorf("decode batch: header claims %d urls in %d bytes", n, len(rest))
	}

	b := make(batch.Batch, 0, n)
	for i := uint32(0); i < n; i++ {
		var u string
		u, rest, err = msgp.ReadStringBytes(rest)
		if err != nil {
			return nil, nil, fmt.Errorf("decode batch[%d]: %w", i, err)
		}
		b = append(b, u)
	}
	return b, rest, nil
}

// EncodeResults serializes pages as a JSON array, writing null for every
// failed page.
func EncodeResults(pages []batch.Page) ([]byte, error) {
	out := make([]json.RawMessage, len(pages))
	for i, p := range pages {
		if batch.IsNull(p) {
			out[i] = jsonNull
			continue
		}
		out[i] = p
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return data, nil
}

// DecodeResults parses a results array and checks it has want entries.
// JSON null entries become nil pages.
func DecodeResults(data []byte, want int) ([]batch.Page, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if raw == nil && want != 0 {
		return nil, fmt.Errorf("decode results: not an array")
	}
	if len(raw) != want {
		return nil, fmt.Errorf("decode results: got %d entries, want %d", len(raw), want)
	}

	pages := make([]batch.Page, len(raw))
	for i, r := range raw {
		if batch.IsNull(r) {
			continue
		}
		pages[i] = batch.Page(r)
	}
	return pages, nil
}
