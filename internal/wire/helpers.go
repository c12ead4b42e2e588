package wire

import (
	"encoding/json"
	"io"
	"strings"
)

func mustJSONReader(raw string) io.Reader {
	return strings.NewReader(raw)
}

func jsonUnmarshal(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}
