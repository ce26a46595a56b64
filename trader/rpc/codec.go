package rpc

import (
	"github.com/sugawarayuuta/sonnet"
)

// jsonCodec replaces connect's protojson codec so handlers can exchange plain
// Go structs from the models package. It registers under the "json" name and
// serves application/json and application/connect+json.
type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return sonnet.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return sonnet.Unmarshal(data, msg)
}
