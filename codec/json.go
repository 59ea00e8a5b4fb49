package codec

import "encoding/json"

// JSON is a Codec backed by encoding/json. Useful when durable records must
// stay human-inspectable (debugging a shared store); larger and slower than
// CBOR or Msgpack for image payloads.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
