package codec

import "encoding/json"

// JSON stores values as encoding/json documents. Numbers inside untyped maps
// come back as float64; slcache converts them to the mapped field type on load.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
