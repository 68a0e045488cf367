package codec

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Protobuf stores generated protobuf messages.
type Protobuf[T proto.Message] struct {
	new func() T // constructor for a concrete message (e.g., func() *mypb.User { return &mypb.User{} })
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := proto.Unmarshal(b, m)
	return m, err
}

// ProtoStruct stores any JSON-shaped value as a binary google.protobuf.Struct,
// so entries can be read by non-Go consumers of the same backend.
// V must marshal to a JSON object.
type ProtoStruct[V any] struct {
	inner Protobuf[*structpb.Struct]
}

func NewProtoStruct[V any]() ProtoStruct[V] {
	return ProtoStruct[V]{inner: NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })}
}

func (c ProtoStruct[V]) Encode(v V) ([]byte, error) {
	js, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(js, s); err != nil {
		return nil, err
	}
	return c.inner.Encode(s)
}

func (c ProtoStruct[V]) Decode(b []byte) (V, error) {
	var v V
	s, err := c.inner.Decode(b)
	if err != nil {
		return v, err
	}
	js, err := protojson.Marshal(s)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(js, &v)
	return v, err
}
