package collections

import (
	"fmt"

	"github.com/Velocidex/ordereddict"
	errors "github.com/pkg/errors"
	vjson "www.velocidex.com/golang/fleetstore/json"
)

var (
	// The value handed to Add() does not match the collection's
	// declared value type.
	TypeMismatchError = errors.New("Type mismatch")
)

// A Codec converts between a collection's logical value type and the
// raw bytes held by the datastore. Codecs must be symmetric: a value
// that marshals without error must unmarshal back to an equal value.
type Codec interface {
	// A short stable tag naming the codec. Polymorphic collections
	// store it as the type tag in each record's envelope so it may
	// never change once data is written.
	Name() string

	Marshal(value interface{}) ([]byte, error)
	Unmarshal(data []byte) (interface{}, error)
}

// Rows of ordered dicts - the normal shape of flow and hunt results.
type DictCodec struct{}

func (self DictCodec) Name() string { return "dict" }

func (self DictCodec) Marshal(value interface{}) ([]byte, error) {
	dict, ok := value.(*ordereddict.Dict)
	if !ok {
		return nil, typeMismatch("DictCodec", value)
	}
	return vjson.Marshal(dict)
}

func (self DictCodec) Unmarshal(data []byte) (interface{}, error) {
	dict := ordereddict.NewDict()
	err := dict.UnmarshalJSON(data)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return dict, nil
}

// Plain strings - log lines and similar unstructured rows.
type StringCodec struct{}

func (self StringCodec) Name() string { return "string" }

func (self StringCodec) Marshal(value interface{}) ([]byte, error) {
	str, ok := value.(string)
	if !ok {
		return nil, typeMismatch("StringCodec", value)
	}
	return []byte(str), nil
}

func (self StringCodec) Unmarshal(data []byte) (interface{}, error) {
	return string(data), nil
}

// Raw bytes. This is also the codec the background indexer uses when
// it only needs to count records without understanding them.
type BytesCodec struct{}

func (self BytesCodec) Name() string { return "bytes" }

func (self BytesCodec) Marshal(value interface{}) ([]byte, error) {
	data, ok := value.([]byte)
	if !ok {
		return nil, typeMismatch("BytesCodec", value)
	}
	return data, nil
}

func (self BytesCodec) Unmarshal(data []byte) (interface{}, error) {
	return data, nil
}

func typeMismatch(codec string, value interface{}) error {
	return errors.WithMessage(TypeMismatchError,
		fmt.Sprintf("%s can not store %T", codec, value))
}
