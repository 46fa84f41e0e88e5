// Wrap json library to control encoding.

package json

import (
	"bytes"
	"sync"

	"github.com/Velocidex/json"
	"github.com/Velocidex/ordereddict"
)

type EncOpts = json.EncOpts

var (
	mu       sync.Mutex
	handlers = []*encoderHandler{}
)

type encoderHandler struct {
	sample interface{}
	cb     json.EncoderCallback
}

// Callers can register their custom encoders through this
// function. Should be done once from an init() function.
func RegisterCustomEncoder(sample interface{}, cb json.EncoderCallback) {
	mu.Lock()
	defer mu.Unlock()

	handlers = append(handlers, &encoderHandler{sample, cb})
}

func NewEncOpts() *json.EncOpts {
	mu.Lock()
	defer mu.Unlock()

	opts := json.NewEncOpts()
	for _, h := range handlers {
		opts.WithCallback(h.sample, h.cb)
	}
	return opts
}

func Marshal(v interface{}) ([]byte, error) {
	return json.MarshalWithOptions(v, NewEncOpts())
}

func MustMarshalString(v interface{}) string {
	result, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(result)
}

func MarshalIndent(v interface{}) ([]byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = json.Indent(&buf, b, "", " ")
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func StringIndent(v interface{}) string {
	result, err := MarshalIndent(v)
	if err != nil {
		panic(err)
	}
	return string(result)
}

func Unmarshal(b []byte, v interface{}) error {
	return json.Unmarshal(b, v)
}

// Encode dicts in key order, tolerating unencodable values as null.
func MarshalJSONDict(v interface{}, opts *json.EncOpts) ([]byte, error) {
	dict, ok := v.(*ordereddict.Dict)
	if !ok {
		return nil, json.EncoderCallbackSkip
	}

	buf := bytes.NewBufferString("{")
	first := true
	for _, k := range dict.Keys() {
		key, err := json.MarshalWithOptions(k, opts)
		if err != nil {
			// An unencodable key drops the whole pair.
			continue
		}

		if !first {
			buf.WriteByte(',')
		}
		first = false

		buf.Write(key)
		buf.WriteByte(':')

		value, pres := dict.Get(k)
		if !pres {
			value = "null"
		}

		serialized, err := json.MarshalWithOptions(value, opts)
		if err != nil {
			buf.WriteString("null")
			continue
		}
		buf.Write(serialized)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func init() {
	RegisterCustomEncoder(ordereddict.NewDict(), MarshalJSONDict)
}
