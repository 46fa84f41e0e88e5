package collections

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/Velocidex/ordereddict"
	errors "github.com/pkg/errors"
	vjson "www.velocidex.com/golang/fleetstore/json"
	"www.velocidex.com/golang/fleetstore/utils"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

// The envelope wraps each value of a polymorphic collection with the
// tag of the codec that can decode it. The payload is the inner
// codec's serialization.
type Envelope struct {
	Type    string `json:"type"`
	Payload []byte `json:"payload"`
}

// A Registry holds the closed set of value kinds a polymorphic
// collection can carry. Values are matched to codecs by their
// concrete type, records are matched by the envelope tag. Both
// directions must be registered up front - unregistered values are
// rejected at Add() time rather than producing undecodable records.
type Registry struct {
	mu      sync.Mutex
	by_tag  map[string]Codec
	by_type map[reflect.Type]Codec
}

func NewRegistry() *Registry {
	return &Registry{
		by_tag:  make(map[string]Codec),
		by_type: make(map[reflect.Type]Codec),
	}
}

// Register a codec together with sample values of every concrete
// type it handles. Returns the registry for chaining.
func (self *Registry) Register(codec Codec, samples ...interface{}) *Registry {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.by_tag[codec.Name()] = codec
	for _, sample := range samples {
		self.by_type[reflect.TypeOf(sample)] = codec
	}
	return self
}

func (self *Registry) CodecByTag(tag string) (Codec, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()

	codec, pres := self.by_tag[tag]
	return codec, pres
}

func (self *Registry) CodecForValue(value interface{}) (Codec, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()

	codec, pres := self.by_type[reflect.TypeOf(value)]
	return codec, pres
}

// The registry general collections use unless the caller brings
// their own: ordered dicts, strings and raw bytes.
var DefaultRegistry = NewRegistry().
	Register(DictCodec{}, &ordereddict.Dict{}).
	Register(StringCodec{}, "").
	Register(BytesCodec{}, []byte{})

// EnvelopeCodec dispatches between the registered codecs by wrapping
// every record in a typed envelope.
type EnvelopeCodec struct {
	registry *Registry
}

func NewEnvelopeCodec(registry *Registry) EnvelopeCodec {
	return EnvelopeCodec{registry: registry}
}

func (self EnvelopeCodec) Name() string { return "envelope" }

func (self EnvelopeCodec) Marshal(value interface{}) ([]byte, error) {
	codec, pres := self.registry.CodecForValue(value)
	if !pres {
		return nil, typeMismatch("EnvelopeCodec", value)
	}

	payload, err := codec.Marshal(value)
	if err != nil {
		return nil, err
	}

	return vjson.Marshal(&Envelope{
		Type:    codec.Name(),
		Payload: payload,
	})
}

func (self EnvelopeCodec) Unmarshal(data []byte) (interface{}, error) {
	envelope := &Envelope{}
	err := vjson.Unmarshal(data, envelope)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	codec, pres := self.registry.CodecByTag(envelope.Type)
	if !pres {
		return nil, errors.WithMessage(TypeMismatchError,
			fmt.Sprintf("EnvelopeCodec: no codec registered for %q",
				envelope.Type))
	}

	return codec.Unmarshal(envelope.Payload)
}

// A GeneralCollection stores heterogeneous values in one physical
// collection. Each record carries an envelope naming its codec so
// readers get back the same concrete types that were written.
type GeneralCollection struct {
	*IndexedCollection
}

func NewGeneralCollection(
	config_obj *config_proto.Config,
	collection_id string) *GeneralCollection {
	return NewGeneralCollectionWithRegistry(
		config_obj, collection_id, DefaultRegistry)
}

func NewGeneralCollectionWithRegistry(
	config_obj *config_proto.Config,
	collection_id string,
	registry *Registry) *GeneralCollection {

	result := &GeneralCollection{
		IndexedCollection: NewIndexedCollection(
			config_obj, collection_id, NewEnvelopeCodec(registry)),
	}
	result.kind = KindGeneral
	return result
}

// OpenCollectionForIndexing rebuilds a collection handle from the
// kind recorded when the updater job was queued. Index maintenance
// never decodes record payloads so the codec only has to match the
// collection's physical layout.
func OpenCollectionForIndexing(
	config_obj *config_proto.Config,
	kind, collection_id string) (Indexable, error) {

	switch kind {
	case KindIndexed:
		return NewIndexedCollection(
			config_obj, collection_id, BytesCodec{}), nil

	case KindGeneral:
		return NewGeneralCollection(config_obj, collection_id), nil

	default:
		return nil, errors.WithMessage(utils.InvalidArgumentError,
			fmt.Sprintf("unknown collection kind %q", kind))
	}
}
