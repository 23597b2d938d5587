// Package codec serializes event payloads for the log.
package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec converts between event values and their stored bytes.
type Codec interface {
	// Name identifies the codec in configuration.
	Name() string
	Serialize(v any) ([]byte, error)
	// Deserialize decodes data into a new value of type t and returns the
	// value (not a pointer to it).
	Deserialize(data []byte, t reflect.Type) (any, error)
}

// New returns the codec with the given name: "json" or "cbor".
func New(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "cbor":
		return NewCBOR()
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// JSON is the default codec.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Deserialize(data []byte, t reflect.Type) (any, error) {
	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode %v: %w", t, err)
	}
	return ptr.Elem().Interface(), nil
}

// CBOR encodes payloads in canonical CBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBOR builds a CBOR codec with canonical encoding options.
func NewCBOR() (*CBOR, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encode mode: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decode mode: %w", err)
	}
	return &CBOR{enc: enc, dec: dec}, nil
}

func (*CBOR) Name() string { return "cbor" }

func (c *CBOR) Serialize(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c *CBOR) Deserialize(data []byte, t reflect.Type) (any, error) {
	ptr := reflect.New(t)
	if err := c.dec.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode %v: %w", t, err)
	}
	return ptr.Elem().Interface(), nil
}
