package ml

import (
	"encoding"
	"fmt"
)

// Envelope is the persisted form of a scorer or scaler: its kind plus an
// implementation-defined payload.
type Envelope struct {
	Kind    string `msgpack:"kind"`
	Payload []byte `msgpack:"payload"`
}

// Empty reports whether the envelope carries nothing decodable.
func (e Envelope) Empty() bool { return e.Kind == "" || len(e.Payload) == 0 }

var scorerKinds = map[string]func() AnomalyScorer{
	KindIsolationForest: func() AnomalyScorer { return NewIsolationForest() },
}

// EncodeScorer wraps a fitted scorer in an envelope.
func EncodeScorer(s AnomalyScorer) (Envelope, error) {
	return encode(s.Kind(), s)
}

// DecodeScorer rebuilds a scorer from its envelope.
func DecodeScorer(env Envelope) (AnomalyScorer, error) {
	newScorer, ok := scorerKinds[env.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown scorer kind %q", env.Kind)
	}
	s := newScorer()
	if err := decode(env, s); err != nil {
		return nil, err
	}
	return s, nil
}

// EncodeScaler wraps a fitted scaler in an envelope.
func EncodeScaler(s Scaler) (Envelope, error) {
	return encode(s.Kind(), s)
}

// DecodeScaler rebuilds a scaler from its envelope.
func DecodeScaler(env Envelope) (Scaler, error) {
	s, err := NewScaler(env.Kind)
	if err != nil || env.Kind == "" {
		return nil, fmt.Errorf("unknown scaler kind %q", env.Kind)
	}
	if err := decode(env, s); err != nil {
		return nil, err
	}
	return s, nil
}

func encode(kind string, v any) (Envelope, error) {
	m, ok := v.(encoding.BinaryMarshaler)
	if !ok {
		return Envelope{}, fmt.Errorf("%s does not support persistence", kind)
	}
	payload, err := m.MarshalBinary()
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return Envelope{Kind: kind, Payload: payload}, nil
}

func decode(env Envelope, v any) error {
	u, ok := v.(encoding.BinaryUnmarshaler)
	if !ok {
		return fmt.Errorf("%s does not support persistence", env.Kind)
	}
	return u.UnmarshalBinary(env.Payload)
}
