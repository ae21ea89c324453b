package project

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Effect kinds. Each kind carries its own typed parameter struct so
// callers never deal in untyped dictionaries.
const (
	EffectBlur       = "blur"
	EffectBrightness = "brightness"
	EffectContrast   = "contrast"
	EffectChromaKey  = "chroma_key"
	EffectFade       = "fade"
)

var ErrUnknownEffect = errors.New("unknown effect kind")

// EffectParams is implemented by every per-kind parameter struct.
type EffectParams interface {
	effectKind() string
}

// BlurParams softens the clip with the given pixel radius.
type BlurParams struct {
	Radius float64 `json:"radius"`
}

func (BlurParams) effectKind() string { return EffectBlur }

// BrightnessParams shifts luminance; 0 is neutral, range [-1, 1].
type BrightnessParams struct {
	Level float64 `json:"level"`
}

func (BrightnessParams) effectKind() string { return EffectBrightness }

// ContrastParams scales contrast; 1 is neutral.
type ContrastParams struct {
	Factor float64 `json:"factor"`
}

func (ContrastParams) effectKind() string { return EffectContrast }

// ChromaKeyParams keys out a color within a tolerance.
type ChromaKeyParams struct {
	Color     string  `json:"color"`
	Tolerance float64 `json:"tolerance"`
}

func (ChromaKeyParams) effectKind() string { return EffectChromaKey }

// FadeParams fades opacity in and out over the given durations.
type FadeParams struct {
	InSeconds  float64 `json:"in_seconds"`
	OutSeconds float64 `json:"out_seconds"`
}

func (FadeParams) effectKind() string { return EffectFade }

// Effect is a tagged variant: Kind selects which parameter struct
// Params holds. The JSON shape is an envelope {id, kind, params}.
type Effect struct {
	ID     string
	Kind   string
	Params EffectParams
}

// NewEffect builds an effect from a typed parameter struct.
func NewEffect(params EffectParams) Effect {
	return Effect{ID: NewID(), Kind: params.effectKind(), Params: params}
}

type effectEnvelope struct {
	ID     string          `json:"id"`
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

func (e Effect) MarshalJSON() ([]byte, error) {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(effectEnvelope{ID: e.ID, Kind: e.Kind, Params: params})
}

func (e *Effect) UnmarshalJSON(data []byte) error {
	var env effectEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	params, err := decodeEffectParams(env.Kind, env.Params)
	if err != nil {
		return err
	}

	e.ID = env.ID
	e.Kind = env.Kind
	e.Params = params
	return nil
}

func decodeEffectParams(kind string, raw json.RawMessage) (EffectParams, error) {
	var target EffectParams
	switch kind {
	case EffectBlur:
		target = &BlurParams{}
	case EffectBrightness:
		target = &BrightnessParams{}
	case EffectContrast:
		target = &ContrastParams{}
	case EffectChromaKey:
		target = &ChromaKeyParams{}
	case EffectFade:
		target = &FadeParams{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, kind)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, err
		}
	}

	switch v := target.(type) {
	case *BlurParams:
		return *v, nil
	case *BrightnessParams:
		return *v, nil
	case *ContrastParams:
		return *v, nil
	case *ChromaKeyParams:
		return *v, nil
	case *FadeParams:
		return *v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, kind)
}
