package primitives

import (
	"encoding/hex"
	"fmt"
)

// PreImageKind selects the preimage's length-derived variant.
type PreImageKind uint8

// Wire tags, fixed by the protocol.
const (
	PreImage32 PreImageKind = 32
	PreImage64 PreImageKind = 64
)

// PreImage is a tagged preimage of length 32 or 64 bytes.
type PreImage struct {
	Kind  PreImageKind
	Bytes []byte
}

// NewPreImage tags raw bytes of length 32 or 64 as a PreImage.
func NewPreImage(raw []byte) (PreImage, error) {
	switch len(raw) {
	case 32:
		return PreImage{Kind: PreImage32, Bytes: append([]byte(nil), raw...)}, nil
	case 64:
		return PreImage{Kind: PreImage64, Bytes: append([]byte(nil), raw...)}, nil
	default:
		return PreImage{}, fmt.Errorf("primitives: preimage must be 32 or 64 bytes, got %d", len(raw))
	}
}

// EncodeBinary writes the non-human-readable wire form: one length-tag byte
// then the raw bytes.
func (p PreImage) EncodeBinary() ([]byte, error) {
	if len(p.Bytes) != int(p.Kind) {
		return nil, fmt.Errorf("primitives: preimage length %d does not match tag %d", len(p.Bytes), p.Kind)
	}
	out := make([]byte, 1+len(p.Bytes))
	out[0] = byte(p.Kind)
	copy(out[1:], p.Bytes)
	return out, nil
}

// DecodePreImageBinary decodes the non-human-readable wire form.
// Returns the number of bytes consumed.
func DecodePreImageBinary(data []byte) (PreImage, int, error) {
	if len(data) < 1 {
		return PreImage{}, 0, fmt.Errorf("primitives: empty PreImage buffer")
	}
	kind := PreImageKind(data[0])
	if kind != PreImage32 && kind != PreImage64 {
		return PreImage{}, 0, fmt.Errorf("primitives: unknown preimage tag %d", data[0])
	}
	n := int(kind)
	if len(data) < 1+n {
		return PreImage{}, 0, fmt.Errorf("primitives: truncated PreImage buffer")
	}
	bs := make([]byte, n)
	copy(bs, data[1:1+n])
	return PreImage{Kind: kind, Bytes: bs}, 1 + n, nil
}

// MarshalText implements the human-readable form: bare hex, whose length
// (64 or 128 chars) selects the variant.
func (p PreImage) MarshalText() ([]byte, error) {
	if len(p.Bytes) != int(p.Kind) {
		return nil, fmt.Errorf("primitives: preimage length %d does not match tag %d", len(p.Bytes), p.Kind)
	}
	return []byte(hex.EncodeToString(p.Bytes)), nil
}

// UnmarshalText implements the human-readable form: bare hex string.
func (p *PreImage) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("primitives: invalid preimage hex: %w", err)
	}
	switch len(raw) {
	case 32:
		p.Kind = PreImage32
	case 64:
		p.Kind = PreImage64
	default:
		return fmt.Errorf("primitives: preimage hex must decode to 32 or 64 bytes, got %d", len(raw))
	}
	p.Bytes = raw
	return nil
}
