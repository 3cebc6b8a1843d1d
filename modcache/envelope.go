package modcache

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EnvelopeVersion is the current envelope layout.
const EnvelopeVersion = 1

// ErrCorrupt indicates a stored envelope failed its integrity check.
var ErrCorrupt = errors.New("modcache: corrupt entry")

// Envelope wraps a precompiled module payload with the digests needed to
// validate it on load.
type Envelope struct {
	Version       int      `cbor:"1,keyasint"`
	Name          string   `cbor:"2,keyasint"`
	SourceDigest  []byte   `cbor:"3,keyasint"`
	PayloadDigest [32]byte `cbor:"4,keyasint"`
	StoredAt      int64    `cbor:"5,keyasint"` // unix seconds
	Payload       []byte   `cbor:"6,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("modcache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// NewEnvelope seals payload for name.
func NewEnvelope(name string, sourceDigest, payload []byte, storedAt int64) *Envelope {
	return &Envelope{
		Version:       EnvelopeVersion,
		Name:          name,
		SourceDigest:  append([]byte(nil), sourceDigest...),
		PayloadDigest: sha256.Sum256(payload),
		StoredAt:      storedAt,
		Payload:       payload,
	}
}

// Verify checks the version and payload digest.
func (e *Envelope) Verify() error {
	if e.Version != EnvelopeVersion {
		return fmt.Errorf("%w: %s: version %d", ErrCorrupt, e.Name, e.Version)
	}
	if sha256.Sum256(e.Payload) != e.PayloadDigest {
		return fmt.Errorf("%w: %s: payload digest mismatch", ErrCorrupt, e.Name)
	}
	return nil
}

// Matches reports whether the envelope was built from source with the
// given digest.
func (e *Envelope) Matches(sourceDigest []byte) bool {
	return bytes.Equal(e.SourceDigest, sourceDigest)
}

// MarshalEnvelope serializes an Envelope to canonical CBOR.
func MarshalEnvelope(e *Envelope) ([]byte, error) {
	return cborEncMode.Marshal(e)
}

// UnmarshalEnvelope deserializes an Envelope from CBOR bytes.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: unmarshal envelope: %v", ErrCorrupt, err)
	}
	return &e, nil
}
