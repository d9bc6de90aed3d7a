package workload

import (
	"bytes"
	"fmt"

	"github.com/cloudflare/circl/kem"
	kemschemes "github.com/cloudflare/circl/kem/schemes"
)

// KEMWorkload measures keygen, encaps and decaps of a key-encapsulation
// scheme and checks that both sides derive the same shared secret.
type KEMWorkload struct {
	scheme kem.Scheme
	ops    map[Phase]func()

	pk        kem.PublicKey
	sk        kem.PrivateKey
	ct        []byte
	ssEncaps  []byte
	ssDecaps  []byte
	lastError error
}

// OpenKEM resolves a KEM by provider name.
func OpenKEM(name string) (*KEMWorkload, error) {
	s := kemschemes.ByName(name)
	if s == nil {
		return nil, fmt.Errorf("%w: kem %q", ErrUnavailable, name)
	}

	return NewKEM(s), nil
}

// NewKEM wraps a provider scheme.
func NewKEM(s kem.Scheme) *KEMWorkload {
	w := &KEMWorkload{scheme: s}
	w.ops = map[Phase]func(){
		PhaseKeygen: func() {
			w.pk, w.sk, w.lastError = w.scheme.GenerateKeyPair()
		},
		PhaseEncaps: func() {
			w.ct, w.ssEncaps, w.lastError = w.scheme.Encapsulate(w.pk)
		},
		PhaseDecaps: func() {
			w.ssDecaps, w.lastError = w.scheme.Decapsulate(w.sk, w.ct)
		},
	}

	return w
}

func (w *KEMWorkload) Name() string   { return w.scheme.Name() }
func (w *KEMWorkload) Family() Family { return KEM }

func (w *KEMWorkload) Phases() []Phase {
	return []Phase{PhaseKeygen, PhaseEncaps, PhaseDecaps}
}

func (w *KEMWorkload) Sizes() []Size {
	return []Size{
		{Name: "PublicKeyBytes", Bytes: w.scheme.PublicKeySize()},
		{Name: "SecretKeyBytes", Bytes: w.scheme.PrivateKeySize()},
		{Name: "CiphertextBytes", Bytes: w.scheme.CiphertextSize()},
		{Name: "SharedSecretBytes", Bytes: w.scheme.SharedKeySize()},
	}
}

func (w *KEMWorkload) Op(p Phase) func() {
	return w.ops[p]
}

func (w *KEMWorkload) Check(p Phase) error {
	if err := w.lastError; err != nil {
		w.lastError = nil

		return phaseError(p, err)
	}

	switch p {
	case PhaseEncaps:
		if len(w.ct) != w.scheme.CiphertextSize() {
			return phaseError(p, fmt.Errorf(
				"ciphertext is %d bytes, want %d",
				len(w.ct), w.scheme.CiphertextSize(),
			))
		}

	case PhaseDecaps:
		if !bytes.Equal(w.ssEncaps, w.ssDecaps) {
			return ErrSecretMismatch
		}
	}

	return nil
}
