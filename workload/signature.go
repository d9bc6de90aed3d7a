package workload

import (
	"bytes"
	"fmt"

	"github.com/cloudflare/circl/sign"
	signschemes "github.com/cloudflare/circl/sign/schemes"
)

// messageFill is the byte the dummy signing message is filled with.
const messageFill = 42

// SignatureWorkload measures keygen, sign and verify of a signature scheme
// over a fixed dummy message and requires every signature to verify.
type SignatureWorkload struct {
	scheme sign.Scheme
	msg    []byte
	ops    map[Phase]func()

	pk        sign.PublicKey
	sk        sign.PrivateKey
	sig       []byte
	verified  bool
	lastError error
}

// OpenSignature resolves a signature scheme by provider name.
func OpenSignature(name string, msgLen int) (*SignatureWorkload, error) {
	s := signschemes.ByName(name)
	if s == nil {
		return nil, fmt.Errorf("%w: signature %q", ErrUnavailable, name)
	}

	return NewSignature(s, msgLen)
}

// NewSignature wraps a provider scheme; msgLen must be positive.
func NewSignature(s sign.Scheme, msgLen int) (*SignatureWorkload, error) {
	if msgLen <= 0 {
		return nil, fmt.Errorf("message length must be positive, got %d", msgLen)
	}

	w := &SignatureWorkload{
		scheme: s,
		msg:    bytes.Repeat([]byte{messageFill}, msgLen),
	}
	w.ops = map[Phase]func(){
		PhaseKeygen: func() {
			w.pk, w.sk, w.lastError = w.scheme.GenerateKey()
		},
		PhaseSign: func() {
			w.sig = w.scheme.Sign(w.sk, w.msg, nil)
		},
		PhaseVerify: func() {
			w.verified = w.scheme.Verify(w.pk, w.msg, w.sig, nil)
		},
	}

	return w, nil
}

func (w *SignatureWorkload) Name() string   { return w.scheme.Name() }
func (w *SignatureWorkload) Family() Family { return Signature }

func (w *SignatureWorkload) Phases() []Phase {
	return []Phase{PhaseKeygen, PhaseSign, PhaseVerify}
}

func (w *SignatureWorkload) Sizes() []Size {
	return []Size{
		{Name: "PublicKeyBytes", Bytes: w.scheme.PublicKeySize()},
		{Name: "SecretKeyBytes", Bytes: w.scheme.PrivateKeySize()},
		{Name: "SignatureBytes", Bytes: w.scheme.SignatureSize()},
		{Name: "MessageBytes", Bytes: len(w.msg)},
	}
}

func (w *SignatureWorkload) Op(p Phase) func() {
	return w.ops[p]
}

func (w *SignatureWorkload) Check(p Phase) error {
	if err := w.lastError; err != nil {
		w.lastError = nil

		return phaseError(p, err)
	}

	switch p {
	case PhaseSign:
		// Some schemes produce variable-length signatures bounded by
		// SignatureSize.
		if len(w.sig) == 0 || len(w.sig) > w.scheme.SignatureSize() {
			return phaseError(p, fmt.Errorf(
				"signature is %d bytes, limit %d",
				len(w.sig), w.scheme.SignatureSize(),
			))
		}

	case PhaseVerify:
		if !w.verified {
			return ErrVerifyFailed
		}
		w.verified = false
	}

	return nil
}
