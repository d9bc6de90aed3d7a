// Package workload adapts the crypto provider's algorithm handles to the
// ordered phase sequences measured by the harness. A KEM workload runs
// keygen, encaps and decaps; a signature workload runs keygen, sign and
// verify. Each workload also carries the correctness check that governs
// its phases.
package workload

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	kemschemes "github.com/cloudflare/circl/kem/schemes"
	signschemes "github.com/cloudflare/circl/sign/schemes"
)

// Family groups algorithms by the operations they expose.
type Family string

const (
	KEM       Family = "kem"
	Signature Family = "sig"
)

// Phase names one measured operation within a repetition.
type Phase string

const (
	PhaseKeygen Phase = "keygen"
	PhaseEncaps Phase = "encaps"
	PhaseDecaps Phase = "decaps"
	PhaseSign   Phase = "sign"
	PhaseVerify Phase = "verify"
)

// MaxDirLen bounds the length of an algorithm's output directory name.
const MaxDirLen = 64

var (
	// ErrUnavailable means the provider has no algorithm by that name.
	ErrUnavailable = errors.New("algorithm not available")

	// ErrCorrectness marks any output relationship that failed its check.
	ErrCorrectness = errors.New("correctness violation")

	ErrSecretMismatch = fmt.Errorf("%w: shared secret mismatch", ErrCorrectness)
	ErrVerifyFailed   = fmt.Errorf("%w: signature verification failed", ErrCorrectness)
)

// Size is one artifact length exposed by an algorithm, keyed by the name
// it is recorded under in run metadata.
type Size struct {
	Name  string `json:"name"`
	Bytes int    `json:"bytes"`
}

// Workload is an algorithm handle prepared for measurement.
//
// Op returns the zero-argument operation for a phase; operations write
// their outputs into the workload's own state so later phases of the same
// repetition consume them. Check must be called right after each phase and
// reports provider errors and correctness violations for that phase.
type Workload interface {
	Name() string
	Family() Family
	Sizes() []Size
	Phases() []Phase
	Op(p Phase) func()
	Check(p Phase) error
}

var (
	_ Workload = (*KEMWorkload)(nil)
	_ Workload = (*SignatureWorkload)(nil)
)

// Open resolves an algorithm of the given family. msgLen is only used by
// signature workloads.
func Open(family Family, name string, msgLen int) (Workload, error) {
	switch family {
	case KEM:
		return OpenKEM(name)
	case Signature:
		return OpenSignature(name, msgLen)
	default:
		return nil, fmt.Errorf("%w: unknown family %q", ErrUnavailable, family)
	}
}

// ParseFamily accepts "kem" and "sig" (or "signature").
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(s) {
	case "kem":
		return KEM, nil
	case "sig", "signature":
		return Signature, nil
	default:
		return "", fmt.Errorf("unknown family %q (want kem or sig)", s)
	}
}

// Known returns the provider's algorithm names for a family, sorted.
func Known(family Family) []string {
	var names []string

	switch family {
	case KEM:
		for _, s := range kemschemes.All() {
			names = append(names, s.Name())
		}
	case Signature:
		for _, s := range signschemes.All() {
			names = append(names, s.Name())
		}
	}

	sort.Strings(names)

	return names
}

// DirName maps an algorithm name to its output directory name, e.g.
// "ML-KEM-768" becomes "ml_kem_768". Names that map to nothing or to more
// than MaxDirLen bytes are rejected rather than truncated.
func DirName(name string) (string, error) {
	var b strings.Builder

	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pendingSep = false

			continue
		}

		pendingSep = true
	}

	dir := b.String()
	if dir == "" {
		return "", fmt.Errorf("algorithm name %q has no usable characters", name)
	}

	if len(dir) > MaxDirLen {
		return "", fmt.Errorf(
			"directory name for %q is %d bytes, limit is %d",
			name, len(dir), MaxDirLen,
		)
	}

	return dir, nil
}

func phaseError(p Phase, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCorrectness, p, err)
}
