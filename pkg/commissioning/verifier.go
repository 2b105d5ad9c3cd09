package commissioning

import (
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameter limits for the SPAKE2+ verifier.
const (
	MinIterations = 1000
	MaxIterations = 100000
	MinSaltLength = 16
	MaxSaltLength = 32

	DefaultIterations = 1000
	DefaultSaltLength = 32
)

// Verifier sizes.
const (
	w0Size       = 32
	lSize        = 65
	wsSize       = 40
	VerifierSize = w0Size + lSize
)

// Verifier errors.
var (
	ErrInvalidSalt       = errors.New("commissioning: invalid salt length")
	ErrInvalidIterations = errors.New("commissioning: invalid iteration count")
	ErrInvalidVerifier   = errors.New("commissioning: invalid verifier")
)

// Verifier is the SPAKE2+ verifier a commissionee keeps instead of the
// passcode.
type Verifier struct {
	W0 []byte
	L  []byte
}

// Bytes returns W0 || L.
func (v *Verifier) Bytes() []byte {
	out := make([]byte, 0, VerifierSize)
	out = append(out, v.W0...)
	return append(out, v.L...)
}

// ParseVerifier splits a serialized verifier.
func ParseVerifier(b []byte) (*Verifier, error) {
	if len(b) != VerifierSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidVerifier, len(b))
	}
	return &Verifier{
		W0: append([]byte(nil), b[:w0Size]...),
		L:  append([]byte(nil), b[w0Size:]...),
	}, nil
}

// PBKDFParams are the passcode derivation parameters published to
// commissioners.
type PBKDFParams struct {
	Iterations uint32
	Salt       []byte
}

// NewPBKDFParams returns the default iteration count with a random salt.
func NewPBKDFParams() (PBKDFParams, error) {
	salt := make([]byte, DefaultSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return PBKDFParams{}, err
	}
	return PBKDFParams{Iterations: DefaultIterations, Salt: salt}, nil
}

// Validate checks the salt length and iteration count.
func (p PBKDFParams) Validate() error {
	if len(p.Salt) < MinSaltLength || len(p.Salt) > MaxSaltLength {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSalt, len(p.Salt))
	}
	if p.Iterations < MinIterations || p.Iterations > MaxIterations {
		return fmt.Errorf("%w: %d", ErrInvalidIterations, p.Iterations)
	}
	return nil
}

// GenerateVerifier derives the SPAKE2+ verifier for passcode:
//
//	ws  = PBKDF2-SHA256(le32(passcode), salt, iterations, 80)
//	w0  = ws[0:40] mod n
//	w1  = ws[40:80] mod n
//	L   = w1 * G
func GenerateVerifier(passcode uint32, salt []byte, iterations uint32) (*Verifier, error) {
	if err := ValidatePasscode(passcode); err != nil {
		return nil, err
	}
	if err := (PBKDFParams{Iterations: iterations, Salt: salt}).Validate(); err != nil {
		return nil, err
	}
	var pin [4]byte
	binary.LittleEndian.PutUint32(pin[:], passcode)
	ws := pbkdf2.Key(pin[:], salt, int(iterations), 2*wsSize, sha256.New)

	curve := elliptic.P256()
	w0 := reduce(ws[:wsSize], curve)
	w1 := reduce(ws[wsSize:], curve)
	x, y := curve.ScalarBaseMult(w1)
	l := make([]byte, lSize)
	l[0] = 0x04
	x.FillBytes(l[1:33])
	y.FillBytes(l[33:])
	return &Verifier{W0: w0, L: l}, nil
}

func reduce(b []byte, curve elliptic.Curve) []byte {
	v := new(big.Int).SetBytes(b)
	v.Mod(v, curve.Params().N)
	return v.FillBytes(make([]byte, w0Size))
}
