// Package mac authenticates inter-bank transfer messages with a secret shared
// by an ordered pair of banks.
//
// The authenticated fields are joined with "|" in a fixed order (see Fields.Canonical)
// and digested with a keyed hash. Digests travel as lowercase hex.
package mac

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"golang.org/x/crypto/blake2b"
)

// Algorithm names as stored on shared secrets.
const (
	HMACMD5    = "hmac-md5"
	HMACSHA256 = "hmac-sha256"
	BLAKE2b256 = "blake2b-256"
)

const delimiter = "|"

var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

// Fields are the parts of a transfer message covered by the digest.
type Fields struct {
	Version       string
	Timestamp     string
	TransactionID string
	Sender        string
	SenderBank    string
	Receiver      string
	ReceiverBank  string
	Amount        domain.Amount
	Currency      string
}

// Canonical joins the fields in their fixed order. The amount always carries
// exactly two decimals.
func (f Fields) Canonical() string {
	return strings.Join([]string{
		f.Version,
		f.Timestamp,
		f.TransactionID,
		f.Sender,
		f.SenderBank,
		f.Receiver,
		f.ReceiverBank,
		f.Amount.Fixed(),
		f.Currency,
	}, delimiter)
}

// Key is a shared secret together with the algorithm the pair signs with.
type Key struct {
	Secret       []byte
	Algorithm    string
	AcceptLegacy bool
}

// Sign computes the digest of f under key.
func Sign(f Fields, key Key) (string, error) {
	sum, err := digest(key.Algorithm, key.Secret, []byte(f.Canonical()))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// Verify reports whether supplied is a valid digest of f under key. When the
// pair has moved off the legacy algorithm but still accepts it, a legacy
// digest is also accepted. A mismatch is reported as false, never an error;
// the error is only for a misconfigured algorithm.
func Verify(f Fields, key Key, supplied string) (bool, error) {
	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(supplied)))
	if err != nil {
		return false, nil
	}
	msg := []byte(f.Canonical())

	want, err := digest(key.Algorithm, key.Secret, msg)
	if err != nil {
		return false, err
	}
	if hmac.Equal(got, want) {
		return true, nil
	}

	if key.AcceptLegacy && normalize(key.Algorithm) != HMACMD5 {
		legacy, err := digest(HMACMD5, key.Secret, msg)
		if err != nil {
			return false, err
		}
		return hmac.Equal(got, legacy), nil
	}
	return false, nil
}

// Supported reports whether alg names a known algorithm.
func Supported(alg string) bool {
	_, err := newHash(alg, []byte("k"))
	return err == nil
}

func digest(alg string, secret, msg []byte) ([]byte, error) {
	h, err := newHash(alg, secret)
	if err != nil {
		return nil, err
	}
	h.Write(msg)
	return h.Sum(nil), nil
}

func newHash(alg string, secret []byte) (hash.Hash, error) {
	switch normalize(alg) {
	case HMACMD5, "":
		return hmac.New(md5.New, secret), nil
	case HMACSHA256:
		return hmac.New(sha256.New, secret), nil
	case BLAKE2b256:
		// blake2b keys are limited to 64 bytes; longer secrets are pre-hashed.
		key := secret
		if len(key) > blake2b.Size {
			sum := blake2b.Sum512(key)
			key = sum[:]
		}
		h, err := blake2b.New256(key)
		if err != nil {
			return nil, fmt.Errorf("init blake2b: %w", err)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, alg)
	}
}

func normalize(alg string) string {
	return strings.ToLower(strings.TrimSpace(alg))
}
