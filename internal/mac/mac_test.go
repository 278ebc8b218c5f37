package mac

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFields() Fields {
	return Fields{
		Version:       "1.0",
		Timestamp:     "2026-10-18T10:00:00Z",
		TransactionID: "tx-1",
		Sender:        "CR21011100010000000001",
		SenderBank:    "0111",
		Receiver:      "88887777",
		ReceiverBank:  "0111",
		Amount:        domain.MustAmount("40"),
		Currency:      "CRC",
	}
}

func TestCanonical(t *testing.T) {
	assert.Equal(t,
		"1.0|2026-10-18T10:00:00Z|tx-1|CR21011100010000000001|0111|88887777|0111|40.00|CRC",
		sampleFields().Canonical())
}

func TestSign_LegacyMatchesPlainHMACMD5(t *testing.T) {
	f := sampleFields()
	h := hmac.New(md5.New, []byte("s3cret"))
	h.Write([]byte(f.Canonical()))
	want := hex.EncodeToString(h.Sum(nil))

	got, err := Sign(f, Key{Secret: []byte("s3cret"), Algorithm: HMACMD5})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, got, 32)
}

func TestVerify(t *testing.T) {
	f := sampleFields()
	for _, alg := range []string{HMACMD5, HMACSHA256, BLAKE2b256} {
		t.Run(alg, func(t *testing.T) {
			key := Key{Secret: []byte("pair-secret"), Algorithm: alg}
			d, err := Sign(f, key)
			require.NoError(t, err)

			ok, err := Verify(f, key, d)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = Verify(f, Key{Secret: []byte("wrong"), Algorithm: alg}, d)
			require.NoError(t, err)
			assert.False(t, ok)

			tampered := f
			tampered.Amount = domain.MustAmount("40.01")
			ok, err = Verify(tampered, key, d)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestVerify_LegacyFallback(t *testing.T) {
	f := sampleFields()
	legacy, err := Sign(f, Key{Secret: []byte("k"), Algorithm: HMACMD5})
	require.NoError(t, err)

	ok, err := Verify(f, Key{Secret: []byte("k"), Algorithm: HMACSHA256, AcceptLegacy: true}, legacy)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(f, Key{Secret: []byte("k"), Algorithm: HMACSHA256}, legacy)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_MalformedDigest(t *testing.T) {
	ok, err := Verify(sampleFields(), Key{Secret: []byte("k")}, "not-hex")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := Sign(sampleFields(), Key{Secret: []byte("k"), Algorithm: "rot13"})
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	assert.False(t, Supported("rot13"))
	assert.True(t, Supported(BLAKE2b256))
}
