package fieldcrypt

import (
	"bytes"
	"testing"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	box, err := NewBox(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	sealed, err := box.Seal([]byte("Ana Mora"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "Ana Mora")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "Ana Mora", string(plain))
}

func TestOpenWithWrongKey(t *testing.T) {
	a, _ := NewBox(bytes.Repeat([]byte{1}, 32))
	b, _ := NewBox(bytes.Repeat([]byte{2}, 32))

	sealed, err := a.Seal([]byte("Ana Mora"))
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrOpen)

	_, err = b.Open([]byte("short"))
	assert.ErrorIs(t, err, ErrOpen)
}

func TestNewBoxFromHex(t *testing.T) {
	box, err := NewBoxFromHex("")
	require.NoError(t, err)
	assert.Nil(t, box)

	_, err = NewBoxFromHex("zz")
	assert.Error(t, err)

	_, err = NewBoxFromHex("abcd")
	assert.Error(t, err)
}

func TestRevealHolderName(t *testing.T) {
	box, _ := NewBox(bytes.Repeat([]byte{9}, 32))
	sealed, err := box.Seal([]byte("Luis Solano"))
	require.NoError(t, err)

	name, err := domain.RevealHolderName(domain.PlaintextName("Legacy Row"), box)
	require.NoError(t, err)
	assert.Equal(t, "Legacy Row", name)

	name, err = domain.RevealHolderName(domain.SealedName(sealed), box)
	require.NoError(t, err)
	assert.Equal(t, "Luis Solano", name)

	other, _ := NewBox(bytes.Repeat([]byte{3}, 32))
	_, err = domain.RevealHolderName(domain.SealedName(sealed), other)
	assert.ErrorIs(t, err, ErrOpen)

	_, err = domain.RevealHolderName(domain.SealedName(sealed), nil)
	assert.ErrorIs(t, err, domain.ErrHolderNameSealed)
}
