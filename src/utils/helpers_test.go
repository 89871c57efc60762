package utils

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithSuffix(t *testing.T) {
	t.Setenv("API_ENV", "")
	assert.Equal(t, "mailer-local", WithSuffix("mailer"))

	t.Setenv("API_ENV", "prod")
	assert.Equal(t, "mailer-prod", WithSuffix("mailer"))
}

func TestUniqueSlug(t *testing.T) {
	taken := map[string]bool{"deep-clean": true, "deep-clean-2": true}
	got := UniqueSlug("Deep Clean", func(s string) bool { return taken[s] })
	assert.Equal(t, "deep-clean-3", got)

	got = UniqueSlug("Garden Makeover", func(s string) bool { return taken[s] })
	assert.Equal(t, "garden-makeover", got)
}

func TestPlatformFee(t *testing.T) {
	// 10% default rate on a 150.00 quote.
	assert.Equal(t, int64(1500), PlatformFee(15000, 1000))
	// Rounded to the nearest minor unit.
	assert.Equal(t, int64(3), PlatformFee(125, 250))
	assert.Equal(t, int64(0), PlatformFee(0, 1000))
	assert.Equal(t, int64(0), PlatformFee(15000, 0))
	assert.Equal(t, int64(0), PlatformFee(-100, 1000))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j***@example.com", MaskEmail("jane@example.com"))
	assert.Equal(t, "a@example.com", MaskEmail("a@example.com"))
	assert.Equal(t, "not-an-email", MaskEmail("not-an-email"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	assert.NoError(t, err)

	message := "booking:42:customer:7"
	encrypted, err := EncryptMessage(key, message)
	assert.NoError(t, err)
	assert.NotEqual(t, message, encrypted)

	decrypted, err := DecryptMessage(key, encrypted)
	assert.NoError(t, err)
	assert.Equal(t, message, *decrypted)
}

func TestDecryptMessageRejectsGarbage(t *testing.T) {
	key := make([]byte, 32)
	_, err := DecryptMessage(key, "not-hex!")
	assert.Error(t, err)

	_, err = DecryptMessage(key, "abcd")
	assert.Error(t, err, "ciphertext shorter than the nonce is rejected")
}
