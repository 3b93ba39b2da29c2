package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII(t *testing.T) {
	assert.Empty(t, RedactPII(""))
	assert.Len(t, RedactPII("payee@example.com"), 64)
	assert.Equal(t, RedactPII("payee@example.com"), RedactPII("payee@example.com"))
	assert.NotEqual(t, RedactPII("payee@example.com"), RedactPII("other@example.com"))
	assert.NotContains(t, RedactPII("payee@example.com"), "payee")
}

func TestMaskRecipient(t *testing.T) {
	assert.Empty(t, MaskRecipient(""))
	assert.Equal(t, "pa*****oe@example.com", MaskRecipient("payee.doe@example.com"))
	assert.Equal(t, "****@example.com", MaskRecipient("jane@example.com"))
	assert.Equal(t, "ac***********45", MaskRecipient("acct_1234567845"))
	assert.Equal(t, "***", MaskRecipient("abc"))
}
