package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePhone(t *testing.T) {
	assert.True(t, ValidatePhone("+56 9 1234 5678"))
	assert.True(t, ValidatePhone("912345678"))
	assert.True(t, ValidatePhone("9-1234-5678"))
	assert.False(t, ValidatePhone("123456"))
	assert.False(t, ValidatePhone(""))
	assert.False(t, ValidatePhone("+1 912345678"))
	assert.False(t, ValidatePhone("91234567890"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "912345678", NormalizePhone("+56 9 1234 5678"))
	assert.Equal(t, "123456", NormalizePhone("12-34-56"))
}
