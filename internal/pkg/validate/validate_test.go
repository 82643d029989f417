package validate

import (
	"testing"

	"github.com/go-otp-auth/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(domain.SignupRequest{Email: "a@x.com", Password: "secret1"}))
}

func TestStruct_MessagesUseJSONNames(t *testing.T) {
	err := Struct(domain.SignupRequest{Email: "not-an-email", Password: "abc"})
	assert.EqualError(t, err, "email must be a valid email address; password must be at least 6 characters")
}

func TestStruct_Required(t *testing.T) {
	err := Struct(domain.VerifyOTPRequest{Email: "a@x.com"})
	assert.EqualError(t, err, "otp is required")
}

func TestStruct_NumericOTP(t *testing.T) {
	err := Struct(domain.VerifyOTPRequest{Email: "a@x.com", OTP: "12ab56"})
	assert.EqualError(t, err, "otp must contain only digits")
}
