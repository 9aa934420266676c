// Package totp generates RFC 6238 time-based one-time passwords for the
// eIDAS authentication flow.
package totp

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Period is the TOTP time step.
const Period = 30 * time.Second

var opts = totp.ValidateOpts{
	Period:    uint(Period / time.Second),
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Code returns the 6-digit code for the base32 secret at time t.
func Code(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return code, nil
}

// ValidateSecret reports whether secret can be used to generate codes.
func ValidateSecret(secret string) error {
	if _, err := totp.GenerateCodeCustom(secret, time.Unix(0, 0), opts); err != nil {
		return err
	}
	return nil
}
