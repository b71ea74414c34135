package login

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/pquerna/otp/totp"
)

// StashOTP returns the OTP code to send with a login request. An explicit
// code wins; an explicit value that is not a short numeric code is taken as
// a base32 secret. Otherwise the stash's cached secret is used, and with
// neither the result is empty.
func StashOTP(stash *LoginStash, explicit string, now time.Time) (string, error) {
	if explicit != "" {
		if isOTPCode(explicit) {
			return explicit, nil
		}
		return generateOTP(explicit, now)
	}
	if stash == nil || stash.OTPKey == "" {
		return "", nil
	}
	return generateOTP(stash.OTPKey, now)
}

func generateOTP(secret string, now time.Time) (string, error) {
	code, err := totp.GenerateCode(strings.ToUpper(secret), now)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP code: %w", err)
	}
	return code, nil
}

func isOTPCode(s string) bool {
	if len(s) == 0 || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
