package security

import (
	"regexp"
	"testing"

	"github.com/nokasa/pickup-backend/pkg/config"
)

var testOTPConfig = config.OTPConfig{
	ArgonMemoryKB:    64,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestGenerateNumericCode(t *testing.T) {
	sixDigits := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		code, err := GenerateNumericCode(6)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !sixDigits.MatchString(code) {
			t.Fatalf("expected 6 digits, got %q", code)
		}
	}
	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestHashAndVerifyCode(t *testing.T) {
	hash, err := HashCode("123456", testOTPConfig)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ok, err := VerifyCode("123456", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = VerifyCode("654321", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}

	other, err := HashCode("123456", testOTPConfig)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if other == hash {
		t.Fatalf("expected distinct salts per hash")
	}
}

func TestVerifyCodeBadHash(t *testing.T) {
	for _, bad := range []string{"", "plain", "$argon2id$v=19$m=x$salt$key", "$bcrypt$v=1$m=1,t=1,p=1$c2FsdA$a2V5"} {
		if _, err := VerifyCode("123456", bad); err != ErrInvalidHash {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", bad, err)
		}
	}
	if _, err := HashCode("", testOTPConfig); err == nil {
		t.Fatalf("expected error for empty code")
	}
}
