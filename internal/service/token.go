package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

const sessionTokenPrefix = "chk_sess_"

var sessionTokenPattern = regexp.MustCompile(`^chk_sess_[a-f0-9]{64}$`)

// NewSessionToken returns "chk_sess_" followed by 32 random bytes in hex.
func NewSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return sessionTokenPrefix + hex.EncodeToString(b), nil
}

func ValidSessionToken(token string) bool {
	return sessionTokenPattern.MatchString(token)
}

// NewOrderNumber returns ORD-YYYYMMDD-NNNNNN for the UTC date of now.
func NewOrderNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%06d", now.UTC().Format("20060102"), n.Int64()), nil
}
