package models

import (
	"strings"
	"time"
)

// Account code format. The alphabet excludes I, O, 0 and 1 so codes
// survive being read aloud or typed from a screenshot.
const (
	CodeLength   = 6
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Account is one logical shared dataset, identified by its code.
// Created once, never mutated.
type Account struct {
	Code      string `json:"code"`
	CreatedAt int64  `json:"createdAt"`
}

// NormalizeCode upper-cases and trims an account code the way every
// legacy endpoint did before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the expected length and alphabet.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(CodeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// NowMillis returns the current time as unix milliseconds, the unit all
// wire and storage timestamps use.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
