package utils

import (
	"crypto/rand"
	"encoding/hex"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// RandomHex generates a random hexadecimal string of length 2n
func RandomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// RoomCode generates a URL-safe code of n characters for shareable room links.
func RoomCode(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		// 64 symbols, so the low six bits index without bias
		b[i] = codeAlphabet[b[i]&63]
	}
	return string(b)
}
