// Package badge turns a stage's plaintext reward key into the badge string
// handed to the participant.
//
// The transform is a fixed per-position character shift followed by base64.
// It is obfuscation only: anyone holding a badge can recover the key, so it
// provides no confidentiality and must never decide access.
package badge

import "encoding/base64"

// Encode shifts the i-th code point of key by 5 - i%3 and base64-encodes the
// UTF-8 bytes of the result.
func Encode(key string) string {
	runes := []rune(key)
	for i, r := range runes {
		runes[i] = r + shift(i)
	}
	return base64.StdEncoding.EncodeToString([]byte(string(runes)))
}

// decode reverses Encode.
func decode(b string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b)
	if err != nil {
		return "", err
	}
	runes := []rune(string(raw))
	for i, r := range runes {
		runes[i] = r - shift(i)
	}
	return string(runes), nil
}

func shift(i int) rune {
	return rune(5 - i%3)
}
