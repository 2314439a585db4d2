package isp

import "strings"

// signatures maps avrdude part identifiers to the 3-byte device signature.
var signatures = map[string]string{
	"m168":        "1e9406",
	"atmega168":   "1e9406",
	"m168p":       "1e940b",
	"atmega168p":  "1e940b",
	"m168pb":      "1e9415",
	"atmega168pb": "1e9415",
	"m328":        "1e9514",
	"atmega328":   "1e9514",
	"m328p":       "1e950f",
	"atmega328p":  "1e950f",
	"m328pb":      "1e9516",
	"atmega328pb": "1e9516",
}

// ExpectedSignature returns the lowercase hex signature for a chip type.
func ExpectedSignature(chipType string) (string, bool) {
	sig, ok := signatures[strings.ToLower(chipType)]
	return sig, ok
}
