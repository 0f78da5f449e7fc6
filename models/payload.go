package models

import "strings"

// PayloadKind is the typed content carried in a message body. Non-text kinds are
// stored as "[kind]value" so the body column stays plain text.
type PayloadKind string

const (
	PayloadText    PayloadKind = "text"
	PayloadImage   PayloadKind = "image"
	PayloadGift    PayloadKind = "gift"
	PayloadContact PayloadKind = "contact"
)

// textEscape marks plain text that would otherwise read back as a typed payload.
const textEscape = `\`

var prefixedKinds = []PayloadKind{PayloadImage, PayloadGift, PayloadContact}

// EncodeBody is lossless: ParseBody(EncodeBody(k, v)) returns k, v for any v.
func EncodeBody(kind PayloadKind, value string) string {
	if kind == PayloadText || kind == "" {
		if strings.HasPrefix(value, textEscape) || hasKindPrefix(value) {
			return textEscape + value
		}
		return value
	}
	return "[" + string(kind) + "]" + value
}

func ParseBody(body string) (PayloadKind, string) {
	if strings.HasPrefix(body, textEscape) {
		return PayloadText, strings.TrimPrefix(body, textEscape)
	}
	for _, k := range prefixedKinds {
		prefix := "[" + string(k) + "]"
		if strings.HasPrefix(body, prefix) {
			return k, strings.TrimPrefix(body, prefix)
		}
	}
	return PayloadText, body
}

func hasKindPrefix(s string) bool {
	for _, k := range prefixedKinds {
		if strings.HasPrefix(s, "["+string(k)+"]") {
			return true
		}
	}
	return false
}
