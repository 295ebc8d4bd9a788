package conversation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var phonePattern = regexp.MustCompile(`^\+[0-9]{11,15}$`)

// ValidationError describes malformed user input. It never leaves the
// conversation: the user is re-prompted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// APITriple is the parsed "apiId:apiSecret:phone" line.
type APITriple struct {
	APIID   string
	APIHash string
	Phone   string
}

// ParsePhone matches the raw input; surrounding whitespace is rejected.
func ParsePhone(s string) (string, error) {
	if !phonePattern.MatchString(s) {
		return "", &ValidationError{Field: "phone", Reason: "want + followed by 11-15 digits"}
	}
	return s, nil
}

func ParseCode(s string) (string, error) {
	if len(s) != 5 || !allDigits(s) {
		return "", &ValidationError{Field: "code", Reason: "want exactly 5 digits"}
	}
	return s, nil
}

func ParseAPITriple(s string) (APITriple, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return APITriple{}, &ValidationError{Field: "api data", Reason: "want api_id:api_hash:phone"}
	}
	id, hash, phone := parts[0], parts[1], parts[2]
	if id == "" || !allDigits(id) {
		return APITriple{}, &ValidationError{Field: "api_id", Reason: "want digits"}
	}
	if utf8.RuneCountInString(hash) != 32 {
		return APITriple{}, &ValidationError{Field: "api_hash", Reason: "want 32 characters"}
	}
	if !phonePattern.MatchString(phone) {
		return APITriple{}, &ValidationError{Field: "phone", Reason: "want + followed by 11-15 digits"}
	}
	return APITriple{APIID: id, APIHash: hash, Phone: phone}, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
