package util

import (
	"regexp"
)

// The bot API accepts 1-256 characters from this set as a webhook secret.
var secretTokenRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

func IsValidSecretToken(s string) bool {
	return secretTokenRegex.MatchString(s)
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
