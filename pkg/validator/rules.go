package validator

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

func fail(field, msg, key string, values map[string]any) ValidationError {
	if values == nil {
		values = map[string]any{}
	}
	values["field"] = field
	return ValidationError{Field: field, Message: msg, TranslationKey: key, TranslationValues: values}
}

// RequiredString validates that a string is not empty after trimming whitespace.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: fail(field, "field is required", "validation.required", nil),
	}
}

// MinLenString counts runes, not bytes.
func MinLenString(field, value string, min int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) >= min },
		Error: fail(field, fmt.Sprintf("must be at least %d characters long", min),
			"validation.min_length", map[string]any{"min": min}),
	}
}

func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: fail(field, fmt.Sprintf("must be at most %d characters long", max),
			"validation.max_length", map[string]any{"max": max}),
	}
}

// ExactDigits requires value to consist of exactly n ASCII digits.
func ExactDigits(field, value string, n int) Rule {
	return Rule{
		Check: func() bool { return len(value) == n && isDigits(value) },
		Error: fail(field, fmt.Sprintf("must contain exactly %d digits", n),
			"validation.exact_digits", map[string]any{"digits": n}),
	}
}

// MinDigits counts the digits in value, ignoring any other characters.
func MinDigits(field, value string, n int) Rule {
	return Rule{
		Check: func() bool {
			count := 0
			for _, r := range value {
				if unicode.IsDigit(r) {
					count++
				}
			}
			return count >= n
		},
		Error: fail(field, fmt.Sprintf("must contain at least %d digits", n),
			"validation.min_digits", map[string]any{"digits": n}),
	}
}

func InList[T comparable](field string, value T, allowed []T) Rule {
	return Rule{
		Check: func() bool {
			for _, a := range allowed {
				if value == a {
					return true
				}
			}
			return false
		},
		Error: fail(field, fmt.Sprintf("must be one of: %v", allowed),
			"validation.in_list", map[string]any{"allowed_values": allowed}),
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
