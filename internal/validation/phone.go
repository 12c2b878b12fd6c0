// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
)

// NormalizePhone приводит российский номер телефона к виду +7XXXXXXXXXX.
// Допускаются пробелы, скобки, дефисы и префиксы +7, 7 или 8.
func NormalizePhone(phone string) (string, bool) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", false
	}

	digits := make([]byte, 0, 11)
	for i, ch := range phone {
		switch {
		case unicode.IsDigit(ch) && ch < unicode.MaxASCII:
			digits = append(digits, byte(ch))
		case ch == '+' && i == 0:
		case ch == ' ' || ch == '(' || ch == ')' || ch == '-':
		default:
			return "", false
		}
	}

	switch {
	case len(digits) == 11 && (digits[0] == '7' || digits[0] == '8'):
		digits = digits[1:]
	case len(digits) == 10:
	default:
		return "", false
	}

	if digits[0] != '9' && digits[0] != '3' && digits[0] != '4' && digits[0] != '8' {
		return "", false
	}

	return "+7" + string(digits), true
}
