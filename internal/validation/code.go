// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

// IsValidRedeemCode проверяет формат кода пополнения: ровно 8 цифр.
func IsValidRedeemCode(code string) bool {
	if len(code) != 8 {
		return false
	}

	for _, ch := range code {
		if !unicode.IsDigit(ch) {
			return false
		}
	}

	return true
}
