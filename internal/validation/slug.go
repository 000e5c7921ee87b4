// Package validation содержит проверки входных данных каталога.
package validation

const maxProductIDLength = 64

// IsValidProductID проверяет идентификатор товара: строчные латинские буквы,
// цифры и дефисы, без дефиса в начале или в конце.
func IsValidProductID(id string) bool {
	if id == "" || len(id) > maxProductIDLength {
		return false
	}

	if id[0] == '-' || id[len(id)-1] == '-' {
		return false
	}

	for i := 0; i < len(id); i++ {
		c := id[i]
		if c >= 'a' && c <= 'z' {
			continue
		}
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '-' {
			continue
		}
		return false
	}

	return true
}

// IsValidProductType проверяет, что тип товара входит в известный набор.
func IsValidProductType(t string) bool {
	switch t {
	case "video", "game", "activity", "bundle":
		return true
	}
	return false
}
