package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

// NicknamePattern определяет допустимый формат nickname:
// буквы любого алфавита, цифры, нижнее подчеркивание и дефис
var NicknamePattern = regexp.MustCompile(`^[\p{L}0-9_-]+$`)

const (
	// MinNicknameLen минимальная длина nickname
	MinNicknameLen = 2
	// MaxNicknameLen максимальная длина nickname
	MaxNicknameLen = 20
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 8
	// MaxPasswordLen ограничение bcrypt
	MaxPasswordLen = 72
	// MaxEmailLen максимальная длина email
	MaxEmailLen = 254
)

// ValidateEmail проверяет, что email синтаксически корректен
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLen)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address")
	}
	if !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return fmt.Errorf("invalid email domain")
	}

	return nil
}

// ValidateNickname проверяет nickname: 2-20 символов, без пробелов
func ValidateNickname(nickname string) error {
	if nickname == "" {
		return fmt.Errorf("nickname cannot be empty")
	}

	n := utf8.RuneCountInString(nickname)
	if n < MinNicknameLen {
		return fmt.Errorf("nickname must be at least %d characters long", MinNicknameLen)
	}
	if n > MaxNicknameLen {
		return fmt.Errorf("nickname must not exceed %d characters", MaxNicknameLen)
	}

	if !NicknamePattern.MatchString(nickname) {
		return fmt.Errorf("nickname can only contain letters, numbers, underscores and hyphens")
	}

	return nil
}

// ValidatePassword проверяет минимальные требования к паролю
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}

	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must not exceed %d bytes", MaxPasswordLen)
	}

	return nil
}
