package util

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength é o tamanho mínimo aceito antes de consultar o serviço.
const MinPasswordLength = 6

var (
	// ErrPasswordTooShort indica senha abaixo do mínimo.
	ErrPasswordTooShort = errors.New("A senha deve ter pelo menos 6 caracteres")
	// ErrPasswordMismatch indica senha e confirmação diferentes.
	ErrPasswordMismatch = errors.New("As senhas não coincidem")
)

// ValidateEmail retorna erro para e-mails inválidos.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email obrigatório")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("email inválido")
	}
	return nil
}

// ValidatePassword verifica requisitos mínimos de senha.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// ValidatePasswordPair confere confirmação e tamanho, nessa ordem.
func ValidatePasswordPair(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	return ValidatePassword(password)
}

// RequireString garante string não vazia.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " obrigatório")
	}
	return nil
}
