package util

import "github.com/google/uuid"

// NewID gera um UUID v4 para correlação de registros criados pelo cliente.
func NewID() string {
	return uuid.NewString()
}
