package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenMalformed indica token de acesso ilegível ou com assinatura inválida.
var ErrTokenMalformed = errors.New("token de acesso inválido")

// Claims representa as informações presentes no JWT emitido pelo serviço de identidade.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Expiry devolve o instante de expiração ou zero quando ausente.
func (c *Claims) Expiry() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenParser lê as claims do token de acesso. Com segredo configurado a
// assinatura HS256 é verificada; sem segredo as claims são lidas sem
// verificação e o serviço remoto continua sendo a autoridade.
type TokenParser struct {
	secret []byte
}

// NewTokenParser cria o leitor de tokens.
func NewTokenParser(secret string) *TokenParser {
	p := &TokenParser{}
	if secret != "" {
		p.secret = []byte(secret)
	}
	return p
}

// Verifies informa se a assinatura é conferida localmente.
func (p *TokenParser) Verifies() bool {
	return len(p.secret) > 0
}

// Parse devolve as claims sem validar expiração; quem chama decide o que
// fazer com um token vencido.
func (p *TokenParser) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	if !p.Verifies() {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, errors.Join(ErrTokenMalformed, err)
		}
		return claims, nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	})
	if err != nil {
		return nil, errors.Join(ErrTokenMalformed, err)
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
