// Package websession associa cada navegador a um identificador opaco (sid)
// e guarda no Redis a sessão do serviço de identidade desse navegador.
package websession

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helpdeskpro/helpdesk/internal/supabase"
)

// ErrInvalidID indica sid vazio ou com formato inesperado.
var ErrInvalidID = errors.New("identificador de sessão inválido")

const idBytes = 32

// NewID cria identificador aleatório seguro e seu hash persistível.
func NewID() (raw string, hashed string, err error) {
	buf := make([]byte, idBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}

	raw = base64.RawURLEncoding.EncodeToString(buf)
	hashed = HashID(raw)
	return raw, hashed, nil
}

// HashID produz hash SHA-256 base64 do sid.
func HashID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidID confere o formato de um sid recebido do navegador.
func ValidID(raw string) bool {
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	return err == nil && len(decoded) == idBytes
}

// RedisKey monta a chave que guarda a sessão do navegador.
func RedisKey(hash string) string {
	return fmt.Sprintf("websession:%s", hash)
}

// Store guarda sessões no Redis com expiração deslizante.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore cria o armazenamento.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// For devolve o armazenamento ligado a um sid.
func (s *Store) For(sid string) (*Storage, error) {
	if !ValidID(sid) {
		return nil, ErrInvalidID
	}
	return &Storage{store: s, key: RedisKey(HashID(sid))}, nil
}

// Storage é a sessão de um navegador específico.
type Storage struct {
	store *Store
	key   string
}

// Load devolve a sessão ou nil quando não existe.
func (s *Storage) Load(ctx context.Context) (*supabase.Session, error) {
	raw, err := s.store.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session supabase.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		// Registro corrompido vale como ausência de sessão.
		_ = s.store.rdb.Del(ctx, s.key).Err()
		return nil, nil
	}
	return &session, nil
}

// Save grava a sessão renovando o prazo de expiração.
func (s *Storage) Save(ctx context.Context, session *supabase.Session) error {
	if session == nil {
		return s.Clear(ctx)
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.store.rdb.Set(ctx, s.key, payload, s.store.ttl).Err()
}

// Clear remove a sessão.
func (s *Storage) Clear(ctx context.Context) error {
	return s.store.rdb.Del(ctx, s.key).Err()
}
