// Package timing limita o tempo de espera de chamadas remotas e repete
// tentativas com intervalo fixo.
package timing

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout indica que a operação excedeu o limite configurado.
var ErrTimeout = errors.New("a operação demorou muito para responder")

// Do executa fn com um contexto limitado a d. Se fn não retornar dentro do
// prazo, Do devolve ErrTimeout imediatamente e o resultado tardio de fn é
// descartado. O contexto repassado a fn é cancelado em qualquer saída.
func Do[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		val, err := fn(callCtx)
		done <- result{val: val, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, ErrTimeout
		}
		return res.val, res.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, ErrTimeout
	}
}

// Policy descreve uma repetição limitada com intervalo fixo.
type Policy struct {
	Attempts int
	Backoff  time.Duration
	// Retryable decide se o erro merece nova tentativa. Nil repete qualquer erro.
	Retryable func(error) bool
}

// Retry executa fn até Attempts vezes, aguardando Backoff entre tentativas.
// Devolve o último erro quando as tentativas se esgotam.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var (
		zero T
		err  error
		val  T
	)
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		val, err = fn(ctx, attempt)
		if err == nil {
			return val, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, err
}
