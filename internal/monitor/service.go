// Package monitor verifica periodicamente a saúde do backend e avisa
// mudanças de estado.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helpdeskpro/helpdesk/internal/config"
	"github.com/helpdeskpro/helpdesk/internal/obs"
)

// Prober consulta a saúde do backend.
type Prober interface {
	Health(ctx context.Context) error
}

// Status é o resultado da última verificação.
type Status struct {
	Up        bool          `json:"up"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency_ns"`
	Error     string        `json:"error,omitempty"`
}

// Service executa verificações periódicas e guarda o último resultado.
type Service struct {
	prober   Prober
	cfg      config.MonitoringConfig
	notifier Notifier
	logger   zerolog.Logger

	mu   sync.RWMutex
	last *Status

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(prober Prober, cfg config.MonitoringConfig, logger zerolog.Logger, notifier Notifier) *Service {
	return &Service{
		prober:   prober,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
	}
}

// Start inicia loop periódico. Safe para chamar múltiplas vezes.
func (s *Service) Start(parent context.Context) {
	if !s.cfg.Enabled {
		return
	}
	s.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.runLoop(ctx)
	})
}

// Stop encerra o loop e aguarda a verificação em curso.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Service) runLoop(ctx context.Context) {
	defer close(s.done)

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("monitor: loop iniciado")
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("monitor: loop encerrado")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce verifica o backend, atualiza a métrica e notifica transições.
func (s *Service) RunOnce(ctx context.Context) Status {
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := s.prober.Health(checkCtx)
	status := Status{Up: err == nil, CheckedAt: time.Now().UTC(), Latency: time.Since(start)}
	if err != nil {
		status.Error = err.Error()
	}

	s.mu.Lock()
	prev := s.last
	s.last = &status
	s.mu.Unlock()

	obs.SetBackendUp(status.Up)

	if status.Up {
		s.logger.Debug().Dur("latency", status.Latency).Msg("monitor: backend disponível")
	} else {
		s.logger.Warn().Str("error", status.Error).Msg("monitor: backend indisponível")
	}

	if prev != nil && prev.Up != status.Up {
		s.notify(ctx, status)
	} else if prev == nil && !status.Up {
		s.notify(ctx, status)
	}
	return status
}

// Last devolve a última verificação; nil antes da primeira.
func (s *Service) Last() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	return &cp
}

func (s *Service) notify(ctx context.Context, status Status) {
	if s.notifier == nil {
		return
	}
	msg := AlertMessage{Title: "Backend do helpdesk", Text: "Serviço de autenticação voltou a responder", Severity: SeverityInfo}
	if !status.Up {
		msg.Text = "Serviço de autenticação indisponível: " + status.Error
		msg.Severity = SeverityCritical
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Error().Err(err).Msg("monitor: falha ao enviar alerta")
	}
}
