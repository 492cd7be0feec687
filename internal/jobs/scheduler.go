// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: чистка истёкших токенов платежей
// и архивация оплаченных выплат.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Расписания задач
const (
	TokenSweepSchedule   = "@every 1m"
	ArchiveSweepSchedule = "@every 15s"
)

const archiveSweepTimeout = 10 * time.Second

// TokenSweeper чистит истёкшие токены платежей.
type TokenSweeper interface {
	SweepExpired()
}

// ArchiveSweeper удаляет оплаченные выплаты старше окна.
type ArchiveSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	tokens   TokenSweeper
	archiver ArchiveSweeper
}

// NewScheduler создаёт планировщик в часовом поясе оператора.
func NewScheduler(loc *time.Location, tokens TokenSweeper, archiver ArchiveSweeper) *Scheduler {
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)
	return &Scheduler{
		cron:     c,
		tokens:   tokens,
		archiver: archiver,
	}
}

// Start регистрирует и запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(TokenSweepSchedule, s.sweepTokens); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(ArchiveSweepSchedule, func() { s.sweepArchive(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	log.Info("Планировщик задач запущен")
	return nil
}

func (s *Scheduler) sweepTokens() {
	s.tokens.SweepExpired()
}

func (s *Scheduler) sweepArchive(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, archiveSweepTimeout)
	defer cancel()

	if _, err := s.archiver.Sweep(ctx); err != nil {
		// Не критично: следующая итерация повторит
		log.WithError(err).Warn("[CRON] Ошибка архивации выплат")
	}
}

// Stop останавливает планировщик и ждёт завершения текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

// cronLogger направляет журнал cron в logrus.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.WithFields(fields(keysAndValues)).Debug("[CRON] " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.WithFields(fields(keysAndValues)).WithError(err).Error("[CRON] " + msg)
}

func fields(kv []any) log.Fields {
	f := log.Fields{"component": "jobs"}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
