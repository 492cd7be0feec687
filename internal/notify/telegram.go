// Package notify отправляет оператору уведомления в Telegram
// о подтверждённых депозитах и оплаченных выплатах.
package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"github.com/bancapix/server/internal/common"
	"github.com/bancapix/server/internal/events"
)

// Sender — то, что нужно от клиента Telegram (*telego.Bot).
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Telegram — подписчик шины, пересылающий важные события в чат.
type Telegram struct {
	sender Sender
	chatID int64
	logger *log.Entry
}

// NewTelegram создаёт бота по токену.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("ошибка создания бота: %w", err)
	}
	return newTelegram(bot, chatID), nil
}

func newTelegram(sender Sender, chatID int64) *Telegram {
	return &Telegram{
		sender: sender,
		chatID: chatID,
		logger: log.WithField("component", "telegram"),
	}
}

// Run читает шину до отмены ctx или закрытия шины.
func (t *Telegram) Run(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(events.DepositsChanged, events.PayoutsChanged)
	defer sub.Close()

	t.logger.Info("Уведомления в Telegram включены")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			text, ok := FormatEvent(ev)
			if !ok {
				continue
			}
			msg := tu.Message(tu.ID(t.chatID), text).WithParseMode(telego.ModeHTML)
			if _, err := t.sender.SendMessage(ctx, msg); err != nil {
				t.logger.WithError(err).WithField("event", ev.Name).Warn("Не удалось отправить уведомление")
			}
		}
	}
}

// FormatEvent возвращает текст уведомления; false — событие не интересно оператору.
func FormatEvent(ev events.Event) (string, bool) {
	change, ok := ev.Payload.(events.Change)
	if !ok {
		return "", false
	}

	var title string
	switch {
	case ev.Name == events.DepositsChanged && change.Action == events.ActionConfirmed:
		title = "💰 <b>Depósito confirmado</b>"
	case ev.Name == events.PayoutsChanged && change.Action == events.ActionPaid:
		title = "✅ <b>Pagamento realizado</b>"
	default:
		return "", false
	}

	return fmt.Sprintf("%s\nNome: %s\nValor: %s",
		title,
		html.EscapeString(change.PayerName),
		common.FormatBRL(change.AmountCents),
	), true
}
