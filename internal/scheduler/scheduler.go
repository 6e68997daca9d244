// Package scheduler — фоновый цикл напоминаний: на каждом тике проходит
// по всем записям и шлет напоминание тем, у кого настроенное время совпало
// с текущей минутой.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ivanoskov/budget_bot/internal/model"
	"github.com/ivanoskov/budget_bot/internal/service"
)

// Sender — абстракция доставки сообщения пользователю.
type Sender interface {
	Deliver(userID int64, text string, menu model.Menu) error
}

// Scheduler шлет напоминание не больше одного раза на (пользователь, минута)
// в день. Множество уже отправленных живет в памяти и очищается при смене
// календарной даты; оно не переживает рестарт процесса — после рестарта в
// минуту срабатывания возможен один дубль, это осознанное ограничение.
type Scheduler struct {
	tracker *service.BudgetTracker
	sender  Sender
	tick    time.Duration
	clock   func() time.Time

	day      string
	notified map[string]bool
}

// New создает планировщик. nil clock означает time.Now.
func New(tracker *service.BudgetTracker, sender Sender, tick time.Duration, clock func() time.Time) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{
		tracker:  tracker,
		sender:   sender,
		tick:     tick,
		clock:    clock,
		notified: make(map[string]bool),
	}
}

// Run крутит цикл до отмены контекста. Начатая обработка тика доводится
// до конца, новые тики после отмены не начинаются.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick — одна итерация: вычисляет текущую минуту и рассылает
// причитающиеся напоминания. Ошибка доставки одному пользователю
// не останавливает остальных.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock()

	day := now.Format("2006-01-02")
	if day != s.day {
		s.day = day
		s.notified = make(map[string]bool)
	}
	minute := now.Format("15:04")

	records, err := s.tracker.All(ctx)
	if err != nil {
		log.Printf("Reminder tick: failed to list records: %v", err)
		return
	}

	for userID, rec := range records {
		if rec.ReminderTime == "" || rec.ReminderTime != minute {
			continue
		}
		key := fmt.Sprintf("%d@%s", userID, minute)
		if s.notified[key] {
			continue
		}
		// Помечаем до отправки: не больше одного раза в день.
		s.notified[key] = true

		text, ok := s.tracker.ReminderText(rec, now)
		if !ok {
			continue
		}
		if err := s.sender.Deliver(userID, text, service.MainMenu()); err != nil {
			log.Printf("Reminder delivery to %d failed: %v", userID, err)
		}
	}
}
