package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/ivanoskov/budget_bot/internal/budget"
	"github.com/ivanoskov/budget_bot/internal/model"
)

// ReminderText собирает текст ежедневного напоминания для записи.
// Возвращает ok == false, если напоминание не настроено или слать нечего.
// Чистая функция относительно (запись, момент времени) — планировщик
// передает свои часы.
func (t *BudgetTracker) ReminderText(rec *model.UserRecord, now time.Time) (string, bool) {
	if rec == nil || rec.ReminderTime == "" || !rec.Configured() {
		return "", false
	}

	today := model.NewDate(now)
	// Лимит на сегодня — от баланса на начало дня.
	spentToday := budget.SpentOn(rec.Expenses, today)
	daily, days := budget.DailyAllowance(rec.Balance.Add(spentToday), *rec.EndDate, today)
	if days <= 0 {
		// Период закончился — отдельное уведомление, не нулевой лимит.
		return "⏰ Период закончился! Обнови баланс и дату.", true
	}

	var b strings.Builder

	// Перерасход за вчера: восстанавливаем баланс на начало вчерашнего дня,
	// прибавив все потраченное с тех пор, и сравниваем с вчерашним лимитом.
	yesterday := today.AddDays(-1)
	spentYesterday := budget.SpentOn(rec.Expenses, yesterday)
	if spentYesterday.IsPositive() {
		balanceYesterday := rec.Balance.Add(budget.SpentSince(rec.Expenses, yesterday))
		allowanceYesterday, daysYesterday := budget.DailyAllowance(balanceYesterday, *rec.EndDate, yesterday)
		if daysYesterday > 0 {
			if over := spentYesterday.Sub(allowanceYesterday); over.IsPositive() {
				fmt.Fprintf(&b, "⚠️ Вчера перерасход: %s\n\n", money(over))
			}
		}
	}

	fmt.Fprintf(&b, "📆 На сегодня: *%s* (%d дн. до %s)", money(daily), days, rec.EndDate)
	return b.String(), true
}
