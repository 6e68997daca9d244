// Package budget содержит чистую арифметику бюджета: дневной лимит,
// сумма трат за день и за период, остаток на сегодня. Все функции
// детерминированы относительно (баланс, дата конца, траты, сегодня).
package budget

import (
	"github.com/shopspring/decimal"

	"github.com/ivanoskov/budget_bot/internal/model"
)

// DailyAllowance считает дневной лимит и число оставшихся дней.
// Сегодняшний день учитывается как день трат: days = (конец - сегодня) + 1.
// Если период закончился (days <= 0), возвращает (0, 0) — вызывающий обязан
// показать это как "период закончился", а не как нулевой лимит.
// Округление: 2 знака, половина от нуля (decimal.Round).
func DailyAllowance(balance decimal.Decimal, endDate, today model.Date) (decimal.Decimal, int) {
	days := today.DaysUntil(endDate) + 1
	if days <= 0 {
		return decimal.Zero, 0
	}
	return balance.Div(decimal.NewFromInt(int64(days))).Round(2), days
}

// SpentOn — сумма трат за конкретную календарную дату.
func SpentOn(expenses []model.Expense, day model.Date) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range expenses {
		if e.Date.Equal(day) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}

// SpentSince — сумма трат начиная с указанной даты включительно.
// Для скользящей недели: since = сегодня - 6 дней.
func SpentSince(expenses []model.Expense, since model.Date) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range expenses {
		if !e.Date.Before(since) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}

// RemainingToday — остаток дневного лимита. Отрицательное значение
// означает перерасход на модуль этой величины.
func RemainingToday(allowance, spentToday decimal.Decimal) decimal.Decimal {
	return allowance.Sub(spentToday)
}
