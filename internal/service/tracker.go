// Package service реализует ядро бота: конечный автомат диалога,
// обращение к хранилищу с сериализацией по пользователю и тексты ответов.
// О транспорте ядро ничего не знает — на входе (userID, текст), на выходе
// model.Reply.
package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ivanoskov/budget_bot/internal/budget"
	"github.com/ivanoskov/budget_bot/internal/charts"
	"github.com/ivanoskov/budget_bot/internal/model"
)

// Ledger определяет интерфейс для работы с хранилищем записей
type Ledger interface {
	Get(ctx context.Context, userID int64) (*model.UserRecord, error)
	Set(ctx context.Context, userID int64, rec *model.UserRecord) error
	All(ctx context.Context) (map[int64]*model.UserRecord, error)
}

// BudgetTracker — движок бюджета: обрабатывает входящие сообщения и
// готовит тексты напоминаний для планировщика.
type BudgetTracker struct {
	ledger Ledger
	charts *charts.ChartGenerator
	clock  func() time.Time

	// Операции над одной записью не должны перемежаться: на каждого
	// пользователя свой мьютекс, разные пользователи идут параллельно.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewBudgetTracker создает новый экземпляр BudgetTracker
func NewBudgetTracker(ledger Ledger) *BudgetTracker {
	return &BudgetTracker{
		ledger: ledger,
		charts: charts.NewChartGenerator(),
		clock:  time.Now,
		locks:  make(map[int64]*sync.Mutex),
	}
}

func (t *BudgetTracker) userLock(userID int64) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[userID] = lock
	}
	return lock
}

func (t *BudgetTracker) today() model.Date {
	return model.NewDate(t.clock())
}

// All отдает снимок всех записей (для планировщика напоминаний).
func (t *BudgetTracker) All(ctx context.Context) (map[int64]*model.UserRecord, error) {
	return t.ledger.All(ctx)
}

// HandleMessage прогоняет входящее сообщение через конечный автомат.
// Ответ пригоден к отправке всегда, даже если err != nil (ошибка хранилища —
// пользователь получает просьбу повторить, вызывающий логирует err).
func (t *BudgetTracker) HandleMessage(ctx context.Context, userID int64, text string) (*model.Reply, error) {
	lock := t.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := t.ledger.Get(ctx, userID)
	if err != nil {
		return &model.Reply{Text: "⚠️ Что-то пошло не так. Попробуй ещё раз.", Menu: MainMenu()},
			fmt.Errorf("failed to load record for %d: %w", userID, err)
	}
	if rec == nil {
		rec = model.NewUserRecord(userID)
	}

	reply, changed := t.dispatch(rec, strings.TrimSpace(text))
	if changed {
		rec.UpdatedAt = t.clock()
		if err := t.setWithRetry(ctx, userID, rec); err != nil {
			return &model.Reply{Text: "⚠️ Не получилось сохранить. Попробуй ещё раз.", Menu: MainMenu()},
				fmt.Errorf("failed to save record for %d: %w", userID, err)
		}
	}
	return reply, nil
}

// setWithRetry повторяет запись один раз: ошибки хранилища считаем временными.
func (t *BudgetTracker) setWithRetry(ctx context.Context, userID int64, rec *model.UserRecord) error {
	err := t.ledger.Set(ctx, userID, rec)
	if err == nil {
		return nil
	}
	log.Printf("Retrying ledger write for %d: %v", userID, err)
	return t.ledger.Set(ctx, userID, rec)
}

// dispatch выбирает действие по тексту и текущему состоянию.
// Возвращает ответ и признак того, что запись изменилась.
func (t *BudgetTracker) dispatch(rec *model.UserRecord, text string) (*model.Reply, bool) {
	// Команды и кнопки меню срабатывают из любого состояния.
	switch text {
	case "/start":
		*rec = *model.NewUserRecord(rec.UserID)
		rec.State = model.WaitingBalance
		return &model.Reply{Text: "👋 Привет! Я помогу тебе следить за бюджетом.\n\n" +
			"Ты вводишь сумму и дату, до которой нужно дожить — " +
			"я посчитаю, сколько можно тратить каждый день.\n\n" +
			"Давай начнём! Введи свой текущий баланс (число):"}, true
	case "/cancel":
		rec.State = model.Idle
		return &model.Reply{Text: "Отменено.", Menu: MainMenu()}, true
	case BtnBalance:
		rec.State = model.WaitingBalance
		return &model.Reply{Text: "Введи новый баланс:"}, true
	case BtnDate:
		if !rec.HasBalance {
			rec.State = model.Idle
			return &model.Reply{Text: "Сначала введи баланс через /start", Menu: MainMenu()}, true
		}
		rec.State = model.WaitingDate
		return &model.Reply{Text: "Введи новую дату (ДД.ММ.ГГГГ):"}, true
	case BtnExpense:
		if !rec.HasBalance {
			rec.State = model.Idle
			return &model.Reply{Text: "Сначала введи баланс через /start", Menu: MainMenu()}, true
		}
		rec.State = model.WaitingExpense
		return &model.Reply{Text: "Введи трату: сумма и описание, например:\n500 обед"}, true
	case BtnReminder:
		rec.State = model.WaitingReminder
		current := "сейчас выключено"
		if rec.ReminderTime != "" {
			current = "сейчас " + rec.ReminderTime
		}
		return &model.Reply{Text: fmt.Sprintf(
			"Во сколько напоминать о бюджете? Введи время в формате ЧЧ:ММ, например: 09:00 (%s).\n"+
				"Чтобы отключить, напиши «%s».", current, DisableWord)}, true
	case BtnBudget:
		return t.showBudget(rec), false
	case BtnHistory:
		return t.showHistory(rec), false
	}

	switch rec.State {
	case model.WaitingBalance:
		return t.readBalance(rec, text)
	case model.WaitingDate:
		return t.readDate(rec, text)
	case model.WaitingExpense:
		return t.readExpense(rec, text)
	case model.WaitingReminder:
		return t.readReminder(rec, text)
	}

	return &model.Reply{Text: "Воспользуйся меню 👇", Menu: MainMenu()}, false
}

func (t *BudgetTracker) readBalance(rec *model.UserRecord, text string) (*model.Reply, bool) {
	amount, err := parseAmount(text)
	if err != nil || amount.IsNegative() {
		return &model.Reply{Text: "❌ Введи корректное число, например: 15000 или 15000.50"}, false
	}

	rec.Balance = amount
	rec.HasBalance = true
	rec.State = model.WaitingDate
	return &model.Reply{Text: fmt.Sprintf(
		"✅ Баланс: %s\n\n"+
			"Теперь введи дату, до которой нужно дожить.\n"+
			"Формат: ДД.ММ.ГГГГ, например: 31.03.2025", money(amount))}, true
}

func (t *BudgetTracker) readDate(rec *model.UserRecord, text string) (*model.Reply, bool) {
	endDate, err := model.ParseDate(text)
	if err != nil {
		return &model.Reply{Text: "❌ Неверный формат. Введи дату в виде ДД.ММ.ГГГГ:"}, false
	}

	today := t.today()
	if endDate.Before(today) {
		return &model.Reply{Text: "❌ Дата уже прошла. Введи будущую дату:"}, false
	}

	setDate := today
	rec.EndDate = &endDate
	rec.SetDate = &setDate
	rec.State = model.Idle

	daily, days := budget.DailyAllowance(rec.Balance, endDate, today)
	return &model.Reply{
		Text: fmt.Sprintf(
			"🎉 Всё готово!\n\n"+
				"💰 Баланс: %s\n"+
				"📅 До: %s (%d дн.)\n"+
				"📆 Можно тратить в день: *%s*",
			money(rec.Balance), endDate, days, money(daily)),
		Menu:     MainMenu(),
		Markdown: true,
	}, true
}

func (t *BudgetTracker) readExpense(rec *model.UserRecord, text string) (*model.Reply, bool) {
	parts := strings.SplitN(text, " ", 2)
	amount, err := parseAmount(parts[0])
	if err != nil || !amount.IsPositive() {
		return &model.Reply{Text: "❌ Первым словом должна быть сумма, например:\n500 обед"}, false
	}
	description := ""
	if len(parts) == 2 {
		description = strings.TrimSpace(parts[1])
	}

	today := t.today()
	expense := model.Expense{
		Date:        today,
		Amount:      amount,
		Description: description,
	}
	expense.GenerateID()

	rec.Expenses = append(rec.Expenses, expense)
	// Баланс может уйти в минус: перерасход показываем статусом, а не запретом.
	rec.Balance = rec.Balance.Sub(amount)
	rec.State = model.Idle

	line := fmt.Sprintf("✅ Записал: %s", money(amount))
	if description != "" {
		line += " — " + description
	}
	return &model.Reply{
		Text:     line + "\n\n" + t.todayStatus(rec, today),
		Menu:     MainMenu(),
		Markdown: true,
	}, true
}

func (t *BudgetTracker) readReminder(rec *model.UserRecord, text string) (*model.Reply, bool) {
	if strings.EqualFold(text, DisableWord) {
		rec.ReminderTime = ""
		rec.State = model.Idle
		return &model.Reply{Text: "🔕 Напоминание выключено.", Menu: MainMenu()}, true
	}

	parsed, err := time.Parse("15:04", text)
	if err != nil {
		return &model.Reply{Text: fmt.Sprintf(
			"❌ Введи время в формате ЧЧ:ММ, например: 09:00 (или «%s»):", DisableWord)}, false
	}

	rec.ReminderTime = parsed.Format("15:04")
	rec.State = model.Idle
	return &model.Reply{Text: fmt.Sprintf(
		"🔔 Буду напоминать каждый день в %s.", rec.ReminderTime), Menu: MainMenu()}, true
}

func (t *BudgetTracker) showBudget(rec *model.UserRecord) *model.Reply {
	if !rec.Configured() {
		return &model.Reply{Text: "У тебя ещё нет данных. Напиши /start чтобы начать.", Menu: MainMenu()}
	}

	today := t.today()
	spentToday := budget.SpentOn(rec.Expenses, today)
	daily, days := budget.DailyAllowance(rec.Balance.Add(spentToday), *rec.EndDate, today)
	if days <= 0 {
		return &model.Reply{Text: "⏰ Период закончился! Обнови баланс и дату.", Menu: MainMenu()}
	}

	text := fmt.Sprintf(
		"📊 *Твой бюджет*\n\n"+
			"💰 Остаток: %s\n"+
			"📅 До: %s (%d дн.)\n"+
			"📆 В день: *%s*\n\n%s",
		money(rec.Balance), rec.EndDate, days, money(daily), t.todayStatus(rec, today))

	return &model.Reply{Text: text, Menu: MainMenu(), Markdown: true}
}

const historyLimit = 10

func (t *BudgetTracker) showHistory(rec *model.UserRecord) *model.Reply {
	if len(rec.Expenses) == 0 {
		return &model.Reply{Text: "Трат пока нет. Запиши первую через «" + BtnExpense + "».", Menu: MainMenu()}
	}

	today := t.today()
	weekAgo := today.AddDays(-6)
	spentToday := budget.SpentOn(rec.Expenses, today)
	spentWeek := budget.SpentSince(rec.Expenses, weekAgo)

	var b strings.Builder
	b.WriteString("📜 *Последние траты*\n\n")
	shown := 0
	for i := len(rec.Expenses) - 1; i >= 0 && shown < historyLimit; i-- {
		e := rec.Expenses[i]
		b.WriteString("• " + e.Date.String() + " — " + money(e.Amount))
		if e.Description != "" {
			b.WriteString(" " + e.Description)
		}
		b.WriteString("\n")
		shown++
	}
	fmt.Fprintf(&b, "\n🍽 Сегодня: %s\n📅 За 7 дней: %s", money(spentToday), money(spentWeek))

	if rec.Configured() {
		daily, days := budget.DailyAllowance(rec.Balance.Add(spentToday), *rec.EndDate, today)
		if days > 0 {
			if remaining := budget.RemainingToday(daily, spentToday); remaining.IsNegative() {
				fmt.Fprintf(&b, "\n⚠️ Перерасход сегодня: %s", money(remaining.Abs()))
			}
		}
	}

	reply := &model.Reply{Text: b.String(), Menu: MainMenu(), Markdown: true}
	if spentWeek.IsPositive() {
		chart, err := t.charts.WeeklySpending(rec, today)
		if err != nil {
			log.Printf("Failed to render history chart for %d: %v", rec.UserID, err)
		} else {
			reply.Chart = chart
		}
	}
	return reply
}

// todayStatus — строка про сегодняшний день: лимит, потрачено, остаток
// либо перерасход. Используется в ответе на трату и в показе бюджета.
// Лимит считается от баланса на начало дня (текущий плюс потраченное
// сегодня), иначе он уменьшался бы с каждой тратой в течение дня.
func (t *BudgetTracker) todayStatus(rec *model.UserRecord, today model.Date) string {
	if !rec.Configured() {
		return ""
	}
	spentToday := budget.SpentOn(rec.Expenses, today)
	daily, days := budget.DailyAllowance(rec.Balance.Add(spentToday), *rec.EndDate, today)
	if days <= 0 {
		return "⏰ Период закончился! Обнови баланс и дату."
	}

	remaining := budget.RemainingToday(daily, spentToday)
	if remaining.IsNegative() {
		return fmt.Sprintf("🍽 Потрачено сегодня: %s\n⚠️ Перерасход: *%s*",
			money(spentToday), money(remaining.Abs()))
	}
	return fmt.Sprintf("🍽 Потрачено сегодня: %s\n📆 Осталось на сегодня: *%s*",
		money(spentToday), money(remaining))
}

// parseAmount разбирает сумму: запятая считается десятичным разделителем,
// пробелы (в том числе неразрывные) убираются.
func parseAmount(text string) (decimal.Decimal, error) {
	normalized := strings.NewReplacer(",", ".", " ", "", " ", "").Replace(text)
	if normalized == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(normalized)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2) + " ₽"
}
