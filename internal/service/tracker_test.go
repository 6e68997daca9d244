package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ivanoskov/budget_bot/internal/model"
)

// fakeLedger — хранилище в памяти для тестов, умеет падать на записи.
type fakeLedger struct {
	mu       sync.Mutex
	data     map[int64]*model.UserRecord
	failSets int
	setCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{data: make(map[int64]*model.UserRecord)}
}

func (l *fakeLedger) Get(ctx context.Context, userID int64) (*model.UserRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.data[userID]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (l *fakeLedger) Set(ctx context.Context, userID int64, rec *model.UserRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setCalls++
	if l.failSets > 0 {
		l.failSets--
		return errors.New("storage unavailable")
	}
	l.data[userID] = rec.Clone()
	return nil
}

func (l *fakeLedger) All(ctx context.Context) (map[int64]*model.UserRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int64]*model.UserRecord, len(l.data))
	for id, rec := range l.data {
		out[id] = rec.Clone()
	}
	return out, nil
}

const testUser int64 = 77

// newTestTracker фиксирует часы на 01.03.2025 12:00.
func newTestTracker(ledger Ledger) *BudgetTracker {
	tracker := NewBudgetTracker(ledger)
	tracker.clock = func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	}
	return tracker
}

func handle(t *testing.T, tracker *BudgetTracker, text string) *model.Reply {
	t.Helper()
	reply, err := tracker.HandleMessage(context.Background(), testUser, text)
	if err != nil {
		t.Fatalf("HandleMessage(%q): %v", text, err)
	}
	if reply == nil {
		t.Fatalf("HandleMessage(%q): nil reply", text)
	}
	return reply
}

func stored(t *testing.T, ledger *fakeLedger) *model.UserRecord {
	t.Helper()
	rec, err := ledger.Get(context.Background(), testUser)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("record not persisted")
	}
	return rec
}

func TestStartToConfiguredFlow(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)

	reply := handle(t, tracker, "/start")
	if !strings.Contains(reply.Text, "баланс") {
		t.Errorf("start reply does not prompt for balance: %q", reply.Text)
	}
	if stored(t, ledger).State != model.WaitingBalance {
		t.Fatalf("state = %s, want waiting_balance", stored(t, ledger).State)
	}

	reply = handle(t, tracker, "15000.5")
	rec := stored(t, ledger)
	if rec.State != model.WaitingDate {
		t.Fatalf("state = %s, want waiting_date", rec.State)
	}
	if !rec.HasBalance || !rec.Balance.Equal(decimal.RequireFromString("15000.5")) {
		t.Fatalf("balance = %s (has=%v), want 15000.5", rec.Balance, rec.HasBalance)
	}

	reply = handle(t, tracker, "31.03.2025")
	rec = stored(t, ledger)
	if rec.State != model.Idle {
		t.Fatalf("state = %s, want idle", rec.State)
	}
	if rec.EndDate == nil || rec.EndDate.String() != "31.03.2025" {
		t.Fatalf("end date = %v", rec.EndDate)
	}
	// 15000.5 / 31 день = 483.89 при округлении половины от нуля.
	if !strings.Contains(reply.Text, "483.89") {
		t.Errorf("reply misses allowance: %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "31 дн.") {
		t.Errorf("reply misses days: %q", reply.Text)
	}
	if reply.Menu == nil {
		t.Error("configured reply must carry the main menu")
	}
}

func TestBalanceParsing(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"15000.5", "15000.5", true},
		{"15000,50", "15000.5", true},
		{"15 000,50", "15000.5", true},
		{"0", "0", true},
		{"-100", "", false},
		{"сто", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ledger := newFakeLedger()
			tracker := newTestTracker(ledger)
			handle(t, tracker, "/start")

			reply := handle(t, tracker, tt.input)
			rec := stored(t, ledger)
			if tt.ok {
				if rec.State != model.WaitingDate {
					t.Fatalf("state = %s, want waiting_date", rec.State)
				}
				if !rec.Balance.Equal(decimal.RequireFromString(tt.want)) {
					t.Errorf("balance = %s, want %s", rec.Balance, tt.want)
				}
			} else {
				// Неверный ввод: остаемся на шаге и просим повторить.
				if rec.State != model.WaitingBalance {
					t.Fatalf("state = %s, want waiting_balance", rec.State)
				}
				if !strings.Contains(reply.Text, "❌") {
					t.Errorf("no error marker in reply: %q", reply.Text)
				}
			}
		})
	}
}

func TestPastDateRejected(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	handle(t, tracker, "/start")
	handle(t, tracker, "1000")

	reply := handle(t, tracker, "01.01.2020")
	if !strings.Contains(reply.Text, "Дата уже прошла") {
		t.Errorf("reply = %q", reply.Text)
	}
	if stored(t, ledger).State != model.WaitingDate {
		t.Error("must stay in waiting_date after past date")
	}

	reply = handle(t, tracker, "каша")
	if !strings.Contains(reply.Text, "Неверный формат") {
		t.Errorf("reply = %q", reply.Text)
	}
	if stored(t, ledger).State != model.WaitingDate {
		t.Error("must stay in waiting_date after bad format")
	}

	// Сегодняшняя дата проходит: остается один день трат.
	reply = handle(t, tracker, "01.03.2025")
	if stored(t, ledger).State != model.Idle {
		t.Error("today must be accepted as end date")
	}
	if !strings.Contains(reply.Text, "1000.00") {
		t.Errorf("single day allowance missing: %q", reply.Text)
	}
}

func seedConfigured(t *testing.T, ledger *fakeLedger, balance string) {
	t.Helper()
	end, _ := model.ParseDate("31.03.2025")
	set, _ := model.ParseDate("01.03.2025")
	ledger.data[testUser] = &model.UserRecord{
		UserID:     testUser,
		State:      model.Idle,
		Balance:    decimal.RequireFromString(balance),
		HasBalance: true,
		EndDate:    &end,
		SetDate:    &set,
	}
}

func TestRecordExpense(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	seedConfigured(t, ledger, "1000")

	handle(t, tracker, BtnExpense)
	if stored(t, ledger).State != model.WaitingExpense {
		t.Fatal("menu must switch to waiting_expense")
	}

	reply := handle(t, tracker, "500 обед")
	rec := stored(t, ledger)
	if rec.State != model.Idle {
		t.Fatalf("state = %s, want idle", rec.State)
	}
	if !rec.Balance.Equal(decimal.RequireFromString("500")) {
		t.Errorf("balance = %s, want 500", rec.Balance)
	}
	if len(rec.Expenses) != 1 {
		t.Fatalf("expenses = %d, want 1", len(rec.Expenses))
	}
	e := rec.Expenses[0]
	if !e.Amount.Equal(decimal.RequireFromString("500")) || e.Description != "обед" {
		t.Errorf("expense = %+v", e)
	}
	if e.Date.String() != "01.03.2025" {
		t.Errorf("expense date = %s, want today", e.Date)
	}
	if e.ID == "" {
		t.Error("expense id not generated")
	}
	// 500 при лимите 1000/31 = 32.26 в день — это перерасход.
	if !strings.Contains(reply.Text, "Потрачено сегодня") || !strings.Contains(reply.Text, "Перерасход") {
		t.Errorf("reply misses today status: %q", reply.Text)
	}
}

// Трата в пределах лимита показывает остаток, а не перерасход.
func TestExpenseWithinAllowance(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	seedConfigured(t, ledger, "1000")

	handle(t, tracker, BtnExpense)
	reply := handle(t, tracker, "10 кофе")

	// Лимит от баланса на начало дня: 1000 / 31 = 32.26, потрачено 10.
	if !strings.Contains(reply.Text, "Осталось на сегодня") || !strings.Contains(reply.Text, "22.26") {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestExpenseWithoutDescription(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	seedConfigured(t, ledger, "1000")

	handle(t, tracker, BtnExpense)
	handle(t, tracker, "250,50")

	rec := stored(t, ledger)
	if len(rec.Expenses) != 1 || rec.Expenses[0].Description != "" {
		t.Fatalf("expenses = %+v", rec.Expenses)
	}
	if !rec.Expenses[0].Amount.Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("amount = %s, want 250.5", rec.Expenses[0].Amount)
	}
}

// Трата больше баланса не отклоняется: баланс уходит в минус,
// перерасход виден в статусе.
func TestExpenseMayGoNegative(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	seedConfigured(t, ledger, "100")

	handle(t, tracker, BtnExpense)
	reply := handle(t, tracker, "500 аренда")

	rec := stored(t, ledger)
	if !rec.Balance.Equal(decimal.RequireFromString("-400")) {
		t.Errorf("balance = %s, want -400", rec.Balance)
	}
	if !strings.Contains(reply.Text, "Перерасход") {
		t.Errorf("overspend not surfaced: %q", reply.Text)
	}
}

func TestExpenseInvalidAmount(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	seedConfigured(t, ledger, "1000")
	handle(t, tracker, BtnExpense)

	for _, bad := range []string{"обед 500", "-5 такси", "0 кофе", "много"} {
		reply := handle(t, tracker, bad)
		if !strings.Contains(reply.Text, "❌") {
			t.Errorf("input %q: no error marker: %q", bad, reply.Text)
		}
		if stored(t, ledger).State != model.WaitingExpense {
			t.Errorf("input %q: must stay in waiting_expense", bad)
		}
	}
	if len(stored(t, ledger).Expenses) != 0 {
		t.Error("invalid inputs must not append expenses")
	}
}

func TestMenuPreconditions(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)

	// Без баланса смена даты и запись трат недоступны, состояние — покой.
	for _, btn := range []string{BtnDate, BtnExpense} {
		reply := handle(t, tracker, btn)
		if !strings.Contains(reply.Text, "/start") {
			t.Errorf("%q: reply must point to /start: %q", btn, reply.Text)
		}
		if stored(t, ledger).State != model.Idle {
			t.Errorf("%q: state must be idle", btn)
		}
	}
}

func TestShowBudget(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)

	// Без данных — подсказка, состояние не трогаем, ничего не сохраняем.
	reply := handle(t, tracker, BtnBudget)
	if !strings.Contains(reply.Text, "нет данных") {
		t.Errorf("reply = %q", reply.Text)
	}
	if ledger.setCalls != 0 {
		t.Error("read-only operation must not write")
	}

	seedConfigured(t, ledger, "15000.5")
	reply = handle(t, tracker, BtnBudget)
	for _, want := range []string{"15000.50", "31.03.2025", "31 дн.", "483.89"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("budget reply misses %q: %q", want, reply.Text)
		}
	}
	if !reply.Markdown {
		t.Error("budget reply uses markdown emphasis")
	}
}

func TestShowBudgetExpired(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	seedConfigured(t, ledger, "1000")
	end, _ := model.ParseDate("28.02.2025")
	ledger.data[testUser].EndDate = &end

	reply := handle(t, tracker, BtnBudget)
	if !strings.Contains(reply.Text, "Период закончился") {
		t.Errorf("reply = %q", reply.Text)
	}
}

func TestShowHistory(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	seedConfigured(t, ledger, "1000")

	reply := handle(t, tracker, BtnHistory)
	if !strings.Contains(reply.Text, "Трат пока нет") {
		t.Errorf("reply = %q", reply.Text)
	}

	// 12 трат: в истории последние 10, самые свежие сверху.
	rec := ledger.data[testUser]
	for i := 0; i < 12; i++ {
		day := model.NewDate(time.Date(2025, 2, 18+i, 0, 0, 0, 0, time.Local))
		rec.Expenses = append(rec.Expenses, model.Expense{
			ID:          "e",
			Date:        day,
			Amount:      decimal.NewFromInt(int64(i + 1)),
			Description: "т",
		})
	}

	reply = handle(t, tracker, BtnHistory)
	lines := strings.Split(reply.Text, "\n")
	var bullets []string
	for _, line := range lines {
		if strings.HasPrefix(line, "•") {
			bullets = append(bullets, line)
		}
	}
	if len(bullets) != 10 {
		t.Fatalf("history shows %d lines, want 10", len(bullets))
	}
	if !strings.Contains(bullets[0], "12.00") {
		t.Errorf("first line must be the newest expense: %q", bullets[0])
	}
	if !strings.Contains(bullets[9], "3.00") {
		t.Errorf("last line must be the 3rd expense: %q", bullets[9])
	}
	if !strings.Contains(reply.Text, "Сегодня") || !strings.Contains(reply.Text, "За 7 дней") {
		t.Errorf("totals missing: %q", reply.Text)
	}
	if len(reply.Chart) == 0 {
		t.Error("history with spending must attach a chart")
	}
}

func TestReminderSetAndDisable(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)

	handle(t, tracker, BtnReminder)
	if stored(t, ledger).State != model.WaitingReminder {
		t.Fatal("menu must switch to waiting_reminder")
	}

	reply := handle(t, tracker, "9:41")
	if !strings.Contains(reply.Text, "❌") {
		t.Errorf("short form must be rejected: %q", reply.Text)
	}
	if stored(t, ledger).State != model.WaitingReminder {
		t.Fatal("must stay in waiting_reminder after bad time")
	}

	handle(t, tracker, "09:00")
	rec := stored(t, ledger)
	if rec.ReminderTime != "09:00" || rec.State != model.Idle {
		t.Fatalf("reminder = %q, state = %s", rec.ReminderTime, rec.State)
	}

	handle(t, tracker, BtnReminder)
	handle(t, tracker, "выкл")
	rec = stored(t, ledger)
	if rec.ReminderTime != "" || rec.State != model.Idle {
		t.Fatalf("reminder = %q after disable, state = %s", rec.ReminderTime, rec.State)
	}
}

func TestIdleFallback(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	seedConfigured(t, ledger, "1000")

	reply := handle(t, tracker, "привет")
	if !strings.Contains(reply.Text, "меню") {
		t.Errorf("reply = %q", reply.Text)
	}
	if reply.Menu == nil {
		t.Error("fallback must show the menu")
	}
	if ledger.setCalls != 0 {
		t.Error("fallback must not write")
	}
}

func TestStartResetsRecord(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	seedConfigured(t, ledger, "1000")
	ledger.data[testUser].ReminderTime = "09:00"

	handle(t, tracker, "/start")
	rec := stored(t, ledger)
	if rec.HasBalance || rec.EndDate != nil || rec.ReminderTime != "" {
		t.Errorf("record not reset: %+v", rec)
	}
	if rec.State != model.WaitingBalance {
		t.Errorf("state = %s, want waiting_balance", rec.State)
	}
}

func TestCancelReturnsToIdle(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	handle(t, tracker, "/start")

	reply := handle(t, tracker, "/cancel")
	if !strings.Contains(reply.Text, "Отменено") {
		t.Errorf("reply = %q", reply.Text)
	}
	if stored(t, ledger).State != model.Idle {
		t.Error("cancel must return to idle")
	}
}

// Первая ошибка записи гасится повтором; двойной отказ отдает
// пользователю просьбу повторить и ошибку вызывающему для лога.
func TestStoreRetry(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)

	ledger.failSets = 1
	reply := handle(t, tracker, "/start")
	if strings.Contains(reply.Text, "⚠️") {
		t.Errorf("single failure must be retried silently: %q", reply.Text)
	}
	if stored(t, ledger).State != model.WaitingBalance {
		t.Error("record must be persisted by the retry")
	}

	ledger.failSets = 2
	reply, err := tracker.HandleMessage(context.Background(), testUser, "/cancel")
	if err == nil {
		t.Error("double failure must surface an error")
	}
	if reply == nil || !strings.Contains(reply.Text, "Попробуй ещё раз") {
		t.Errorf("reply = %+v", reply)
	}
}

// Разные пользователи обрабатываются параллельно, одна запись — строго
// последовательно: при конкурентных тратах не теряется ни одно обновление.
func TestConcurrentExpensesNotLost(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)
	seedConfigured(t, ledger, "10000")
	ledger.data[testUser].State = model.WaitingExpense

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Каждое сообщение возвращает запись в покой, поэтому
			// сначала кнопка, затем сумма.
			if _, err := tracker.HandleMessage(context.Background(), testUser, BtnExpense); err != nil {
				t.Errorf("menu: %v", err)
			}
			if _, err := tracker.HandleMessage(context.Background(), testUser, "10"); err != nil {
				t.Errorf("expense: %v", err)
			}
		}()
	}
	wg.Wait()

	// Кнопка и сумма разных горутин могут перемешаться, поэтому часть сумм
	// падает в покое на подсказку меню. Инвариант в другом: каждая записанная
	// трата ровно один раз отражена в балансе, потерянных обновлений нет.
	rec := stored(t, ledger)
	recorded := len(rec.Expenses)
	if recorded == 0 {
		t.Fatal("no expenses recorded")
	}
	want := decimal.RequireFromString("10000").Sub(decimal.NewFromInt(10 * int64(recorded)))
	if !rec.Balance.Equal(want) {
		t.Errorf("balance = %s, want %s for %d expenses", rec.Balance, want, recorded)
	}
}
