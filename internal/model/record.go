package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State — шаг диалога с пользователем. Закрытое перечисление: запись
// переводится из состояния в состояние только конечным автоматом диалога.
type State int

const (
	Idle State = iota
	WaitingBalance
	WaitingDate
	WaitingExpense
	WaitingReminder
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingBalance:
		return "waiting_balance"
	case WaitingDate:
		return "waiting_date"
	case WaitingExpense:
		return "waiting_expense"
	case WaitingReminder:
		return "waiting_reminder"
	default:
		return "unknown"
	}
}

// Expense — одна записанная трата. Записи только добавляются,
// редактирования и удаления нет.
type Expense struct {
	ID          string          `json:"id"`
	Date        Date            `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// GenerateID генерирует новый UUID для траты, если он еще не установлен
func (e *Expense) GenerateID() {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
}

// UserRecord — все данные одного пользователя. Баланс и дата появляются
// по мере прохождения шагов, признак наличия хранится явно, а не через
// отсутствие ключа.
type UserRecord struct {
	UserID       int64           `json:"user_id"`
	State        State           `json:"state"`
	Balance      decimal.Decimal `json:"balance"`
	HasBalance   bool            `json:"has_balance"`
	EndDate      *Date           `json:"end_date,omitempty"`
	SetDate      *Date           `json:"set_date,omitempty"`
	Expenses     []Expense       `json:"expenses,omitempty"`
	ReminderTime string          `json:"reminder_time,omitempty"` // "ЧЧ:ММ", пусто — напоминание выключено
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewUserRecord создает пустую запись в начальном состоянии.
func NewUserRecord(userID int64) *UserRecord {
	return &UserRecord{
		UserID:  userID,
		State:   Idle,
		Balance: decimal.Zero,
	}
}

// Configured сообщает, задан ли бюджет целиком (баланс и дата).
func (r *UserRecord) Configured() bool {
	return r.HasBalance && r.EndDate != nil
}

// Clone возвращает глубокую копию записи, чтобы хранилище и вызывающие
// не делили один срез трат.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.EndDate != nil {
		d := *r.EndDate
		cp.EndDate = &d
	}
	if r.SetDate != nil {
		d := *r.SetDate
		cp.SetDate = &d
	}
	if r.Expenses != nil {
		cp.Expenses = make([]Expense, len(r.Expenses))
		copy(cp.Expenses, r.Expenses)
	}
	return &cp
}
