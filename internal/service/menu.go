package service

import "github.com/ivanoskov/budget_bot/internal/model"

// Кнопки главного меню. Текст кнопки приходит обратно обычным сообщением,
// поэтому маршрутизация идет по точному совпадению подписи.
const (
	BtnBudget   = "📊 Мой бюджет"
	BtnExpense  = "💸 Записать трату"
	BtnHistory  = "📜 История"
	BtnBalance  = "✏️ Обновить баланс"
	BtnDate     = "📅 Изменить дату"
	BtnReminder = "⏰ Напоминание"
)

// DisableWord выключает напоминание на шаге ввода времени.
const DisableWord = "выкл"

// MainMenu — раскладка основной клавиатуры.
func MainMenu() model.Menu {
	return model.Menu{
		{BtnBudget},
		{BtnExpense, BtnHistory},
		{BtnBalance, BtnDate},
		{BtnReminder},
	}
}
