package model

// Menu — описание клавиатуры быстрых ответов: ряды подписанных кнопок.
// Ядро не знает про конкретный транспорт, преобразование в разметку
// мессенджера делает адаптер.
type Menu [][]string

// Reply — исходящий ответ ядра: текст, опциональное меню и опциональная
// картинка (PNG). Markdown означает, что текст содержит простую разметку,
// которую транспорт передает как есть.
type Reply struct {
	Text     string
	Menu     Menu
	Markdown bool
	Chart    []byte
}
