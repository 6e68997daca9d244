// Package bot — телеграм-адаптер: превращает апдейты в (userID, текст)
// для ядра и model.Reply обратно в сообщения. Логики бюджета здесь нет.
package bot

import (
	"context"
	"encoding/json"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ivanoskov/budget_bot/internal/model"
	"github.com/ivanoskov/budget_bot/internal/service"
)

type Bot struct {
	api     *tgbotapi.BotAPI
	service *service.BudgetTracker
}

func NewBot(token string, service *service.BudgetTracker) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	return &Bot{
		api:     api,
		service: service,
	}, nil
}

// Start запускает бота в режиме long polling. Останавливается при отмене
// контекста: перестает принимать апдейты, обработка текущего доводится до конца.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if err := b.handleUpdate(ctx, update); err != nil {
			// Логируем ошибку, но продолжаем работу
			log.Printf("Error handling update: %v", err)
		}
	}

	return nil
}

// HandleWebhook - точка входа для обработки входящих webhook-обновлений
func (b *Bot) HandleWebhook(body []byte) error {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return err
	}

	return b.handleUpdate(context.Background(), update)
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return nil
	}
	message := update.Message

	reply, err := b.service.HandleMessage(ctx, message.From.ID, message.Text)
	if err != nil {
		log.Printf("Core error for user %d: %v", message.From.ID, err)
	}
	if reply == nil {
		return err
	}
	return b.send(message.Chat.ID, reply)
}

func (b *Bot) send(chatID int64, reply *model.Reply) error {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if reply.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	if reply.Menu != nil {
		msg.ReplyMarkup = replyKeyboard(reply.Menu)
	}
	if _, err := b.api.Send(msg); err != nil {
		return err
	}

	if len(reply.Chart) > 0 {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "history.png", Bytes: reply.Chart})
		if _, err := b.api.Send(photo); err != nil {
			return err
		}
	}
	return nil
}

// Deliver реализует доставку для планировщика напоминаний.
// В личном чате идентификатор чата совпадает с идентификатором пользователя.
func (b *Bot) Deliver(userID int64, text string, menu model.Menu) error {
	return b.send(userID, &model.Reply{Text: text, Menu: menu, Markdown: true})
}
