package main

import (
	"context"

	"github.com/ivanoskov/budget_bot/internal/bot"
	"github.com/ivanoskov/budget_bot/internal/config"
	"github.com/ivanoskov/budget_bot/internal/repository"
	"github.com/ivanoskov/budget_bot/internal/service"
)

// Request структура входящего запроса от API Gateway
type Request struct {
	Body string `json:"body"`
}

// Response структура ответа для API Gateway
type Response struct {
	StatusCode int               `json:"statusCode"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Handler обрабатывает webhook-обновление. Планировщик напоминаний здесь
// не запускается: он живет только в долгоживущем процессе cmd/bot.
func Handler(ctx context.Context, request Request) (*Response, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return errorResponse(err)
	}

	// В функции хранилище всегда облачное: локального файла между вызовами нет.
	ledger, err := repository.NewSupabaseLedger(cfg.SupabaseURL, cfg.SupabaseKey)
	if err != nil {
		return errorResponse(err)
	}

	tracker := service.NewBudgetTracker(ledger)

	b, err := bot.NewBot(cfg.TelegramToken, tracker)
	if err != nil {
		return errorResponse(err)
	}

	if err := b.HandleWebhook([]byte(request.Body)); err != nil {
		return errorResponse(err)
	}

	return &Response{
		StatusCode: 200,
		Body:       "",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}, nil
}

func errorResponse(err error) (*Response, error) {
	return &Response{
		StatusCode: 500,
		Body:       err.Error(),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}, nil
}

func main() {
	// Точка входа для локального тестирования
}
