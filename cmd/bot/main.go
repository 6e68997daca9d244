package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ivanoskov/budget_bot/internal/bot"
	"github.com/ivanoskov/budget_bot/internal/config"
	"github.com/ivanoskov/budget_bot/internal/repository"
	"github.com/ivanoskov/budget_bot/internal/scheduler"
	"github.com/ivanoskov/budget_bot/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	var ledger service.Ledger
	if cfg.UseSupabase() {
		ledger, err = repository.NewSupabaseLedger(cfg.SupabaseURL, cfg.SupabaseKey)
	} else {
		ledger, err = repository.NewFileLedger(cfg.DataFile)
	}
	if err != nil {
		log.Fatal(err)
	}

	tracker := service.NewBudgetTracker(ledger)

	b, err := bot.NewBot(cfg.TelegramToken, tracker)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go scheduler.New(tracker, b, cfg.ReminderTick, nil).Run(ctx)

	log.Println("Бот запущен!")
	if err := b.Start(ctx); err != nil {
		log.Fatal(err)
	}
}
