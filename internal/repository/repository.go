package repository

import (
	"context"

	"github.com/ivanoskov/budget_bot/internal/model"
)

// Ledger — контракт хранилища: одна запись на идентификатор пользователя.
// Get возвращает (nil, nil), если записи еще нет. Транзакций нет — вызывающий
// читает, меняет и записывает запись целиком, сериализуя доступ по пользователю.
type Ledger interface {
	Get(ctx context.Context, userID int64) (*model.UserRecord, error)
	Set(ctx context.Context, userID int64, rec *model.UserRecord) error
	// All нужен планировщику напоминаний для обхода всех пользователей.
	All(ctx context.Context) (map[int64]*model.UserRecord, error)
}
