package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/ivanoskov/budget_bot/internal/model"
)

// SupabaseLedger хранит записи в таблице records: одна строка на пользователя,
// сама запись лежит в jsonb-колонке. Set делает upsert по user_id.
type SupabaseLedger struct {
	client *supabase.Client
}

type recordRow struct {
	UserID    int64             `json:"user_id"`
	Record    *model.UserRecord `json:"record"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewSupabaseLedger(url, key string) (*SupabaseLedger, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, err
	}

	return &SupabaseLedger{
		client: client,
	}, nil
}

func (r *SupabaseLedger) Get(ctx context.Context, userID int64) (*model.UserRecord, error) {
	data, count, err := r.client.From("records").
		Select("*", "", false).
		Eq("user_id", strconv.FormatInt(userID, 10)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	_ = count

	var rows []recordRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[0].Record
	rec.UserID = userID
	return rec, nil
}

func (r *SupabaseLedger) Set(ctx context.Context, userID int64, rec *model.UserRecord) error {
	row := recordRow{
		UserID:    userID,
		Record:    rec,
		UpdatedAt: time.Now(),
	}
	_, count, err := r.client.From("records").Insert(row, true, "", "", "").Execute()
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	_ = count
	return nil
}

func (r *SupabaseLedger) All(ctx context.Context) (map[int64]*model.UserRecord, error) {
	data, count, err := r.client.From("records").
		Select("*", "", false).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	_ = count

	var rows []recordRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}

	out := make(map[int64]*model.UserRecord, len(rows))
	for _, row := range rows {
		rec := row.Record
		rec.UserID = row.UserID
		out[row.UserID] = rec
	}
	return out, nil
}
