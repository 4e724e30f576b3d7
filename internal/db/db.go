package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"party-avatar/internal/config"
	"party-avatar/internal/models"
)

// AnswerRecord is one answered (or failed) question.
type AnswerRecord struct {
	bun.BaseModel `bun:"table:answers,alias:a"`
	ID            string           `bun:"id,pk,type:uuid"`
	Question      string           `bun:"question,notnull"`
	ContextChars  int              `bun:"context_chars,notnull"`
	Provider      string           `bun:"provider"`
	Model         string           `bun:"model"`
	Messages      []models.Message `bun:"messages,type:jsonb"`
	Error         string           `bun:"error"`
	CreatedAt     time.Time        `bun:"created_at,notnull,default:current_timestamp"`
}

func NewRecord(entry models.AnswerLog) *AnswerRecord {
	return &AnswerRecord{
		ID:           entry.ID,
		Question:     entry.Question,
		ContextChars: entry.ContextChars,
		Provider:     entry.Provider,
		Model:        entry.Model,
		Messages:     entry.Messages,
		Error:        entry.Error,
		CreatedAt:    time.Now().UTC(),
	}
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database named by cfg.URL with the configured driver.
// Nothing is dialed until the first query.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url is empty")
	}
	switch cfg.Driver {
	case config.DriverPQ:
		return sql.Open("postgres", cfg.URL)
	case config.DriverPgdriver, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.URL))), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*AnswerRecord)(nil)).IfNotExists().Exec(ctx)
	return err
}

// AnswerStore records answers to the answers table.
type AnswerStore struct {
	db *bun.DB
}

func NewAnswerStore(db *bun.DB) *AnswerStore {
	return &AnswerStore{db: db}
}

func (s *AnswerStore) Record(ctx context.Context, entry models.AnswerLog) error {
	_, err := s.db.NewInsert().Model(NewRecord(entry)).Exec(ctx)
	return err
}

// Recent returns the latest answers, newest first.
func (s *AnswerStore) Recent(ctx context.Context, limit int) ([]AnswerRecord, error) {
	var records []AnswerRecord
	err := s.db.NewSelect().
		Model(&records).
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx)
	return records, err
}
