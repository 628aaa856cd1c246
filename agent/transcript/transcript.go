// Package transcript persists processed turns to Postgres for audit and
// offline analysis. The engine treats writes as best effort.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

type Config struct {
	DSN string `envconfig:"DSN"`
}

type turnRow struct {
	bun.BaseModel `bun:"table:turn_transcripts"`

	TurnID         string    `bun:"turn_id,pk"`
	ConversationID string    `bun:"conversation_id,notnull"`
	FlowID         string    `bun:"flow_id,notnull"`
	StepID         string    `bun:"step_id"`
	Utterance      string    `bun:"utterance"`
	Reply          string    `bun:"reply"`
	Status         string    `bun:"status,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

// Store implements contract.TranscriptStore on Postgres via bun.
type Store struct {
	db *bun.DB
}

func New(cfg Config) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("transcript DSN is required")
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &Store{db: db}, nil
}

// EnsureSchema creates the transcript table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*turnRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *Store) SaveTurn(ctx context.Context, rec contractx.TurnRecord) error {
	row := &turnRow{
		TurnID:         rec.TurnID,
		ConversationID: rec.ConversationID,
		FlowID:         rec.FlowID,
		StepID:         rec.StepID,
		Utterance:      rec.Utterance,
		Reply:          rec.Reply,
		Status:         string(rec.Status),
		CreatedAt:      rec.CreatedAt,
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

// Recent returns the newest turns for one conversation, newest first.
func (s *Store) Recent(ctx context.Context, conversationID string, limit int) ([]contractx.TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []turnRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("conversation_id = ?", conversationID).
		OrderExpr("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]contractx.TurnRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, contractx.TurnRecord{
			TurnID:         r.TurnID,
			ConversationID: r.ConversationID,
			FlowID:         r.FlowID,
			StepID:         r.StepID,
			Utterance:      r.Utterance,
			Reply:          r.Reply,
			Status:         contractx.Status(r.Status),
			CreatedAt:      r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
