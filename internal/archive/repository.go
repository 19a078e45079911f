package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/codenames-server/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS codenames_results (
    session_id     TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    language       TEXT NOT NULL,
    winner         INTEGER NOT NULL,
    reason         TEXT NOT NULL,
    team0_score    INTEGER NOT NULL,
    team1_score    INTEGER NOT NULL,
    team0_players  JSONB NOT NULL,
    team1_players  JSONB NOT NULL,
    revealed       JSONB NOT NULL,
    turns          BIGINT NOT NULL,
    started_at     TIMESTAMPTZ NOT NULL,
    ended_at       TIMESTAMPTZ NOT NULL,
    duration_ms    BIGINT NOT NULL
)`

// Repository stores final results of finished sessions in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record is the archived shape of a finished session.
type Record struct {
	SessionID    string
	Name         string
	Language     string
	Winner       int
	Reason       string
	Team0Score   int
	Team1Score   int
	Team0Players string
	Team1Players string
	Revealed     string
	Turns        int64
	StartedAt    time.Time
	EndedAt      time.Time
	DurationMS   int64
}

func buildRecord(s *domain.Session) (Record, error) {
	rec := Record{
		SessionID:  s.ID,
		Name:       s.Name,
		Language:   s.Language,
		Winner:     domain.NoWinner,
		Reason:     domain.ReasonAborted,
		Team0Score: s.Game.Team0Score,
		Team1Score: s.Game.Team1Score,
		Turns:      s.Game.TurnSeq,
		StartedAt:  s.CreatedAt,
		EndedAt:    s.UpdatedAt,
	}
	if o := s.Game.Outcome; o != nil {
		rec.Winner, rec.Reason = o.Winner, o.Reason
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now()
	}
	if d := rec.EndedAt.Sub(rec.StartedAt).Milliseconds(); d > 0 {
		rec.DurationMS = d
	}
	for i, dst := range []*string{&rec.Team0Players, &rec.Team1Players} {
		ids := make([]string, 0, len(s.Teams[i].Players))
		for _, p := range s.Teams[i].Players {
			ids = append(ids, p.ID)
		}
		raw, err := json.Marshal(ids)
		if err != nil {
			return Record{}, err
		}
		*dst = string(raw)
	}
	revealed := s.Game.Revealed
	if revealed == nil {
		revealed = []int{}
	}
	raw, err := json.Marshal(revealed)
	if err != nil {
		return Record{}, err
	}
	rec.Revealed = string(raw)
	return rec, nil
}

// SaveResult upserts the final result of a session.
func (r *Repository) SaveResult(ctx context.Context, s *domain.Session) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}
	rec, err := buildRecord(s)
	if err != nil {
		return fmt.Errorf("build record: %w", err)
	}

	q := `INSERT INTO codenames_results (
        session_id, name, language, winner, reason,
        team0_score, team1_score, team0_players, team1_players, revealed,
        turns, started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
      ) ON CONFLICT (session_id) DO UPDATE SET
        name=EXCLUDED.name,
        language=EXCLUDED.language,
        winner=EXCLUDED.winner,
        reason=EXCLUDED.reason,
        team0_score=EXCLUDED.team0_score,
        team1_score=EXCLUDED.team1_score,
        team0_players=EXCLUDED.team0_players,
        team1_players=EXCLUDED.team1_players,
        revealed=EXCLUDED.revealed,
        turns=EXCLUDED.turns,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		rec.SessionID, rec.Name, rec.Language, rec.Winner, rec.Reason,
		rec.Team0Score, rec.Team1Score, rec.Team0Players, rec.Team1Players, rec.Revealed,
		rec.Turns, rec.StartedAt, rec.EndedAt, rec.DurationMS,
	)
	return err
}
