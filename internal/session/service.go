package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/park285/codenames-server/internal/apperr"
	"github.com/park285/codenames-server/internal/cardcorpus"
	"github.com/park285/codenames-server/internal/domain"
	"github.com/park285/codenames-server/internal/identity"
	"github.com/park285/codenames-server/internal/notify"
	"github.com/park285/codenames-server/internal/store"
	"github.com/park285/codenames-server/internal/voting"
	"github.com/park285/codenames-server/pkg/sessiondto"
)

// BoardGenerator draws the cards and the color key of a new session.
type BoardGenerator interface {
	Generate(ctx context.Context, lang string) ([]string, []domain.CardColor, error)
}

// TurnTimer arms and disarms per-session turn timers.
type TurnTimer interface {
	Schedule(sessionID string, seq int64, after time.Duration)
	Cancel(sessionID string) bool
}

// Archiver persists results of finished sessions.
type Archiver interface {
	SaveResult(ctx context.Context, s *domain.Session) error
}

type Config struct {
	DefaultTiming domain.Timing
	// Languages lists accepted board languages; empty accepts any the corpus has.
	Languages     []string
	BcryptCost    int
	NotifyTimeout time.Duration
	// FinishedGrace is how long a finished session stays readable before the sweep removes it.
	FinishedGrace time.Duration
	// IdleTTL removes Created sessions that never got a player.
	IdleTTL time.Duration
}

type Deps struct {
	Store    store.Store
	Boards   BoardGenerator
	Identity identity.Provider
	Notifier notify.Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service is the only writer of session aggregates.
type Service struct {
	store    store.Store
	boards   BoardGenerator
	identity identity.Provider
	notifier notify.Notifier
	timer    TurnTimer
	archive  Archiver

	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

type nopTimer struct{}

func (nopTimer) Schedule(string, int64, time.Duration) {}
func (nopTimer) Cancel(string) bool                    { return false }

func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if deps.Boards == nil {
		return nil, errors.New("session: board generator is required")
	}
	if deps.Identity == nil {
		deps.Identity = identity.NewDirectory()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.DefaultTiming.HintDuration <= 0 {
		cfg.DefaultTiming.HintDuration = 60 * time.Second
	}
	if cfg.DefaultTiming.GuessDuration <= 0 {
		cfg.DefaultTiming.GuessDuration = 90 * time.Second
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	if cfg.FinishedGrace <= 0 {
		cfg.FinishedGrace = 10 * time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	langs := make([]string, 0, len(cfg.Languages))
	for _, l := range cfg.Languages {
		if n := cardcorpus.NormalizeLanguage(l); n != "" {
			langs = append(langs, n)
		}
	}
	cfg.Languages = langs
	return &Service{
		store:    deps.Store,
		boards:   deps.Boards,
		identity: deps.Identity,
		notifier: deps.Notifier,
		timer:    nopTimer{},
		cfg:      cfg,
		logger:   deps.Logger,
		now:      deps.Now,
	}, nil
}

// AttachTimer wires the turn scheduler after construction; the scheduler in turn calls OnTurnTimer.
func (s *Service) AttachTimer(t TurnTimer) {
	if t != nil {
		s.timer = t
	}
}

// AttachArchive enables result archiving for finished sessions.
func (s *Service) AttachArchive(a Archiver) { s.archive = a }

type CreateParams struct {
	Name       string
	MaxPlayers int
	Password   string
	Language   string
	Timing     domain.Timing
}

func (s *Service) CreateSession(ctx context.Context, p CreateParams) (string, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return "", ErrInvalidName
	}
	if p.MaxPlayers < 1 || p.MaxPlayers > maxPlayersLimit {
		return "", ErrInvalidMaxPlayers
	}
	timing, err := s.resolveTiming(p.Timing)
	if err != nil {
		return "", err
	}
	lang := cardcorpus.NormalizeLanguage(p.Language)
	if lang == "" {
		lang = "en"
	}
	if !s.languageEnabled(lang) {
		return "", ErrInvalidLanguage
	}

	cards, colors, err := s.boards.Generate(ctx, lang)
	if err != nil {
		return "", err
	}

	var hash string
	if p.Password != "" {
		raw, err := bcrypt.GenerateFromPassword([]byte(p.Password), s.cfg.BcryptCost)
		if err != nil {
			return "", apperr.Wrap(apperr.InvalidArgument, "password cannot be hashed", err)
		}
		hash = string(raw)
	}

	now := s.now()
	sess := &domain.Session{
		ID:           uuid.NewString(),
		Name:         name,
		MaxPlayers:   p.MaxPlayers,
		PasswordHash: hash,
		Language:     lang,
		Status:       domain.StatusCreated,
		Timing:       timing,
		Game: domain.GameState{
			Cards:    cards,
			Colors:   colors,
			Revealed: []int{},
			HintTurn: true,
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		LastUpdated: 1,
	}
	for i := range sess.Teams {
		sess.Teams[i] = domain.Team{Players: []domain.Player{}, Votes: []int{}}
	}
	sess.Game.ResetCardVotes()

	if err := s.store.Put(ctx, sess); err != nil {
		return "", err
	}
	s.logger.Info("session_created",
		zap.String("session_id", sess.ID),
		zap.String("language", lang),
		zap.Int("max_players", sess.MaxPlayers),
		zap.Bool("password", hash != ""))
	s.publish(ctx, sess)
	return sess.ID, nil
}

func (s *Service) resolveTiming(t domain.Timing) (domain.Timing, error) {
	if t.HintDuration < 0 || t.GuessDuration < 0 || t.MaxRounds < 0 {
		return domain.Timing{}, ErrInvalidTiming
	}
	if t.HintDuration == 0 {
		t.HintDuration = s.cfg.DefaultTiming.HintDuration
	}
	if t.GuessDuration == 0 {
		t.GuessDuration = s.cfg.DefaultTiming.GuessDuration
	}
	if t.MaxRounds == 0 {
		t.MaxRounds = s.cfg.DefaultTiming.MaxRounds
	}
	return t, nil
}

func (s *Service) languageEnabled(lang string) bool {
	if len(s.cfg.Languages) == 0 {
		return true
	}
	for _, l := range s.cfg.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

func (s *Service) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	return s.store.List(ctx)
}

// DeleteSession disarms the timer and removes the session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	ok, err := s.store.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	s.timer.Cancel(id)
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("session_deleted", zap.String("session_id", id))
	return nil
}

// AuthenticatePassword compares candidate with the stored bcrypt hash.
// Sessions without a password accept anything.
func (s *Service) AuthenticatePassword(ctx context.Context, id, candidate string) (bool, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if sess.PasswordHash == "" {
		return true, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(sess.PasswordHash), []byte(candidate)) == nil, nil
}

func (s *Service) GetVotes(ctx context.Context, id string) (voting.Tally, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return voting.Tally{}, err
	}
	return voting.TallyOf(sess), nil
}

// publish pushes the committed state. Failures are logged; the commit stands.
func (s *Service) publish(ctx context.Context, sess *domain.Session) {
	if sess == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()
	if err := s.notifier.Push(pctx, sess.ID, sessiondto.FromSession(sess, sessiondto.LeaderView)); err != nil {
		s.logger.Warn("notify_push_error",
			zap.String("session_id", sess.ID),
			zap.Int64("version", sess.LastUpdated),
			zap.Error(err))
	}
}

// afterFinish runs the post-commit side effects of a game ending.
func (s *Service) afterFinish(ctx context.Context, sess *domain.Session) {
	s.timer.Cancel(sess.ID)
	fields := []zap.Field{zap.String("session_id", sess.ID)}
	if o := sess.Game.Outcome; o != nil {
		fields = append(fields, zap.Int("winner", o.Winner), zap.String("reason", o.Reason))
	}
	s.logger.Info("game_finished", fields...)
	if s.archive == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.archive.SaveResult(actx, sess); err != nil {
		s.logger.Warn("archive_save_error", zap.String("session_id", sess.ID), zap.Error(err))
	}
}
