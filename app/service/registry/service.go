package registry

import (
	"context"
	"errors"
	"log/slog"
	"receiptagent/app/config"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/samber/oops"
)

var _ do.Shutdownable = (*Service)(nil)

var (
	ErrAccessDenied     = errors.New("access denied: this spreadsheet is not registered to your account")
	ErrAccountNotLinked = errors.New("google account not linked or token is missing")
)

type Service struct {
	store  Store
	sealer *Sealer
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	sealer, err := NewSealer(cfg.Store.TokenKey)
	if err != nil {
		return nil, oops.In("registry").Wrapf(err, "failed to create sealer")
	}

	var store Store
	switch cfg.Store.Driver {
	case "redis":
		store = NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}), cfg.Store.Redis.Prefix)
	default:
		store, err = NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, oops.In("registry").Wrapf(err, "failed to open file store")
		}
	}

	slog.Info("Registry store ready", "driver", cfg.Store.Driver)

	return NewService(store, sealer), nil
}

func NewService(store Store, sealer *Sealer) *Service {
	return &Service{
		store:  store,
		sealer: sealer,
	}
}

func (s *Service) Register(ctx context.Context, userID, spreadsheetID, name string) (*Spreadsheet, error) {
	return s.store.UpsertSpreadsheet(ctx, &Spreadsheet{
		UserID:        userID,
		SpreadsheetID: spreadsheetID,
		Name:          name,
		CreatedAt:     time.Now().UTC(),
	})
}

// Spreadsheet returns the registration of spreadsheetID owned by userID or ErrNotFound.
func (s *Service) Spreadsheet(ctx context.Context, userID, spreadsheetID string) (*Spreadsheet, error) {
	return s.store.FindSpreadsheet(ctx, userID, spreadsheetID)
}

func (s *Service) List(ctx context.Context, userID string) ([]*Spreadsheet, error) {
	return s.store.ListSpreadsheets(ctx, userID)
}

func (s *Service) UpdateSchemaSummary(ctx context.Context, spreadsheetID, summary string) error {
	return s.store.UpdateSchemaSummary(ctx, spreadsheetID, summary)
}

func (s *Service) SetRefreshToken(ctx context.Context, userID, refreshToken string) error {
	sealed, err := s.sealer.Seal(refreshToken)
	if err != nil {
		return err
	}

	return s.store.PutUser(ctx, &User{
		ID:                 userID,
		SealedRefreshToken: sealed,
	})
}

// RefreshToken returns the plain refresh token of the user, empty when the
// account was never linked.
func (s *Service) RefreshToken(ctx context.Context, userID string) (string, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	if user.SealedRefreshToken == "" {
		return "", nil
	}

	return s.sealer.Open(user.SealedRefreshToken)
}

// Access checks that userID registered spreadsheetID and has a linked Google
// account, in that order.
func (s *Service) Access(ctx context.Context, userID, spreadsheetID string) (*Spreadsheet, string, error) {
	sheet, err := s.store.FindSpreadsheet(ctx, userID, spreadsheetID)
	if errors.Is(err, ErrNotFound) {
		return nil, "", ErrAccessDenied
	}
	if err != nil {
		return nil, "", err
	}

	token, err := s.RefreshToken(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if token == "" {
		return nil, "", ErrAccountNotLinked
	}

	return sheet, token, nil
}

func (s *Service) Shutdown() error {
	return s.store.Close()
}
