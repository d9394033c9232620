package authflow

import (
	"context"
	"database/sql"
	"errors"
	"log"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Profiles() Profiles
}

type mngr struct {
	db       *bun.DB
	profiles Profiles
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:       db,
		profiles: NewProfilesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

// BunProfileStore adapts the Profiles repository to the ProfileStore
// boundary the resolver consumes.
type BunProfileStore struct {
	profiles Profiles
}

var _ ProfileStore = (*BunProfileStore)(nil)

// NewBunProfileStore wraps a Profiles repository as a ProfileStore.
func NewBunProfileStore(profiles Profiles) *BunProfileStore {
	return &BunProfileStore{profiles: profiles}
}

func (s *BunProfileStore) SelectProfileByID(ctx context.Context, id string) (*Profile, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, normalizeNotFound(err, map[string]any{"id": id})
	}
	return profile, nil
}

func (s *BunProfileStore) SelectProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	profile, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		return nil, normalizeNotFound(err, map[string]any{"email": email})
	}
	return profile, nil
}

func (s *BunProfileStore) InsertProfile(ctx context.Context, profile *Profile) error {
	_, err := s.profiles.Create(ctx, profile)
	return err
}

// normalizeNotFound maps the repository's record-not-found into the
// goerrors.IsNotFound shape the ProfileStore contract promises.
func normalizeNotFound(err error, meta map[string]any) error {
	if repository.IsRecordNotFound(err) {
		notFound := goerrors.New("profile not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithMetadata(meta)
		notFound.Source = err
		return notFound
	}
	return err
}
