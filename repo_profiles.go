package authflow

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles is the bun-backed repository for Profile rows.
type Profiles interface {
	repository.Repository[*Profile]

	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Profile, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Profile, error)
	Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			if id, err := uuid.Parse(p.ID); err == nil {
				return id
			}
			return uuid.Nil
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil && p.ID == "" {
				p.ID = id.String()
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (p *profiles) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Profile, error) {
	return p.GetByIDTx(ctx, p.db, id, criteria...)
}

func (p *profiles) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*Profile, error) {
	record := &Profile{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id})
		}
		return nil, err
	}

	return record, nil
}

func (p *profiles) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	return p.GetByEmailTx(ctx, p.db, email)
}

// GetByEmailTx looks profiles up case-insensitively. Zero matches and
// ambiguous matches both report not-found: email uniqueness is a
// precondition supplied by the backing store, and we never hand back more
// than one record.
func (p *profiles) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Profile, error) {
	var records []*Profile
	err := tx.NewSelect().
		Model(&records).
		Where("lower(?TableAlias.email) = lower(?)", email).
		Limit(2).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	if len(records) != 1 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"email":   email,
				"matches": len(records),
			})
	}

	return records[0], nil
}

func (p *profiles) Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	return p.CreateTx(ctx, p.db, record, criteria...)
}

func (p *profiles) CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	return p.Repository.CreateTx(ctx, tx, record, criteria...)
}
