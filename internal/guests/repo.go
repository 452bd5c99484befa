package guests

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brickapparel/storefront-backend/pkg/db/models"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
)

// Input is the contact data captured at guest checkout.
type Input struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// Repository resolves checkout identities that have no customer account.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// NormalizeEmail is the lookup key for guests.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindOrCreate is idempotent on the lowercased email. Concurrent callers race
// on the unique index; the loser re-reads the winner's row.
func (r *Repository) FindOrCreate(ctx context.Context, input Input) (*models.Guest, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}

	guest := models.Guest{
		Email:     email,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Phone:     strings.TrimSpace(input.Phone),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&guest).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create guest")
	}

	var stored models.Guest
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&stored).Error; err != nil {
		return nil, pkgerrors.Wrapf(pkgerrors.CodeDependency, err, "load guest %s", email)
	}
	return &stored, nil
}
