package repositories

import (
	"context"
	"errors"

	"github.com/upb/coffee-shop/models"
)

var (
	// ErrNotFound is returned when no row matches the requested ID
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateTitle is returned when a drink title is already taken
	ErrDuplicateTitle = errors.New("drink title already exists")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// DrinkRepository handles drink data operations
type DrinkRepository interface {
	// Create inserts drink and fills in its generated ID
	Create(ctx context.Context, drink *models.Drink) error

	// GetByID retrieves a drink by ID
	GetByID(ctx context.Context, id int64) (*models.Drink, error)

	// List retrieves all drinks ordered by ID
	List(ctx context.Context) ([]*models.Drink, error)

	// Update updates a drink's title and recipe
	Update(ctx context.Context, drink *models.Drink) error

	// Delete deletes a drink
	Delete(ctx context.Context, id int64) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) DrinkRepository
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Drinks DrinkRepository
}
