package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/upb/coffee-shop/models"
	"github.com/upb/coffee-shop/repositories"
)

// DrinkUpdate carries the fields of a partial update. Nil fields are left
// untouched.
type DrinkUpdate struct {
	Title  *string
	Recipe models.Recipe
}

func (u DrinkUpdate) empty() bool {
	return u.Title == nil && u.Recipe == nil
}

// DrinkService implements the drinks menu operations
type DrinkService struct {
	drinks repositories.DrinkRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
}

// NewDrinkService creates a new DrinkService instance
func NewDrinkService(drinks repositories.DrinkRepository, txMgr repositories.TransactionManager, logger *zap.Logger) *DrinkService {
	return &DrinkService{
		drinks: drinks,
		txMgr:  txMgr,
		logger: logger,
	}
}

// List returns every drink on the menu ordered by ID
func (s *DrinkService) List(ctx context.Context) ([]*models.Drink, error) {
	drinks, err := s.drinks.List(ctx)
	if err != nil {
		return nil, s.mapRepoError(err, "list drinks")
	}
	return drinks, nil
}

// Create adds a drink to the menu
func (s *DrinkService) Create(ctx context.Context, title string, recipe models.Recipe) (*models.Drink, error) {
	drink := models.NewDrink(title, recipe)
	if err := drink.Validate(); err != nil {
		return nil, ErrInvalidDrink.WithDetail("reason", err.Error())
	}

	if err := s.drinks.Create(ctx, drink); err != nil {
		return nil, s.mapRepoError(err, "create drink")
	}

	s.logger.Info("drink created",
		zap.Int64("drink_id", drink.ID),
		zap.String("title", drink.Title))

	return drink, nil
}

// Update applies a partial update to an existing drink. The read and the write
// share one transaction.
func (s *DrinkService) Update(ctx context.Context, id int64, upd DrinkUpdate) (*models.Drink, error) {
	if id <= 0 {
		return nil, ErrDrinkNotFound
	}
	if upd.empty() {
		return nil, ErrEmptyUpdate
	}

	drink, err := WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.Drink, error) {
		repo := s.drinks.WithTx(tx)

		drink, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if upd.Title != nil {
			drink.Title = *upd.Title
		}
		if upd.Recipe != nil {
			drink.Recipe = upd.Recipe
		}
		if err := drink.Validate(); err != nil {
			return nil, ErrInvalidDrink.WithDetail("reason", err.Error())
		}
		drink.UpdatedAt = time.Now()

		if err := repo.Update(ctx, drink); err != nil {
			return nil, err
		}
		return drink, nil
	})
	if err != nil {
		return nil, s.mapRepoError(err, "update drink")
	}

	s.logger.Info("drink updated", zap.Int64("drink_id", id))
	return drink, nil
}

// Delete removes a drink from the menu
func (s *DrinkService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrDrinkNotFound
	}

	err := WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		return s.drinks.WithTx(tx).Delete(ctx, id)
	})
	if err != nil {
		return s.mapRepoError(err, "delete drink")
	}

	s.logger.Info("drink deleted", zap.Int64("drink_id", id))
	return nil
}

func (s *DrinkService) mapRepoError(err error, op string) error {
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return ErrDrinkNotFound
	case errors.Is(err, repositories.ErrDuplicateTitle):
		return ErrDuplicateTitle
	default:
		s.logger.Error("drink repository failure", zap.String("op", op), zap.Error(err))
		return ErrDatabaseError.Wrap(err)
	}
}
