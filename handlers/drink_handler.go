package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/coffee-shop/auth"
	"github.com/upb/coffee-shop/middleware"
	"github.com/upb/coffee-shop/models"
	"github.com/upb/coffee-shop/services"
	"github.com/upb/coffee-shop/utils"
)

const maxBodyBytes = 1 << 20

// RecipeBody is the recipe as posted by clients: either a list of parts or a
// single part object.
type RecipeBody models.Recipe

// UnmarshalJSON implements json.Unmarshaler
func (b *RecipeBody) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var part models.RecipePart
		if err := json.Unmarshal(trimmed, &part); err != nil {
			return err
		}
		*b = RecipeBody{part}
		return nil
	}

	var parts []models.RecipePart
	if err := json.Unmarshal(trimmed, &parts); err != nil {
		return err
	}
	*b = parts
	return nil
}

// CreateDrinkRequest represents a request to add a drink
type CreateDrinkRequest struct {
	Title  string     `json:"title" validate:"required,max=80"`
	Recipe RecipeBody `json:"recipe" validate:"required,min=1,dive"`
}

// UpdateDrinkRequest represents a partial update of a drink
type UpdateDrinkRequest struct {
	Title  *string     `json:"title,omitempty" validate:"omitempty,min=1,max=80"`
	Recipe *RecipeBody `json:"recipe,omitempty" validate:"omitempty,min=1,dive"`
}

// DrinkService defines the drink operations the handler needs
type DrinkService interface {
	List(ctx context.Context) ([]*models.Drink, error)
	Create(ctx context.Context, title string, recipe models.Recipe) (*models.Drink, error)
	Update(ctx context.Context, id int64, upd services.DrinkUpdate) (*models.Drink, error)
	Delete(ctx context.Context, id int64) error
}

// DrinkHandler handles the drinks menu endpoints
type DrinkHandler struct {
	drinks DrinkService
	logger *zap.Logger
}

// NewDrinkHandler creates a new DrinkHandler
func NewDrinkHandler(drinks DrinkService, logger *zap.Logger) *DrinkHandler {
	return &DrinkHandler{
		drinks: drinks,
		logger: logger,
	}
}

// HandleListDrinks handles GET /drinks. Public; recipes are shown without
// ingredient names.
func (h *DrinkHandler) HandleListDrinks(w http.ResponseWriter, r *http.Request) {
	drinks, err := h.drinks.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, utils.Envelope{"drinks": models.ShortDrinks(drinks)})
}

// HandleListDrinksDetail handles GET /drinks-detail
func (h *DrinkHandler) HandleListDrinksDetail(claims *auth.Claims, w http.ResponseWriter, r *http.Request) {
	drinks, err := h.drinks.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, utils.Envelope{"drinks": models.LongDrinks(drinks)})
}

// HandleCreateDrink handles POST /drinks
func (h *DrinkHandler) HandleCreateDrink(claims *auth.Claims, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req CreateDrinkRequest
	if !h.decode(w, r, &req) {
		return
	}

	drink, err := h.drinks.Create(ctx, req.Title, models.Recipe(req.Recipe))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("drink added",
		zap.String("request_id", requestID),
		zap.String("sub", claims.Subject),
		zap.Int64("drink_id", drink.ID))

	_ = utils.WriteOK(w, utils.Envelope{"drinks": []models.LongDrink{drink.Long()}})
}

// HandleUpdateDrink handles PATCH /drinks/{id}
func (h *DrinkHandler) HandleUpdateDrink(claims *auth.Claims, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	id, ok := drinkID(r)
	if !ok {
		_ = utils.WriteNotFound(w, "")
		return
	}

	var req UpdateDrinkRequest
	if !h.decode(w, r, &req) {
		return
	}

	upd := services.DrinkUpdate{Title: req.Title}
	if req.Recipe != nil {
		upd.Recipe = models.Recipe(*req.Recipe)
	}

	drink, err := h.drinks.Update(ctx, id, upd)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("drink updated",
		zap.String("request_id", requestID),
		zap.String("sub", claims.Subject),
		zap.Int64("drink_id", id))

	_ = utils.WriteOK(w, utils.Envelope{"drinks": []models.LongDrink{drink.Long()}})
}

// HandleDeleteDrink handles DELETE /drinks/{id}
func (h *DrinkHandler) HandleDeleteDrink(claims *auth.Claims, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := drinkID(r)
	if !ok {
		_ = utils.WriteNotFound(w, "")
		return
	}

	if err := h.drinks.Delete(ctx, id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("drink deleted",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("sub", claims.Subject),
		zap.Int64("drink_id", id))

	_ = utils.WriteOK(w, utils.Envelope{"delete": id})
}

// decode reads and validates the JSON body into dst. On failure the 400
// response has been written.
func (h *DrinkHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "", nil)
		return false
	}

	if err := utils.ValidateStruct(dst); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return false
	}
	return true
}

// drinkID parses the {id} path parameter. Anything but a positive integer
// names no drink.
func drinkID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
