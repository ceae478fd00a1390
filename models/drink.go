package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MaxTitleLength is the longest title the drinks table accepts.
const MaxTitleLength = 80

// RecipePart is one ingredient of a drink: what it is, how it is drawn in the
// menu and how many parts of the cup it fills.
type RecipePart struct {
	Name  string `json:"name" validate:"required"`
	Color string `json:"color" validate:"required"`
	Parts int    `json:"parts" validate:"gte=1"`
}

// Recipe is stored as a JSONB column
type Recipe []RecipePart

// Value implements driver.Valuer
func (r Recipe) Value() (driver.Value, error) {
	if r == nil {
		r = Recipe{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (r *Recipe) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = Recipe{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("recipe: unsupported source type %T", src)
	}

	var parts Recipe
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("recipe: %w", err)
	}
	if parts == nil {
		parts = Recipe{}
	}
	*r = parts
	return nil
}

// Drink represents a menu item
type Drink struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Recipe    Recipe    `json:"recipe" db:"recipe"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Drink model
func (Drink) TableName() string {
	return "drinks"
}

// NewDrink creates a new Drink instance
func NewDrink(title string, recipe Recipe) *Drink {
	now := time.Now()
	return &Drink{
		Title:     title,
		Recipe:    recipe,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the invariants the table enforces.
func (d *Drink) Validate() error {
	if d.Title == "" {
		return errors.New("title is required")
	}
	if len([]rune(d.Title)) > MaxTitleLength {
		return fmt.Errorf("title must be at most %d characters", MaxTitleLength)
	}
	if len(d.Recipe) == 0 {
		return errors.New("recipe must have at least one part")
	}
	for i, p := range d.Recipe {
		if p.Name == "" || p.Color == "" {
			return fmt.Errorf("recipe part %d needs a name and a color", i)
		}
		if p.Parts < 1 {
			return fmt.Errorf("recipe part %d must fill at least one part", i)
		}
	}
	return nil
}

// ShortRecipePart is the public view of an ingredient; names are withheld.
type ShortRecipePart struct {
	Color string `json:"color"`
	Parts int    `json:"parts"`
}

// ShortDrink is the public representation served by GET /drinks.
type ShortDrink struct {
	ID     int64             `json:"id"`
	Title  string            `json:"title"`
	Recipe []ShortRecipePart `json:"recipe"`
}

// LongDrink is the full representation served to authorized callers.
type LongDrink struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Recipe Recipe `json:"recipe"`
}

// Short returns the public representation
func (d *Drink) Short() ShortDrink {
	parts := make([]ShortRecipePart, 0, len(d.Recipe))
	for _, p := range d.Recipe {
		parts = append(parts, ShortRecipePart{Color: p.Color, Parts: p.Parts})
	}
	return ShortDrink{ID: d.ID, Title: d.Title, Recipe: parts}
}

// Long returns the full representation
func (d *Drink) Long() LongDrink {
	recipe := d.Recipe
	if recipe == nil {
		recipe = Recipe{}
	}
	return LongDrink{ID: d.ID, Title: d.Title, Recipe: recipe}
}

// ShortDrinks maps Short over drinks.
func ShortDrinks(drinks []*Drink) []ShortDrink {
	out := make([]ShortDrink, 0, len(drinks))
	for _, d := range drinks {
		out = append(out, d.Short())
	}
	return out
}

// LongDrinks maps Long over drinks.
func LongDrinks(drinks []*Drink) []LongDrink {
	out := make([]LongDrink, 0, len(drinks))
	for _, d := range drinks {
		out = append(out, d.Long())
	}
	return out
}

// SeedDrink is the single row a freshly reset database starts with.
func SeedDrink() *Drink {
	return NewDrink("water", Recipe{{Name: "water", Color: "blue", Parts: 1}})
}
