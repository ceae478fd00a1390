package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testPart struct {
	Name  string `json:"name" validate:"required"`
	Parts int    `json:"parts" validate:"gte=1"`
}

type testRequest struct {
	Title  string     `json:"title" validate:"required,max=80"`
	Recipe []testPart `json:"recipe" validate:"required,min=1,dive"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := testRequest{
			Title:  "Latte",
			Recipe: []testPart{{Name: "espresso", Parts: 1}},
		}

		err := ValidateStruct(&s)
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		s := testRequest{
			Recipe: []testPart{{Name: "espresso", Parts: 1}},
		}

		err := ValidateStruct(&s)
		assert.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "title is required", fields["title"])
	})

	t.Run("title too long", func(t *testing.T) {
		s := testRequest{
			Title:  string(make([]byte, 81)),
			Recipe: []testPart{{Name: "espresso", Parts: 1}},
		}

		err := ValidateStruct(&s)
		fields := GetValidationFields(err)
		assert.Equal(t, "title must be at most 80", fields["title"])
	})

	t.Run("empty recipe", func(t *testing.T) {
		s := testRequest{Title: "Latte", Recipe: []testPart{}}

		err := ValidateStruct(&s)
		fields := GetValidationFields(err)
		assert.Contains(t, fields, "recipe")
	})

	t.Run("nested part reported with its path", func(t *testing.T) {
		s := testRequest{
			Title:  "Latte",
			Recipe: []testPart{{Name: "espresso", Parts: 1}, {Name: "milk", Parts: 0}},
		}

		err := ValidateStruct(&s)
		fields := GetValidationFields(err)
		assert.Equal(t, "recipe[1].parts must be greater than or equal to 1", fields["recipe[1].parts"])
	})
}

func TestGetValidationFields_NotValidationError(t *testing.T) {
	assert.Nil(t, GetValidationFields(errors.New("boom")))
	assert.False(t, IsValidationError(errors.New("boom")))
}
