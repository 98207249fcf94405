package domain

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// InventoryNameRegex restricts inventory names to URL path safe identifiers
var InventoryNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// NewValidator creates a configured validator instance
func NewValidator() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("inventory_name", func(fl validator.FieldLevel) bool {
		return InventoryNameRegex.MatchString(fl.Field().String())
	})

	return v
}
