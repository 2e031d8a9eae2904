package balancedelivery

import (
	"github.com/go-playground/validator/v10"

	"github.com/gigdesk/credits/internal/domain"
)

// ValidEntryType validates whether the value is a supported ledger entry type.
var ValidEntryType validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return domain.ValidEntryType(domain.EntryType(s))
	}
	return false
}
