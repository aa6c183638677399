package postgres

import (
	"errors"
	"fmt"

	"github.com/dom/learnhub-api/internal/domain"
	"gorm.io/gorm"
)

// translate maps gorm's not-found error onto domain.ErrNotFound.
func translate(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}
