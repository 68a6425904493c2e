package repository

import (
	"errors"

	"prepcourse_backend/internal/util"

	"gorm.io/gorm"
)

// translate maps gorm's not-found onto the service taxonomy.
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrNotFound
	}
	return err
}
