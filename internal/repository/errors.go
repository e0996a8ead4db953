package repository

import (
	"fmt"

	"gorm.io/gorm"
)

// NotFoundError reports a lookup or update that matched no row, for
// example a card deleted from another screen mid-session. It unwraps
// to gorm.ErrRecordNotFound so existing errors.Is checks keep working.
type NotFoundError struct {
	Entity string
	ID     uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return gorm.ErrRecordNotFound
}
