package catalog

import (
	"errors"
	"fmt"
)

// InvalidCategoryError reports a category outside the closed set. This is
// programmer or configuration error, so it is returned immediately rather
// than collected.
type InvalidCategoryError struct {
	Category Category
}

// Error implements the error interface.
func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("invalid resource category %q (known: %v)", e.Category, Categories())
}

// IsInvalidCategory reports whether err is an InvalidCategoryError.
// Uses errors.As to handle wrapped errors.
func IsInvalidCategory(err error) bool {
	var ice *InvalidCategoryError
	return errors.As(err, &ice)
}
