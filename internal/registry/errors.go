package registry

import "fmt"

// NotFoundError reports an operation against a model id that is not in the
// registry.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Model %s not found in registry", e.ID)
}

// DuplicateIDError reports an attempt to add a model whose id already exists.
// Adding a duplicate is a no-op failure, never an overwrite.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("Model %s already exists in registry", e.ID)
}

// DefaultModelError reports an attempt to delete the bundled default model.
type DefaultModelError struct {
	ID string
}

func (e *DefaultModelError) Error() string {
	return fmt.Sprintf("Cannot delete default model %s", e.ID)
}
