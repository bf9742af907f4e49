package vector

import "fmt"

func errUnknownCollection(name string) error {
	return fmt.Errorf("vector: unknown collection %q", name)
}

func errDimMismatch(collection string, want, got int) error {
	return fmt.Errorf("vector: collection %q expects dim %d, got %d", collection, want, got)
}
