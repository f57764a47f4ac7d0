package persist

import "context"

// DummyStore discards all writes. Backtests use it because simulation needs
// no cross-run durability, and tests use it as a null collaborator.
type DummyStore struct{}

// NewDummyStore returns a no-op store.
func NewDummyStore() DummyStore {
	return DummyStore{}
}

func (DummyStore) Read(context.Context, string) (Record, error) {
	return Record{}, ErrNotFound
}

func (DummyStore) Write(context.Context, string, Record) error {
	return nil
}

func (DummyStore) Exists(context.Context, string) (bool, error) {
	return false, nil
}

func (DummyStore) Delete(context.Context, string) error {
	return nil
}

func (DummyStore) ListKeys(context.Context) ([]string, error) {
	return nil, nil
}
