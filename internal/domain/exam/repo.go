package exam

// StoreRepository loads and atomically replaces the consolidated dataset.
// The store is a single unit: there are no partial or incremental writes,
// so a failed write leaves the previous contents untouched.
type StoreRepository interface {
	Load() ([]Record, error)
	Write(records []Record) error
	Path() string
}
