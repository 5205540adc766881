package storage

// StorageInterface defines the blob operations the bot needs for run
// artifacts and the processed-tweet history.
type StorageInterface interface {
	Store(filename string, data []byte) error
	Retrieve(filename string) ([]byte, error)
	List(prefix string) ([]string, error)
	Delete(filename string) error
}
