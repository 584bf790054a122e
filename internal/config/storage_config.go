package config

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

type StorageConfig interface {
	GetStorageBackend() string
	GetDatabasePath() string
	GetDatabaseWALMode() bool
	GetDatabaseBusyTimeout() int
}

type Storage struct {
	file *FileConfig
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageBackend() string {
	return GetEnv("STORAGE_BACKEND", orString(s.file.Storage.Backend, StorageMemory))
}

func (s Storage) GetDatabasePath() string {
	return GetEnv("DATABASE_PATH", orString(s.file.Storage.Path, "./data/school-auth.db"))
}

func (s Storage) GetDatabaseWALMode() bool {
	return getBool("DATABASE_WAL_MODE", s.file.Storage.WALMode, true)
}

// GetDatabaseBusyTimeout is in seconds
func (s Storage) GetDatabaseBusyTimeout() int {
	return getInt("DATABASE_BUSY_TIMEOUT", s.file.Storage.BusyTimeout, 5)
}
