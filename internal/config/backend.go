package config

// ConfigBackend abstracts config storage. Keys are dotted paths
// ("server.port") regardless of how the backend nests them.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
