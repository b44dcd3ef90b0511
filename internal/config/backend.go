package config

// ConfigBackend persists the non-secret settings of the prefs binary. On
// macOS they live in the com.kalambet.prefs defaults domain, elsewhere in a
// JSON file under $XDG_CONFIG_HOME. Keys are the dotted names of specs.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
	// Location describes where settings are stored, for display.
	Location() string
}

// Location reports where the platform backend keeps settings.
func Location() string {
	return newPlatformBackend().Location()
}
