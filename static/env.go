package static

import (
	"os"

	"github.com/spf13/cast"
)

const (
	EnvMode        = "RSTATIC_ENV"
	EnvModeDev     = "development"
	EnvModeProd    = "production"
	EnvSilent      = "RSTATIC_SILENT"
	EnvVerbose     = "RSTATIC_VERBOSE"
	EnvDevHost     = "RSTATIC_HOST"
	EnvDevPort     = "RSTATIC_PORT"
	EnvMessagePort = "RSTATIC_MESSAGE_PORT"
)

// IsDevelopment reports whether RSTATIC_ENV selects development.
func IsDevelopment() bool {
	return os.Getenv(EnvMode) == EnvModeDev
}

// SetMode sets RSTATIC_ENV for the given stage.
func SetMode(stage Stage) {
	if stage == StageDev {
		os.Setenv(EnvMode, EnvModeDev)
		return
	}
	os.Setenv(EnvMode, EnvModeProd)
}

// EnvBool reads a boolean environment variable; unset or invalid is false.
func EnvBool(key string) bool {
	return cast.ToBool(os.Getenv(key))
}

// EnvInt reads an integer environment variable; unset or invalid is 0.
func EnvInt(key string) int {
	return cast.ToInt(os.Getenv(key))
}
