package envutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/yungbote/aggsync/internal/platform/logger"
)

func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func Float(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func Bool(name string, def bool) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// String reads name, falling back to def, and logs which source was used.
func String(name, def string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", name)
	}
	val, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(val) == "" {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", def)
		}
		return def
	}
	if log != nil {
		// keyed by the variable name so the logger redacts secrets
		log.Debug("Environment variable found, using environment", strings.ToLower(name), val)
	}
	return strings.TrimSpace(val)
}
