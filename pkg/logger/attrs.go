package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// ensureInstanceID derives a per-process identity when the config leaves it
// empty: hostname plus a short random suffix, or just the suffix when no
// hostname is available.
func ensureInstanceID(v string) string {
	if v != "" {
		return v
	}
	suffix := uuid.NewString()[:8]
	hn, err := os.Hostname()
	if err != nil || hn == "" {
		return suffix
	}
	return hn + "-" + suffix
}

func commonAttr(cfg Config) []slog.Attr {
	return []slog.Attr{
		slog.String("service", cfg.Service),
		slog.String("env", string(cfg.Env)),
		slog.String("version", cfg.Version),
		slog.String("instance_id", cfg.InstanceID),
		slog.Int("pid", os.Getpid()),
		slog.Time("started_at", time.Now()),
	}
}
