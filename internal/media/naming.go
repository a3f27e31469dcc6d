package media

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultExt is used when no extension can be derived from a MIME type.
const DefaultExt = "bin"

// FileName builds "<prefix>_<unix-millis>-<8 hex>.<ext>". The random suffix
// keeps two files saved in the same millisecond apart.
func FileName(prefix, ext string, now time.Time) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = DefaultExt
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d-%s.%s", prefix, now.UnixMilli(), suffix, ext)
}
