package memory

import (
	"fmt"
	"math"
	"runtime/debug"
	"strconv"
	"strings"

	"gallery-index/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest covers libvips allocations, SQLite page cache and
// goroutine stacks.
const DefaultMemoryRatio = 0.80

// Sources of the memory limit
const (
	SourceGOMEMLIMIT  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
	SourceNone        = "none"
)

// ConfigResult describes how the Go memory limit was configured
type ConfigResult struct {
	Configured     bool
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets the Go soft memory limit from the environment. Call
// it early in main, before the cache and codec allocate.
//
//   - GOMEMLIMIT wins when set; the runtime has already applied it.
//   - MEMORY_LIMIT is the container limit, as bytes or a Kubernetes
//     quantity ("512Mi", "2G"), usually from the Downward API.
//   - MEMORY_RATIO is the heap share of MEMORY_LIMIT (default 0.80).
func ConfigureFromEnv(getenv func(string) string) ConfigResult {
	return configure(getenv, debug.SetMemoryLimit)
}

func configure(getenv func(string) string, setLimit func(int64) int64) ConfigResult {
	if v := getenv("GOMEMLIMIT"); v != "" {
		result := ConfigResult{Source: SourceGOMEMLIMIT}
		if limit := setLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Debug("GOMEMLIMIT set via environment: %s", v)
		return result
	}

	raw := strings.TrimSpace(getenv("MEMORY_LIMIT"))
	if raw == "" {
		return ConfigResult{Source: SourceNone}
	}

	containerLimit, err := ParseQuantity(raw)
	if err != nil || containerLimit <= 0 {
		logging.Warn("Ignoring MEMORY_LIMIT %q: not a positive byte quantity", raw)
		return ConfigResult{Source: SourceNone}
	}

	ratio := DefaultMemoryRatio
	if v := strings.TrimSpace(getenv("MEMORY_RATIO")); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		switch {
		case err != nil:
			logging.Warn("Failed to parse MEMORY_RATIO %q: %v, using %.2f", v, err, DefaultMemoryRatio)
		case parsed <= 0 || parsed > 1:
			logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0], using %.2f", v, DefaultMemoryRatio)
		default:
			ratio = parsed
		}
	}

	goMemLimit := int64(float64(containerLimit) * ratio)
	setLimit(goMemLimit)

	return ConfigResult{
		Configured:     true,
		Source:         SourceMemoryLimit,
		ContainerLimit: containerLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

var quantitySuffixes = []struct {
	suffix     string
	multiplier int64
}{
	{"Ki", 1 << 10},
	{"Mi", 1 << 20},
	{"Gi", 1 << 30},
	{"Ti", 1 << 40},
	{"k", 1e3},
	{"K", 1e3},
	{"M", 1e6},
	{"G", 1e9},
	{"T", 1e12},
}

// ParseQuantity parses a byte count written as a plain integer or with a
// Kubernetes binary (Ki, Mi, Gi, Ti) or decimal (k, M, G, T) suffix.
func ParseQuantity(s string) (int64, error) {
	s = strings.TrimSpace(s)
	multiplier := int64(1)
	for _, q := range quantitySuffixes {
		if strings.HasSuffix(s, q.suffix) {
			s = strings.TrimSuffix(s, q.suffix)
			multiplier = q.multiplier
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("quantity %q overflows", s)
	}
	return n * multiplier, nil
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
