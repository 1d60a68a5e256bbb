package media

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Prober extracts metadata with ffprobe.
type Prober struct {
	bin string
}

// NewProber returns a Prober using the given ffprobe binary ("ffprobe" when
// empty).
func NewProber(bin string) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{bin: bin}
}

// Duration returns the container duration of src in milliseconds.
func (p *Prober) Duration(ctx context.Context, src string) (int64, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("media: ffprobe %s: %w (%s)", src, err, strings.TrimSpace(stderr.String()))
	}
	return parseDuration(stdout.String())
}

// parseDuration converts ffprobe's seconds output ("12.345000") to ms.
func parseDuration(out string) (int64, error) {
	s := strings.TrimSpace(out)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("media: parse duration %q: %w", s, err)
	}
	if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("media: invalid duration %q", s)
	}
	return int64(math.Round(secs * 1000)), nil
}
