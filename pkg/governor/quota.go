package governor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Quota caps admissions at Max per fixed Window.
type Quota struct {
	Max    int
	Window time.Duration
}

func (q Quota) String() string {
	return fmt.Sprintf("%d/%s", q.Max, q.Window)
}

// ParseQuota parses one "max/window" pair, e.g. "500/100s" or "80/1m".
func ParseQuota(s string) (Quota, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) != 2 {
		return Quota{}, fmt.Errorf("governor: quota %q: want max/window", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n <= 0 {
		return Quota{}, fmt.Errorf("governor: quota %q: max must be a positive integer", s)
	}
	win, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil || win <= 0 {
		return Quota{}, fmt.Errorf("governor: quota %q: window must be a positive duration", s)
	}
	return Quota{Max: n, Window: win}, nil
}

// ParseQuotas parses a comma-separated quota list, e.g. "5/1s,80/1m".
func ParseQuotas(s string) ([]Quota, error) {
	var quotas []Quota
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		q, err := ParseQuota(part)
		if err != nil {
			return nil, err
		}
		quotas = append(quotas, q)
	}
	if len(quotas) == 0 {
		return nil, fmt.Errorf("governor: empty quota list %q", s)
	}
	return quotas, nil
}
