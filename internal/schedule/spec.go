// Package schedule parses watch-mode schedules and runs a job on them
// with robfig/cron, never letting two runs overlap.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

func (k Kind) String() string {
	if k == KindInterval {
		return "interval"
	}
	return "cron"
}

// Spec is a parsed schedule string.
//
// Accepted forms:
//   - cron: "0 */6 * * *", "30 0 */6 * * *" (seconds optional), "@hourly", "@every 6h"
//   - duration: "6h", "90m"
//   - HH:MM interval: "06:00" (six hours), "00:45"
//
// "cron:" forces cron parsing; "interval:" and "every:" force an interval.
type Spec struct {
	Kind  Kind
	Cron  string
	Every time.Duration
	Raw   string
}

// Expr is the expression handed to cron.
func (s Spec) Expr() string {
	if s.Kind == KindInterval {
		return "@every " + s.Every.String()
	}
	return s.Cron
}

func (s Spec) String() string {
	if s.Kind == KindInterval {
		return "every " + s.Every.String()
	}
	return s.Cron
}

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, errors.New("schedule required")
	}
	low := strings.ToLower(s)

	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Spec{}, errors.New("cron expression required after 'cron:'")
		}
		return checkCron(Spec{Kind: KindCron, Cron: expr, Raw: raw})
	case strings.HasPrefix(low, "interval:"):
		return intervalSpec(raw, s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return intervalSpec(raw, s[len("every:"):])
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return checkCron(Spec{Kind: KindCron, Cron: s, Raw: raw})
	}

	if spec, err := intervalSpec(raw, s); err == nil {
		return spec, nil
	}
	return Spec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '0 */6 * * *', HH:MM like '06:00', or a duration like '6h')", raw)
}

func checkCron(s Spec) (Spec, error) {
	if _, err := parser.Parse(s.Cron); err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", s.Cron, err)
	}
	return s, nil
}

func intervalSpec(raw, v string) (Spec, error) {
	d, err := parseInterval(strings.TrimSpace(v))
	if err != nil {
		return Spec{}, err
	}
	return Spec{Kind: KindInterval, Every: d, Raw: raw}, nil
}

func parseInterval(v string) (time.Duration, error) {
	if v == "" {
		return 0, errors.New("interval required")
	}
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		d, err = time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q (use HH:MM or a duration like '6h')", v)
		}
	}
	if d < time.Second {
		return 0, fmt.Errorf("interval must be at least 1s, got %s", d)
	}
	return d, nil
}
