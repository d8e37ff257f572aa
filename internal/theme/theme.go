// Package theme selects the pivotal life theme for a birth instant and
// target year and memoizes it so that near-identical birth times always get
// the same theme.
package theme

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// NormalizedLayout is the canonical form of a normalized birth instant.
const NormalizedLayout = "2006-01-02T15:04:05.000Z"

// Bucket maps ages strictly below MaxAgeExclusive to a list of themes.
// A zero MaxAgeExclusive matches every age.
type Bucket struct {
	MaxAgeExclusive int
	Options         []string
}

// Buckets is the ordered age table consulted by Select.
var Buckets = []Bucket{
	{MaxAgeExclusive: 35, Options: []string{"career", "education", "identity"}},
	{MaxAgeExclusive: 50, Options: []string{"career", "relationships", "family", "health"}},
	{MaxAgeExclusive: 60, Options: []string{"health", "family", "relationships", "purpose"}},
	{Options: []string{"health", "family", "relationships", "meaning", "stewardship"}},
}

// Select picks a theme from the first bucket matching age, indexed by the
// byte sum of seed.
func Select(age int, seed string) string {
	var sum uint
	for i := 0; i < len(seed); i++ {
		sum += uint(seed[i])
	}
	for _, b := range Buckets {
		if b.MaxAgeExclusive == 0 || age < b.MaxAgeExclusive {
			return b.Options[sum%uint(len(b.Options))]
		}
	}
	last := Buckets[len(Buckets)-1].Options
	return last[sum%uint(len(last))]
}

// Normalize snaps a UTC instant to the nearest half hour: minutes below 15
// round down to :00, below 45 to :30, otherwise up to the next hour.
// Seconds are dropped.
func Normalize(instant string) (string, error) {
	t, err := parseInstant(instant)
	if err != nil {
		return "", err
	}
	t = t.UTC().Truncate(time.Minute)
	m := t.Minute()
	base := t.Add(-time.Duration(m) * time.Minute)
	switch {
	case m < 15:
		t = base
	case m < 45:
		t = base.Add(30 * time.Minute)
	default:
		t = base.Add(time.Hour)
	}
	return t.Format(NormalizedLayout), nil
}

// Seed derives the selection seed: the hex form of the first four bytes of
// SHA-256 over birthTimeUTC, or over "date+time+place" joined with a literal
// "+" when it is empty.
func Seed(birthTimeUTC, birthDate, birthTime, birthPlace string) string {
	in := birthTimeUTC
	if in == "" {
		in = strings.Join([]string{birthDate, birthTime, birthPlace}, "+")
	}
	sum := sha256.Sum256([]byte(in))
	return hex.EncodeToString(sum[:4])
}

// Age is the target year minus the birth year. birthDate may be a calendar
// date or a full instant; unparseable input yields 0.
func Age(birth string, targetYear int) int {
	if t, err := parseInstant(birth); err == nil {
		return targetYear - t.UTC().Year()
	}
	if t, err := time.Parse("2006-01-02", birth); err == nil {
		return targetYear - t.Year()
	}
	return 0
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseInstant(s string) (time.Time, error) {
	var err error
	for _, layout := range instantLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
