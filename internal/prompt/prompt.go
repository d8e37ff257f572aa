// Package prompt builds the system and user messages sent to the model.
// All functions are pure: the same input always yields the same text.
package prompt

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// CacheKey identifies the paid system prompt for provider-side prompt
// caching. Bump it whenever PaidSystem changes.
const CacheKey = "strategic-year-map-v1.0"

// FreeInput feeds the free-tier user prompt.
type FreeInput struct {
	Profiles   domain.TraitProfiles
	AnimalSign string
	Theme      string
}

// PaidInput feeds the paid-tier user prompt.
type PaidInput struct {
	Name         string
	BirthUTC     string
	Latitude     *float64
	Longitude    *float64
	Chart        domain.ChartAttributes
	TargetYear   int
	PivotalTheme string
}

// FreeSystem returns the free-tier system prompt.
func FreeSystem() string { return freeSystem }

// PaidSystem returns the paid-tier system prompt.
func PaidSystem() string { return paidSystem }

// FreeUser renders the free-tier user prompt. Missing profile fields read
// "unknown" and a missing animal sign reads "none".
func FreeUser(in FreeInput) string {
	p := in.Profiles
	data := map[string]string{
		"SunOrientation":  orUnknown(sunField(p.Sun, func(s *domain.SunOrientation) *string { return s.DefaultOrientation })),
		"SunLimit":        orUnknown(sunField(p.Sun, func(s *domain.SunOrientation) *string { return s.IdentityLimit })),
		"MoonPacing":      orUnknown(moonField(p.Moon, func(m *domain.MoonPacing) *string { return m.EmotionalPacing })),
		"MoonSensitivity": orUnknown(moonField(p.Moon, func(m *domain.MoonPacing) *string { return m.SensitivityPoint })),
		"NakIntensity":    orUnknown(nakField(p.Nakshatra, func(n *domain.NakshatraPressure) *string { return n.IntensityReason })),
		"NakMoralLimit":   orUnknown(nakField(p.Nakshatra, func(n *domain.NakshatraPressure) *string { return n.MoralCostLimit })),
		"NakStrain":       orUnknown(nakField(p.Nakshatra, func(n *domain.NakshatraPressure) *string { return n.StrainAccumulation })),
		"Animal":          orDefault(in.AnimalSign, "none"),
		"Theme":           in.Theme,
	}
	return render(freeUserTmpl, data)
}

// PaidUser renders the paid-tier user prompt. The name defaults to
// "the seeker"; the pivotal theme line is only present when a theme is set.
func PaidUser(in PaidInput) string {
	data := map[string]string{
		"Name":       orDefault(strings.TrimSpace(in.Name), "the seeker"),
		"BirthUTC":   orUnknown(in.BirthUTC),
		"Lat":        coord(in.Latitude),
		"Lon":        coord(in.Longitude),
		"Sun":        orUnknown(in.Chart.SunSign),
		"Moon":       orUnknown(in.Chart.MoonSign),
		"Nakshatra":  orUnknown(in.Chart.Nakshatra),
		"TargetYear": strconv.Itoa(in.TargetYear),
		"PriorYear":  strconv.Itoa(in.TargetYear - 1),
		"Theme":      strings.TrimSpace(in.PivotalTheme),
	}
	return render(paidUserTmpl, data)
}

func render(t *template.Template, data map[string]string) string {
	var b strings.Builder
	// Templates are parsed at init from constants and only index string maps.
	_ = t.Execute(&b, data)
	return strings.TrimSpace(b.String())
}

func sunField(s *domain.SunOrientation, f func(*domain.SunOrientation) *string) string {
	if s == nil {
		return ""
	}
	return deref(f(s))
}

func moonField(m *domain.MoonPacing, f func(*domain.MoonPacing) *string) string {
	if m == nil {
		return ""
	}
	return deref(f(m))
}

func nakField(n *domain.NakshatraPressure, f func(*domain.NakshatraPressure) *string) string {
	if n == nil {
		return ""
	}
	return deref(f(n))
}

func coord(f *float64) string {
	if f == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func orUnknown(s string) string { return orDefault(s, "unknown") }

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
