package domain

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GenerationRequest is a validated free-tier request.
type GenerationRequest struct {
	BirthDate    string
	BirthTime    string
	BirthPlace   string
	BirthTimeUTC string
	Latitude     *float64
	Longitude    *float64
	DeviceID     string
	CaptchaToken string
}

// PaidGenerationRequest is a validated paid-tier request. Birth fields are
// optional because they can be recovered from the linked free forecast.
type PaidGenerationRequest struct {
	SessionID        string
	BirthDateTimeUTC string
	Lat              *float64
	Lon              *float64
	Name             string
	PivotalTheme     string
	FreeForecast     string
	FreeForecastID   string
	DeviceID         string
}

// ChartAttributes are the structured birth-chart attributes returned by the
// chart service. The zero value means "no chart available".
type ChartAttributes struct {
	MoonSign        string `json:"moonSign,omitempty"`
	MoonSignID      int    `json:"moonSignId,omitempty"`
	MoonSignLord    string `json:"moonSignLord,omitempty"`
	SunSign         string `json:"sunSign,omitempty"`
	SunSignID       int    `json:"sunSignId,omitempty"`
	SunSignLord     string `json:"sunSignLord,omitempty"`
	Nakshatra       string `json:"nakshatra,omitempty"`
	NakshatraID     int    `json:"nakshatraId,omitempty"`
	NakshatraPada   int    `json:"nakshatraPada,omitempty"`
	NakshatraLord   string `json:"nakshatraLord,omitempty"`
	NakshatraGender string `json:"nakshatraGender,omitempty"`
	Deity           string `json:"deity,omitempty"`
	Ganam           string `json:"ganam,omitempty"`
	BirthSymbol     string `json:"birthSymbol,omitempty"`
	AnimalSign      string `json:"animalSign,omitempty"`
	Nadi            string `json:"nadi,omitempty"`
	LuckyColor      string `json:"luckyColor,omitempty"`
	BestDirection   string `json:"bestDirection,omitempty"`
	Syllables       string `json:"syllables,omitempty"`
	BirthStone      string `json:"birthStone,omitempty"`
}

// Empty reports whether no chart attribute is set.
func (a ChartAttributes) Empty() bool { return a == ChartAttributes{} }

// Columns converts the attributes to their nullable storage form.
func (a ChartAttributes) Columns() ChartColumns {
	return ChartColumns{
		MoonSign:        strPtr(a.MoonSign),
		MoonSignID:      intPtr(a.MoonSignID),
		MoonSignLord:    strPtr(a.MoonSignLord),
		SunSign:         strPtr(a.SunSign),
		SunSignID:       intPtr(a.SunSignID),
		SunSignLord:     strPtr(a.SunSignLord),
		Nakshatra:       strPtr(a.Nakshatra),
		NakshatraID:     intPtr(a.NakshatraID),
		NakshatraPada:   intPtr(a.NakshatraPada),
		NakshatraLord:   strPtr(a.NakshatraLord),
		NakshatraGender: strPtr(a.NakshatraGender),
		Deity:           strPtr(a.Deity),
		Ganam:           strPtr(a.Ganam),
		BirthSymbol:     strPtr(a.BirthSymbol),
		AnimalSign:      strPtr(a.AnimalSign),
		Nadi:            strPtr(a.Nadi),
		LuckyColor:      strPtr(a.LuckyColor),
		BestDirection:   strPtr(a.BestDirection),
		Syllables:       strPtr(a.Syllables),
		BirthStone:      strPtr(a.BirthStone),
	}
}

// Attributes converts stored columns back to chart attributes.
func (c ChartColumns) Attributes() ChartAttributes {
	return ChartAttributes{
		MoonSign:        deref(c.MoonSign),
		MoonSignID:      derefInt(c.MoonSignID),
		MoonSignLord:    deref(c.MoonSignLord),
		SunSign:         deref(c.SunSign),
		SunSignID:       derefInt(c.SunSignID),
		SunSignLord:     deref(c.SunSignLord),
		Nakshatra:       deref(c.Nakshatra),
		NakshatraID:     derefInt(c.NakshatraID),
		NakshatraPada:   derefInt(c.NakshatraPada),
		NakshatraLord:   deref(c.NakshatraLord),
		NakshatraGender: deref(c.NakshatraGender),
		Deity:           deref(c.Deity),
		Ganam:           deref(c.Ganam),
		BirthSymbol:     deref(c.BirthSymbol),
		AnimalSign:      deref(c.AnimalSign),
		Nadi:            deref(c.Nadi),
		LuckyColor:      deref(c.LuckyColor),
		BestDirection:   deref(c.BestDirection),
		Syllables:       deref(c.Syllables),
		BirthStone:      deref(c.BirthStone),
	}
}

// ForecastSections is the five-section free-tier artifact.
type ForecastSections struct {
	WhoYouAreRightNow        string `json:"who_you_are_right_now"`
	WhatsHappeningInYourLife string `json:"whats_happening_in_your_life"`
	PivotalLifeTheme         string `json:"pivotal_life_theme"`
	BecomingTighter          string `json:"what_is_becoming_tighter_or_less_forgiving"`
	UpgradeHook              string `json:"upgrade_hook"`
}

// Complete reports whether all five sections carry text.
func (s ForecastSections) Complete() bool {
	for _, v := range []string{
		s.WhoYouAreRightNow,
		s.WhatsHappeningInYourLife,
		s.PivotalLifeTheme,
		s.BecomingTighter,
		s.UpgradeHook,
	} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

var headingCaser = cases.Upper(language.English)

// Markdown renders the sections as "## HEADING" blocks separated by blank
// lines. The theme heading carries the target year.
func (s ForecastSections) Markdown(targetYear int) string {
	blocks := []struct{ title, body string }{
		{"Who you are right now", s.WhoYouAreRightNow},
		{"What's happening in your life", s.WhatsHappeningInYourLife},
		{fmt.Sprintf("%d pivotal life theme", targetYear), s.PivotalLifeTheme},
		{"What is becoming tighter or less forgiving", s.BecomingTighter},
		{"Upgrade hook", s.UpgradeHook},
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, "## "+headingCaser.String(b.title)+"\n\n"+b.body)
	}
	return strings.Join(parts, "\n\n")
}

// TokenUsage holds the provider-reported token counters of a generation.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
	CachedTokens     int `json:"cachedTokens"`
}

// WesternZodiacSign returns the tropical sun sign for a calendar date.
func WesternZodiacSign(t time.Time) string {
	m, d := int(t.Month()), t.Day()
	switch {
	case (m == 3 && d >= 21) || (m == 4 && d <= 19):
		return "Aries"
	case (m == 4 && d >= 20) || (m == 5 && d <= 20):
		return "Taurus"
	case (m == 5 && d >= 21) || (m == 6 && d <= 20):
		return "Gemini"
	case (m == 6 && d >= 21) || (m == 7 && d <= 22):
		return "Cancer"
	case (m == 7 && d >= 23) || (m == 8 && d <= 22):
		return "Leo"
	case (m == 8 && d >= 23) || (m == 9 && d <= 22):
		return "Virgo"
	case (m == 9 && d >= 23) || (m == 10 && d <= 22):
		return "Libra"
	case (m == 10 && d >= 23) || (m == 11 && d <= 21):
		return "Scorpio"
	case (m == 11 && d >= 22) || (m == 12 && d <= 21):
		return "Sagittarius"
	case (m == 12 && d >= 22) || (m == 1 && d <= 19):
		return "Capricorn"
	case (m == 1 && d >= 20) || (m == 2 && d <= 18):
		return "Aquarius"
	default:
		return "Pisces"
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
