// Package domain defines the persistence models and value types of the
// forecast backend. Models are mapped with GORM and shared across the
// repository, service and HTTP layers.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Generation status values stored on PaidForecast.
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// ChartColumns holds the chart attributes persisted alongside a free
// forecast. It is embedded so the paid path can reuse a previously fetched
// chart without calling the chart service again.
type ChartColumns struct {
	MoonSign        *string `json:"moon_sign,omitempty"        gorm:"type:varchar(64)"`
	MoonSignID      *int    `json:"moon_sign_id,omitempty"`
	MoonSignLord    *string `json:"moon_sign_lord,omitempty"   gorm:"type:varchar(64)"`
	SunSign         *string `json:"sun_sign,omitempty"         gorm:"type:varchar(64)"`
	SunSignID       *int    `json:"sun_sign_id,omitempty"`
	SunSignLord     *string `json:"sun_sign_lord,omitempty"    gorm:"type:varchar(64)"`
	Nakshatra       *string `json:"nakshatra,omitempty"        gorm:"type:varchar(64)"`
	NakshatraID     *int    `json:"nakshatra_id,omitempty"`
	NakshatraPada   *int    `json:"nakshatra_pada,omitempty"`
	NakshatraLord   *string `json:"nakshatra_lord,omitempty"   gorm:"type:varchar(64)"`
	NakshatraGender *string `json:"nakshatra_gender,omitempty" gorm:"type:varchar(32)"`
	Deity           *string `json:"deity,omitempty"            gorm:"type:varchar(64)"`
	Ganam           *string `json:"ganam,omitempty"            gorm:"type:varchar(64)"`
	BirthSymbol     *string `json:"birth_symbol,omitempty"     gorm:"type:varchar(128)"`
	AnimalSign      *string `json:"animal_sign,omitempty"      gorm:"type:varchar(64)"`
	Nadi            *string `json:"nadi,omitempty"             gorm:"type:varchar(64)"`
	LuckyColor      *string `json:"lucky_color,omitempty"      gorm:"type:varchar(64)"`
	BestDirection   *string `json:"best_direction,omitempty"   gorm:"type:varchar(64)"`
	Syllables       *string `json:"syllables,omitempty"        gorm:"type:varchar(128)"`
	BirthStone      *string `json:"birth_stone,omitempty"      gorm:"type:varchar(64)"`
}

// FreeForecast is a generated free-tier preview and its provenance.
//
// Fields:
//   - ID / GuestToken: UUIDs; the guest token gates anonymous retrieval.
//   - Birth data: the validated request values.
//   - ChartColumns: chart attributes used to build the prompt (may be empty).
//   - ForecastText: markdown rendering of the five sections.
//   - CustomerEmail: filled in later when the same person pays.
type FreeForecast struct {
	ID            string   `json:"id"             gorm:"type:char(36);primaryKey"`
	GuestToken    string   `json:"-"              gorm:"type:char(36);not null;index"`
	BirthDate     string   `json:"birth_date"     gorm:"type:varchar(10);not null"`
	BirthTime     string   `json:"birth_time"     gorm:"type:varchar(5);not null"`
	BirthPlace    string   `json:"birth_place"    gorm:"type:varchar(200);not null"`
	BirthTimeUTC  *string  `json:"birth_time_utc,omitempty" gorm:"type:varchar(50)"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	ChartColumns  `gorm:"embedded"`
	ForecastText  string    `json:"forecast_text"  gorm:"type:text;not null"`
	PivotalTheme  string    `json:"pivotal_theme"  gorm:"type:varchar(50);not null"`
	ZodiacSign    string    `json:"zodiac_sign"    gorm:"type:varchar(20)"`
	DeviceID      *string   `json:"-"              gorm:"type:varchar(100);index"`
	ModelUsed     string    `json:"model_used"     gorm:"type:varchar(64)"`
	CustomerEmail *string   `json:"-"              gorm:"type:varchar(320)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for FreeForecast.
func (FreeForecast) TableName() string { return "free_forecasts" }

// PaidForecast is the record of a paid strategic forecast. It is keyed
// uniquely by the payment session id: every attempt for a session updates the
// same row, and a complete row is never regenerated.
type PaidForecast struct {
	ID                string         `json:"id"                  gorm:"type:char(36);primaryKey"`
	StripeSessionID   string         `json:"stripe_session_id"   gorm:"type:varchar(200);not null;uniqueIndex:ux_paid_forecasts_session"`
	GuestToken        string         `json:"-"                   gorm:"type:char(36);not null"`
	CustomerEmail     string         `json:"customer_email"      gorm:"type:varchar(320)"`
	CustomerName      string         `json:"customer_name"       gorm:"type:varchar(100)"`
	BirthDate         string         `json:"birth_date"          gorm:"type:varchar(10)"`
	BirthTime         string         `json:"birth_time"          gorm:"type:varchar(5)"`
	BirthTimeUTC      string         `json:"birth_time_utc"      gorm:"type:varchar(50)"`
	BirthPlace        string         `json:"birth_place"         gorm:"type:varchar(64)"`
	FreeForecast      string         `json:"free_forecast"       gorm:"type:text"`
	StrategicForecast datatypes.JSON `json:"strategic_forecast"`
	AmountPaid        int64          `json:"amount_paid"`
	ModelUsed         string         `json:"model_used"          gorm:"type:varchar(64)"`
	GenerationStatus  string         `json:"generation_status"   gorm:"type:varchar(16);not null;index;check:generation_status IN ('pending','complete','failed')"`
	GenerationError   *string        `json:"generation_error,omitempty" gorm:"type:text"`
	RetryCount        int            `json:"retry_count"`
	PromptTokens      *int           `json:"prompt_tokens,omitempty"`
	CompletionTokens  *int           `json:"completion_tokens,omitempty"`
	TotalTokens       *int           `json:"total_tokens,omitempty"`
	CachedTokens      *int           `json:"cached_tokens,omitempty"`
	ZodiacSign        string         `json:"zodiac_sign"         gorm:"type:varchar(20)"`
	DeviceID          *string        `json:"-"                   gorm:"type:varchar(100)"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName returns the database table name for PaidForecast.
func (PaidForecast) TableName() string { return "paid_forecasts" }

// ThemeCacheEntry memoizes the pivotal theme for a normalized birth instant
// and target year. Rows are immutable once inserted.
type ThemeCacheEntry struct {
	ID               uint      `gorm:"primaryKey"`
	BirthDatetimeUTC string    `gorm:"column:birth_datetime_utc;type:varchar(32);not null;uniqueIndex:ux_theme_cache_key,priority:1"`
	TargetYear       string    `gorm:"type:varchar(4);not null;uniqueIndex:ux_theme_cache_key,priority:2"`
	PivotalTheme     string    `gorm:"type:varchar(50);not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name for ThemeCacheEntry.
func (ThemeCacheEntry) TableName() string { return "theme_cache" }

// AbuseEvent records an hourly generation volume crossing its alert
// threshold.
type AbuseEvent struct {
	ID          string            `json:"id"           gorm:"type:char(36);primaryKey"`
	EventType   string            `json:"event_type"   gorm:"type:varchar(64);not null;index"`
	IPAddress   string            `json:"ip_address"   gorm:"type:varchar(64)"`
	DeviceID    *string           `json:"device_id"    gorm:"type:varchar(100)"`
	HourlyCount int               `json:"hourly_count"`
	Threshold   int               `json:"threshold"`
	Details     datatypes.JSONMap `json:"details"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TableName returns the database table name for AbuseEvent.
func (AbuseEvent) TableName() string { return "abuse_events" }
