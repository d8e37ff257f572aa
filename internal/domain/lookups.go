package domain

// SunOrientation is the identity-orientation trait profile for a sun sign.
type SunOrientation struct {
	SunSign            string  `gorm:"primaryKey;type:varchar(64)"`
	DefaultOrientation *string `gorm:"type:text"`
	IdentityLimit      *string `gorm:"type:text"`
	EffortMisfire      *string `gorm:"type:text"`
}

// TableName returns the reference table name for SunOrientation.
func (SunOrientation) TableName() string { return "vedic_sun_orientation_lookup" }

// MoonPacing is the emotional-pacing trait profile for a moon sign.
type MoonPacing struct {
	MoonSign         string  `gorm:"primaryKey;type:varchar(64)"`
	EmotionalPacing  *string `gorm:"type:text"`
	SensitivityPoint *string `gorm:"type:text"`
	StrainLeak       *string `gorm:"type:text"`
}

// TableName returns the reference table name for MoonPacing.
func (MoonPacing) TableName() string { return "vedic_moon_pacing_lookup" }

// NakshatraPressure is the moral-pressure trait profile for a nakshatra.
type NakshatraPressure struct {
	Nakshatra          string  `gorm:"primaryKey;type:varchar(64)"`
	IntensityReason    *string `gorm:"type:text"`
	MoralCostLimit     *string `gorm:"type:text"`
	StrainAccumulation *string `gorm:"type:text"`
}

// TableName returns the reference table name for NakshatraPressure.
func (NakshatraPressure) TableName() string { return "nakshatra_pressure_lookup" }

// TraitProfiles bundles the three resolved profiles. Any of them may be nil
// when the chart lacks the key or the reference table has no row for it.
type TraitProfiles struct {
	Sun       *SunOrientation
	Moon      *MoonPacing
	Nakshatra *NakshatraPressure
}
