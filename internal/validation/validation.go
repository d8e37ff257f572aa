// Package validation parses and validates untrusted generation request
// bodies. Bodies are decoded into wire structs and checked with
// go-playground/validator; failures are reported as a single *Error whose
// message is safe to show to callers.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-forecast-backend/internal/domain"
)

// ErrInvalid is the sentinel every *Error unwraps to.
var ErrInvalid = errors.New("invalid input")

// Client-facing messages for the coarse failure classes.
const (
	MsgInvalidJSON = "Invalid JSON"
	MsgInvalidPaid = "Invalid input data"
)

// Error is a validation failure. Message is client-safe; Detail carries the
// per-field reasons for logging.
type Error struct {
	Message string
	Detail  []string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return ErrInvalid }

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	hhmmRe    = regexp.MustCompile(`^\d{2}:\d{2}$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return isoDateRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmRe.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type freeBody struct {
	BirthDate    string   `json:"birthDate"    validate:"required,isodate"      msg:"Invalid date format. Use YYYY-MM-DD"`
	BirthTime    string   `json:"birthTime"    validate:"required,hhmm"         msg:"Invalid time format. Use HH:MM"`
	BirthPlace   string   `json:"birthPlace"   validate:"required,min=2,max=200" msg:"Birth place too short|Birth place too long (max 200 chars)"`
	BirthTimeUTC *string  `json:"birthTimeUtc" validate:"omitempty,max=50"      msg:"Birth time UTC too long"`
	Latitude     *float64 `json:"latitude"     validate:"omitempty,gte=-90,lte=90"   msg:"Latitude out of range"`
	Longitude    *float64 `json:"longitude"    validate:"omitempty,gte=-180,lte=180" msg:"Longitude out of range"`
	DeviceID     *string  `json:"deviceId"     validate:"omitempty,uuid"        msg:"Invalid device ID"`
	CaptchaToken *string  `json:"captchaToken" validate:"omitempty,max=2000"    msg:"Captcha token too long"`
}

type paidBody struct {
	SessionID        string   `json:"sessionId"        validate:"required,min=10,max=200"`
	BirthDateTimeUTC *string  `json:"birthDateTimeUtc" validate:"omitempty,max=50"`
	Lat              *float64 `json:"lat"              validate:"omitempty,gte=-90,lte=90"`
	Lon              *float64 `json:"lon"              validate:"omitempty,gte=-180,lte=180"`
	Name             *string  `json:"name"             validate:"omitempty,max=100"`
	PivotalTheme     *string  `json:"pivotalTheme"     validate:"omitempty,max=50"`
	FreeForecast     *string  `json:"freeForecast"     validate:"omitempty,max=5000"`
	FreeForecastID   *string  `json:"freeForecastId"   validate:"omitempty,uuid"`
	DeviceID         *string  `json:"deviceId"         validate:"omitempty,max=100"`
}

// ParseFree decodes and validates a free-tier body. Field errors aggregate
// into "Invalid input: m1, m2"; undecodable bodies yield "Invalid JSON".
func ParseFree(raw []byte) (domain.GenerationRequest, error) {
	var b freeBody
	if err := json.Unmarshal(raw, &b); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			msg := fmt.Sprintf("%s must be a %s", te.Field, jsonKind(te.Type))
			return domain.GenerationRequest{}, &Error{Message: "Invalid input: " + msg, Detail: []string{msg}}
		}
		return domain.GenerationRequest{}, &Error{Message: MsgInvalidJSON, Detail: []string{err.Error()}}
	}
	if err := validate.Struct(b); err != nil {
		msgs := fieldMessages(err, reflect.TypeOf(b))
		return domain.GenerationRequest{}, &Error{Message: "Invalid input: " + strings.Join(msgs, ", "), Detail: msgs}
	}
	return domain.GenerationRequest{
		BirthDate:    b.BirthDate,
		BirthTime:    b.BirthTime,
		BirthPlace:   b.BirthPlace,
		BirthTimeUTC: deref(b.BirthTimeUTC),
		Latitude:     b.Latitude,
		Longitude:    b.Longitude,
		DeviceID:     deref(b.DeviceID),
		CaptchaToken: deref(b.CaptchaToken),
	}, nil
}

// ParsePaid decodes and validates a paid-tier body. Every failure is
// reported with the same generic message; Detail holds the cause.
func ParsePaid(raw []byte) (domain.PaidGenerationRequest, error) {
	var b paidBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return domain.PaidGenerationRequest{}, &Error{Message: MsgInvalidPaid, Detail: []string{err.Error()}}
	}
	if err := validate.Struct(b); err != nil {
		var detail []string
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				detail = append(detail, fe.Field()+": "+fe.Tag())
			}
		}
		return domain.PaidGenerationRequest{}, &Error{Message: MsgInvalidPaid, Detail: detail}
	}
	return domain.PaidGenerationRequest{
		SessionID:        b.SessionID,
		BirthDateTimeUTC: deref(b.BirthDateTimeUTC),
		Lat:              b.Lat,
		Lon:              b.Lon,
		Name:             deref(b.Name),
		PivotalTheme:     deref(b.PivotalTheme),
		FreeForecast:     deref(b.FreeForecast),
		FreeForecastID:   deref(b.FreeForecastID),
		DeviceID:         deref(b.DeviceID),
	}, nil
}

// LenientDeviceID extracts deviceId from raw without validating anything
// else. It lets admission charge the device counter before validation runs.
// Values that are not strings, or longer than 100 bytes, are ignored.
func LenientDeviceID(raw []byte) string {
	var peek struct {
		DeviceID any `json:"deviceId"`
	}
	if json.Unmarshal(raw, &peek) != nil {
		return ""
	}
	s, ok := peek.DeviceID.(string)
	if !ok || len(s) > 100 {
		return ""
	}
	return strings.TrimSpace(s)
}

// LenientSessionID extracts sessionId from raw. Used to detect replays
// before the body is fully validated.
func LenientSessionID(raw []byte) string {
	var peek struct {
		SessionID any `json:"sessionId"`
	}
	if json.Unmarshal(raw, &peek) != nil {
		return ""
	}
	s, ok := peek.SessionID.(string)
	if !ok || len(s) > 200 {
		return ""
	}
	return s
}

// fieldMessages maps validator errors to the messages declared in each
// field's msg tag. A msg tag of the form "a|b" gives "a" for min and "b"
// for max failures. Missing fields report "<name> is required".
func fieldMessages(err error, t reflect.Type) []string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Tag() == "required" {
			out = append(out, fe.Field()+" is required")
			continue
		}
		sf, ok := t.FieldByName(fe.StructField())
		if !ok {
			out = append(out, fe.Field()+" is invalid")
			continue
		}
		msg := sf.Tag.Get("msg")
		if lo, hi, split := strings.Cut(msg, "|"); split {
			msg = lo
			if fe.Tag() == "max" {
				msg = hi
			}
		}
		if msg == "" {
			msg = fe.Field() + " is invalid"
		}
		out = append(out, msg)
	}
	return out
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64:
		return "number"
	case reflect.String:
		return "string"
	default:
		return t.Kind().String()
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
