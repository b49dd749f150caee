// Package timeutil formats times in Brasília time (UTC-3) for the Portuguese
// front-end, the XLSX export and the roster report.
package timeutil

import (
	"fmt"
	"time"
)

// BrasiliaTZ is America/Sao_Paulo. Brazil abolished DST in 2019, so a fixed
// zone avoids depending on the tzdata of the host.
var BrasiliaTZ = time.FixedZone("America/Sao_Paulo", -3*60*60)

// nowFunc is swapped in tests.
var nowFunc = time.Now

// Now returns the current time in Brasília.
func Now() time.Time {
	return nowFunc().In(BrasiliaTZ)
}

// ToBrasilia converts a time to Brasília time.
func ToBrasilia(t time.Time) time.Time {
	return t.In(BrasiliaTZ)
}

// Common layouts.
const (
	FormatDate       = "2006-01-02"
	FormatTime       = "15:04"
	FormatBRDate     = "02/01/2006"
	FormatBRDateTime = "02/01/2006 15:04"
)

// FormatBR formats t as DD/MM/YYYY HH:MM in Brasília time.
func FormatBR(t time.Time) string {
	return ToBrasilia(t).Format(FormatBRDateTime)
}

// FormatBRDay formats t as DD/MM/YYYY in Brasília time.
func FormatBRDay(t time.Time) string {
	return ToBrasilia(t).Format(FormatBRDate)
}

// FormatRelative returns a Portuguese relative time string ("há 5 min").
func FormatRelative(t time.Time) string {
	d := Now().Sub(ToBrasilia(t))
	if d < 0 {
		return formatFuture(-d)
	}
	return formatPast(d)
}

func formatPast(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "agora mesmo"
	case d < time.Hour:
		return fmt.Sprintf("há %d min", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("há %d h", int(d.Hours()))
	case d < 48*time.Hour:
		return "ontem"
	case d < 30*24*time.Hour:
		return fmt.Sprintf("há %d dias", int(d.Hours()/24))
	default:
		months := int(d.Hours() / 24 / 30)
		if months < 12 {
			if months == 1 {
				return "há 1 mês"
			}
			return fmt.Sprintf("há %d meses", months)
		}
		years := months / 12
		if years == 1 {
			return "há 1 ano"
		}
		return fmt.Sprintf("há %d anos", years)
	}
}

func formatFuture(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "agora"
	case d < time.Hour:
		return fmt.Sprintf("em %d min", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("em %d h", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "amanhã"
		}
		return fmt.Sprintf("em %d dias", days)
	}
}

// ParseBR parses DD/MM/YYYY HH:MM in Brasília time.
func ParseBR(value string) (time.Time, error) {
	return time.ParseInLocation(FormatBRDateTime, value, BrasiliaTZ)
}
