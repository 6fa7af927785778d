// Package horoscope maps birth dates to zodiac signs.
package horoscope

import "time"

// Signs lists every zodiac sign identifier in calendar order starting from
// the vernal equinox.
var Signs = []string{
	"aries", "taurus", "gemini", "cancer", "leo", "virgo",
	"libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces",
}

// DisplayNames maps sign identifiers to user-facing names.
var DisplayNames = map[string]string{
	"aries":       "Овен",
	"taurus":      "Телец",
	"gemini":      "Близнецы",
	"cancer":      "Рак",
	"leo":         "Лев",
	"virgo":       "Дева",
	"libra":       "Весы",
	"scorpio":     "Скорпион",
	"sagittarius": "Стрелец",
	"capricorn":   "Козерог",
	"aquarius":    "Водолей",
	"pisces":      "Рыбы",
}

// Sign returns the zodiac sign identifier for a birth date.
func Sign(birthDate time.Time) string {
	month := int(birthDate.Month())
	day := birthDate.Day()
	switch {
	case (month == 3 && day >= 21) || (month == 4 && day <= 19):
		return "aries"
	case (month == 4 && day >= 20) || (month == 5 && day <= 20):
		return "taurus"
	case (month == 5 && day >= 21) || (month == 6 && day <= 20):
		return "gemini"
	case (month == 6 && day >= 21) || (month == 7 && day <= 22):
		return "cancer"
	case (month == 7 && day >= 23) || (month == 8 && day <= 22):
		return "leo"
	case (month == 8 && day >= 23) || (month == 9 && day <= 22):
		return "virgo"
	case (month == 9 && day >= 23) || (month == 10 && day <= 22):
		return "libra"
	case (month == 10 && day >= 23) || (month == 11 && day <= 21):
		return "scorpio"
	case (month == 11 && day >= 22) || (month == 12 && day <= 21):
		return "sagittarius"
	case (month == 12 && day >= 22) || (month == 1 && day <= 19):
		return "capricorn"
	case (month == 1 && day >= 20) || (month == 2 && day <= 18):
		return "aquarius"
	default:
		return "pisces"
	}
}
