package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	isoDurationRe = regexp.MustCompile(`(?i)^P(?:[\d.]+D)?T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?$`)
	minutesTextRe = regexp.MustCompile(`(?i)(\d+)\s*min`)
	hoursTextRe   = regexp.MustCompile(`(?i)(\d+)\s*h(?:ou)?r`)
	firstIntRe    = regexp.MustCompile(`\d+`)
	servesTextRe  = regexp.MustCompile(`(?i)(?:serves|servings?|yield:?)\s*:?\s*(\d+)`)
)

// ParseDurationMinutes parses an ISO-8601 duration ("PT1H30M") into whole
// minutes, rounding up when the seconds component is 30 or more. A
// free-text "N minutes" / "N hours" fallback covers non-ISO values.
func ParseDurationMinutes(value string) *int {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}

	if m := isoDurationRe.FindStringSubmatch(v); m != nil {
		minutes := 0.0
		if m[1] != "" {
			h, _ := strconv.ParseFloat(m[1], 64)
			minutes += h * 60
		}
		if m[2] != "" {
			mm, _ := strconv.ParseFloat(m[2], 64)
			minutes += mm
		}
		total := int(minutes)
		if m[3] != "" {
			s, _ := strconv.ParseFloat(m[3], 64)
			if s >= 30 {
				total++
			}
		}
		if total <= 0 {
			return nil
		}
		return intPtr(total)
	}

	total := 0
	if m := hoursTextRe.FindStringSubmatch(v); m != nil {
		h, _ := strconv.Atoi(m[1])
		total += h * 60
	}
	if m := minutesTextRe.FindStringSubmatch(v); m != nil {
		mm, _ := strconv.Atoi(m[1])
		total += mm
	}
	if total <= 0 {
		return nil
	}
	return intPtr(total)
}

// ParseServings extracts the first integer from a yield value such as
// "4", "4 servings" or "Serves 4-6".
func ParseServings(value string) *int {
	m := firstIntRe.FindString(value)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return nil
	}
	return intPtr(n)
}

// FindServingsInText scans free text for "serves N" / "yield: N" patterns.
func FindServingsInText(text string) *int {
	m := servesTextRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return nil
	}
	return intPtr(n)
}
