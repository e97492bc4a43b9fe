package timezone

import (
	"sort"
	"strings"
	"time"
)

// locationTable maps lowercase countries, cities, and common timezone
// abbreviations to IANA zone names. This is the curated lookup used by the
// profile and location detection methods.
var locationTable = map[string]string{
	// Southeast / East Asia
	"thailand":    "Asia/Bangkok",
	"bangkok":     "Asia/Bangkok",
	"vietnam":     "Asia/Ho_Chi_Minh",
	"hanoi":       "Asia/Ho_Chi_Minh",
	"ho chi minh": "Asia/Ho_Chi_Minh",
	"japan":       "Asia/Tokyo",
	"tokyo":       "Asia/Tokyo",
	"osaka":       "Asia/Tokyo",
	"korea":       "Asia/Seoul",
	"south korea": "Asia/Seoul",
	"seoul":       "Asia/Seoul",
	"china":       "Asia/Shanghai",
	"shanghai":    "Asia/Shanghai",
	"beijing":     "Asia/Shanghai",
	"taiwan":      "Asia/Taipei",
	"taipei":      "Asia/Taipei",
	"hong kong":   "Asia/Hong_Kong",
	"singapore":   "Asia/Singapore",
	"indonesia":   "Asia/Jakarta",
	"jakarta":     "Asia/Jakarta",
	"philippines": "Asia/Manila",
	"manila":      "Asia/Manila",
	"malaysia":    "Asia/Kuala_Lumpur",

	// South / West Asia
	"india":     "Asia/Kolkata",
	"mumbai":    "Asia/Kolkata",
	"delhi":     "Asia/Kolkata",
	"uae":       "Asia/Dubai",
	"dubai":     "Asia/Dubai",
	"israel":    "Asia/Jerusalem",
	"turkey":    "Europe/Istanbul",
	"istanbul":  "Europe/Istanbul",

	// Europe
	"uk":             "Europe/London",
	"united kingdom": "Europe/London",
	"england":        "Europe/London",
	"london":         "Europe/London",
	"germany":        "Europe/Berlin",
	"berlin":         "Europe/Berlin",
	"france":         "Europe/Paris",
	"paris":          "Europe/Paris",
	"spain":          "Europe/Madrid",
	"madrid":         "Europe/Madrid",
	"italy":          "Europe/Rome",
	"rome":           "Europe/Rome",
	"netherlands":    "Europe/Amsterdam",
	"amsterdam":      "Europe/Amsterdam",
	"poland":         "Europe/Warsaw",
	"warsaw":         "Europe/Warsaw",
	"russia":         "Europe/Moscow",
	"moscow":         "Europe/Moscow",

	// Africa
	"egypt":        "Africa/Cairo",
	"cairo":        "Africa/Cairo",
	"south africa": "Africa/Johannesburg",
	"nigeria":      "Africa/Lagos",

	// Americas
	"usa":           "America/New_York",
	"united states": "America/New_York",
	"new york":      "America/New_York",
	"chicago":       "America/Chicago",
	"denver":        "America/Denver",
	"los angeles":   "America/Los_Angeles",
	"san francisco": "America/Los_Angeles",
	"seattle":       "America/Los_Angeles",
	"canada":        "America/Toronto",
	"toronto":       "America/Toronto",
	"vancouver":     "America/Vancouver",
	"mexico":        "America/Mexico_City",
	"mexico city":   "America/Mexico_City",
	"brazil":        "America/Sao_Paulo",
	"sao paulo":     "America/Sao_Paulo",
	"argentina":     "America/Argentina/Buenos_Aires",
	"buenos aires":  "America/Argentina/Buenos_Aires",

	// Oceania
	"australia":   "Australia/Sydney",
	"sydney":      "Australia/Sydney",
	"melbourne":   "Australia/Melbourne",
	"new zealand": "Pacific/Auckland",
	"auckland":    "Pacific/Auckland",

	// Abbreviations accepted in profile fields
	"utc": "UTC",
	"gmt": "Europe/London",
	"jst": "Asia/Tokyo",
	"kst": "Asia/Seoul",
	"ist": "Asia/Kolkata",
	"cet": "Europe/Berlin",
	"bst": "Europe/London",
	"est": "America/New_York",
	"edt": "America/New_York",
	"cst": "America/Chicago",
	"cdt": "America/Chicago",
	"mst": "America/Denver",
	"pst": "America/Los_Angeles",
	"pdt": "America/Los_Angeles",
}

// languageTable maps ISO language codes to a heuristic home timezone.
// Deliberately low-confidence: a language only weakly locates a user.
var languageTable = map[string]string{
	"th": "Asia/Bangkok",
	"ja": "Asia/Tokyo",
	"ko": "Asia/Seoul",
	"zh": "Asia/Shanghai",
	"vi": "Asia/Ho_Chi_Minh",
	"id": "Asia/Jakarta",
	"hi": "Asia/Kolkata",
	"ar": "Asia/Dubai",
	"tr": "Europe/Istanbul",
	"ru": "Europe/Moscow",
	"de": "Europe/Berlin",
	"fr": "Europe/Paris",
	"es": "Europe/Madrid",
	"it": "Europe/Rome",
	"nl": "Europe/Amsterdam",
	"pl": "Europe/Warsaw",
	"pt": "America/Sao_Paulo",
	"en": "America/New_York",
}

// messageAbbrevTable maps timezone abbreviations recognized inside free-text
// messages (matched as standalone uppercase tokens).
var messageAbbrevTable = map[string]string{
	"JST":  "Asia/Tokyo",
	"KST":  "Asia/Seoul",
	"ICT":  "Asia/Bangkok",
	"IST":  "Asia/Kolkata",
	"SGT":  "Asia/Singapore",
	"CET":  "Europe/Berlin",
	"CEST": "Europe/Berlin",
	"BST":  "Europe/London",
	"MSK":  "Europe/Moscow",
	"EST":  "America/New_York",
	"EDT":  "America/New_York",
	"CST":  "America/Chicago",
	"CDT":  "America/Chicago",
	"MST":  "America/Denver",
	"PST":  "America/Los_Angeles",
	"PDT":  "America/Los_Angeles",
	"AEST": "Australia/Sydney",
	"NZST": "Pacific/Auckland",
}

// zoneStandardOffsets maps known IANA names to their standard UTC offset in
// hours. Used only as the degraded fallback when the zone database is not
// consulted and for nearest-zone matching.
var zoneStandardOffsets = map[string]float64{
	"UTC":                            0,
	"Asia/Bangkok":                   7,
	"Asia/Ho_Chi_Minh":               7,
	"Asia/Jakarta":                   7,
	"Asia/Tokyo":                     9,
	"Asia/Seoul":                     9,
	"Asia/Shanghai":                  8,
	"Asia/Taipei":                    8,
	"Asia/Hong_Kong":                 8,
	"Asia/Singapore":                 8,
	"Asia/Kuala_Lumpur":              8,
	"Asia/Manila":                    8,
	"Asia/Kolkata":                   5.5,
	"Asia/Dubai":                     4,
	"Asia/Jerusalem":                 2,
	"Europe/Istanbul":                3,
	"Europe/Moscow":                  3,
	"Europe/London":                  0,
	"Europe/Berlin":                  1,
	"Europe/Paris":                   1,
	"Europe/Madrid":                  1,
	"Europe/Rome":                    1,
	"Europe/Amsterdam":               1,
	"Europe/Warsaw":                  1,
	"Africa/Cairo":                   2,
	"Africa/Johannesburg":            2,
	"Africa/Lagos":                   1,
	"America/New_York":               -5,
	"America/Toronto":                -5,
	"America/Chicago":                -6,
	"America/Mexico_City":            -6,
	"America/Denver":                 -7,
	"America/Los_Angeles":            -8,
	"America/Vancouver":              -8,
	"America/Sao_Paulo":              -3,
	"America/Argentina/Buenos_Aires": -3,
	"Australia/Sydney":               10,
	"Australia/Melbourne":            10,
	"Pacific/Auckland":               12,
}

// sortedZoneNames holds zoneStandardOffsets keys in lexical order so
// nearest-offset lookup is deterministic.
var sortedZoneNames = func() []string {
	names := make([]string, 0, len(zoneStandardOffsets))
	for name := range zoneStandardOffsets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

// lookupLocation resolves a free-form location string against the curated
// table.
func lookupLocation(value string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "", false
	}
	zone, ok := locationTable[normalized]
	return zone, ok
}

// isKnownZone reports whether the value itself is a usable IANA zone name.
func isKnownZone(value string) bool {
	if _, ok := zoneStandardOffsets[value]; ok {
		return true
	}
	_, err := time.LoadLocation(value)
	return err == nil && strings.Contains(value, "/")
}

// findZoneByOffset returns the known zone closest to the given UTC offset.
// Returns false when no zone lies within 1.0 hour. Lexically first name wins
// among equally close zones.
func findZoneByOffset(offset float64) (string, bool) {
	const tolerance = 1.0

	best := ""
	bestDistance := tolerance + 1
	for _, name := range sortedZoneNames {
		distance := offset - zoneStandardOffsets[name]
		if distance < 0 {
			distance = -distance
		}
		if distance < bestDistance {
			best = name
			bestDistance = distance
		}
	}

	if bestDistance > tolerance {
		return "", false
	}
	return best, true
}

// zoneOffsetAt resolves the UTC offset in hours for a zone at the given
// instant. The zone database is the primary path; the static table is the
// degraded fallback; unresolvable names yield 0.0.
func zoneOffsetAt(name string, at time.Time) float64 {
	if loc, err := time.LoadLocation(name); err == nil {
		_, offsetSeconds := at.In(loc).Zone()
		return float64(offsetSeconds) / 3600.0
	}
	if offset, ok := zoneStandardOffsets[name]; ok {
		return offset
	}
	return 0.0
}
