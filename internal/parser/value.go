package parser

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
)

// Calendar model and globe ids used for time and coordinate values
const (
	calendarGregorian = "http://www.wikidata.org/entity/Q1985727"
	calendarJulian    = "http://www.wikidata.org/entity/Q1985786"
	globeEarth        = "http://www.wikidata.org/entity/Q2"
	unitPrefix        = "http://www.wikidata.org/entity/Q"
)

// commonsExtensions gates which triple-quoted values are treated as Commons
// media filenames rather than generic external ids.
var commonsExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true,
	".tif": true, ".tiff": true, ".webp": true, ".xcf": true, ".pdf": true,
	".djvu": true, ".ogg": true, ".oga": true, ".ogv": true, ".wav": true,
	".webm": true, ".mp3": true, ".mp4": true, ".mid": true, ".flac": true,
	".stl": true, ".map": true,
}

// ParseValue classifies a value token by trying each grammar rule in a
// fixed priority order. The triple-quoted forms (URL, Commons media,
// external id) overlap syntactically and with the plain-string rule;
// disambiguation is by this order alone, on purpose. Returns ok=false when
// no rule matches.
func ParseValue(s string) (domain.Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Value{}, false
	}

	switch s {
	case "somevalue":
		return domain.SomeValue(), true
	case "novalue":
		return domain.NoValue(), true
	}

	if id, ok := parseEntityID(s); ok {
		return domain.EntityValue(id), true
	}

	if inner, ok := tripleQuoted(s); ok {
		switch {
		case isURL(inner):
			return domain.StringValue(inner), true
		case isCommonsMedia(inner):
			return domain.StringValue(inner), true
		default:
			// generic external identifier
			return domain.StringValue(inner), true
		}
	}

	if v, ok := parseMonolingual(s); ok {
		return v, true
	}

	if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) && len(s) >= 2 {
		return domain.StringValue(s[1 : len(s)-1]), true
	}

	if v, ok := parseTime(s); ok {
		return v, true
	}

	if v, ok := parseCoordinate(s); ok {
		return v, true
	}

	if v, ok := parseQuantity(s); ok {
		return v, true
	}

	return domain.Value{}, false
}

// parseEntityID accepts item, property, lexeme, form, sense and mediainfo
// ids plus the LAST placeholder. Ids are uppercased.
func parseEntityID(s string) (string, bool) {
	up := strings.ToUpper(s)
	if up == domain.LastPlaceholder {
		return up, true
	}
	if domain.IsEntityID(up) {
		return up, true
	}
	return "", false
}

func tripleQuoted(s string) (string, bool) {
	if len(s) >= 6 && strings.HasPrefix(s, `"""`) && strings.HasSuffix(s, `"""`) {
		return s[3 : len(s)-3], true
	}
	return "", false
}

func isURL(s string) bool {
	for _, scheme := range []string{"http://", "https://", "ftp://", "ftps://"} {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

func isCommonsMedia(s string) bool {
	dot := strings.LastIndex(s, ".")
	if dot < 0 {
		return false
	}
	return commonsExtensions[strings.ToLower(s[dot:])]
}

func parseMonolingual(s string) (domain.Value, bool) {
	colon := strings.Index(s, ":")
	if colon <= 0 {
		return domain.Value{}, false
	}
	lang, rest := s[:colon], s[colon+1:]
	if !isLanguageCode(lang) {
		return domain.Value{}, false
	}
	if len(rest) < 2 || !strings.HasPrefix(rest, `"`) || !strings.HasSuffix(rest, `"`) {
		return domain.Value{}, false
	}
	return domain.Value{
		Type: domain.ValueMonolingual,
		Mono: &domain.MonolingualText{Language: lang, Text: rest[1 : len(rest)-1]},
	}, true
}

func isLanguageCode(s string) bool {
	if len(s) < 2 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		case r == '-' && i > 0:
		default:
			return false
		}
	}
	return true
}

// parseTime recognizes ±YYYY-MM-DDThh:mm:ssZ[/precision][/J]. Precision
// defaults by which date components are nonzero: 9 (year) when the month
// is 00, 10 (month) when the day is 00, 11 (day) otherwise. A trailing /J
// selects the Julian calendar model.
func parseTime(s string) (domain.Value, bool) {
	julian := false
	if strings.HasSuffix(s, "/J") {
		julian = true
		s = s[:len(s)-2]
	}

	precision := -1
	if slash := strings.Index(s, "/"); slash >= 0 {
		p, rest := s[slash+1:], s[:slash]
		n := 0
		for _, r := range p {
			if r < '0' || r > '9' {
				return domain.Value{}, false
			}
			n = n*10 + int(r-'0')
		}
		if p == "" || n > 14 {
			return domain.Value{}, false
		}
		precision = n
		s = rest
	}

	if len(s) < 20 || (s[0] != '+' && s[0] != '-') || !strings.HasSuffix(s, "Z") {
		return domain.Value{}, false
	}
	body := s[1 : len(s)-1]
	// YYYY-MM-DDThh:mm:ss with at least four year digits
	tIdx := strings.Index(body, "T")
	if tIdx < 10 {
		return domain.Value{}, false
	}
	date, clock := body[:tIdx], body[tIdx+1:]
	dateParts := strings.Split(date, "-")
	if len(dateParts) != 3 || len(dateParts[0]) < 4 ||
		len(dateParts[1]) != 2 || len(dateParts[2]) != 2 {
		return domain.Value{}, false
	}
	clockParts := strings.Split(clock, ":")
	if len(clockParts) != 3 {
		return domain.Value{}, false
	}
	for _, part := range append(dateParts, clockParts...) {
		if !allDigits(part) {
			return domain.Value{}, false
		}
	}

	if precision < 0 {
		switch {
		case dateParts[1] == "00":
			precision = 9
		case dateParts[2] == "00":
			precision = 10
		default:
			precision = 11
		}
	}

	calendar := calendarGregorian
	if julian {
		calendar = calendarJulian
	}
	return domain.Value{
		Type: domain.ValueTime,
		Time: &domain.TimeValue{Time: s, Precision: precision, CalendarModel: calendar},
	}, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseCoordinate recognizes @lat/lon
func parseCoordinate(s string) (domain.Value, bool) {
	if !strings.HasPrefix(s, "@") {
		return domain.Value{}, false
	}
	parts := strings.Split(s[1:], "/")
	if len(parts) != 2 {
		return domain.Value{}, false
	}
	lat, err1 := decimal.NewFromString(parts[0])
	lon, err2 := decimal.NewFromString(parts[1])
	if err1 != nil || err2 != nil {
		return domain.Value{}, false
	}
	latF, _ := lat.Float64()
	lonF, _ := lon.Float64()
	return domain.Value{
		Type: domain.ValueCoordinate,
		Coord: &domain.Coordinate{
			Latitude:  latF,
			Longitude: lonF,
			Precision: 0.000001,
			Globe:     globeEarth,
		},
	}, true
}

// parseQuantity recognizes amount[~error][U<unit>]. Uncertainty bounds are
// computed with exact decimal arithmetic so 9~0.1 yields 8.9 and 9.1, not
// float neighbors.
func parseQuantity(s string) (domain.Value, bool) {
	unit := "1"
	if u := strings.LastIndex(s, "U"); u >= 0 {
		unitID := s[u+1:]
		if !allDigits(unitID) {
			return domain.Value{}, false
		}
		unit = unitPrefix + unitID
		s = s[:u]
	}

	var errPart string
	if tilde := strings.Index(s, "~"); tilde >= 0 {
		errPart = s[tilde+1:]
		s = s[:tilde]
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return domain.Value{}, false
	}

	q := &domain.Quantity{Amount: signedDecimal(amount), Unit: unit}
	if errPart != "" {
		tolerance, err := decimal.NewFromString(errPart)
		if err != nil || tolerance.IsNegative() {
			return domain.Value{}, false
		}
		q.LowerBound = signedDecimal(amount.Sub(tolerance))
		q.UpperBound = signedDecimal(amount.Add(tolerance))
	}
	return domain.Value{Type: domain.ValueQuantity, Qty: q}, true
}

// signedDecimal renders a decimal with an explicit sign, as the remote API
// expects for quantity amounts.
func signedDecimal(d decimal.Decimal) string {
	s := d.String()
	if !strings.HasPrefix(s, "-") {
		return "+" + s
	}
	return s
}
