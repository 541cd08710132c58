// Identity-factor extraction for the guest order-lookup flow.
//
// A lookup needs an order id plus at least two of {dni, name, lastName,
// phone}. Users paste these in free text ("pedido 12345, dni 30123456,
// soy Ana Pérez, tel 11-5555-4444"), so extraction is label-driven with a
// couple of positional fallbacks, and every factor passes a basic format
// check before it counts.
package nlp

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// titleCaser capitalizes extracted names ("ana" → "Ana").
var titleCaser = cases.Title(language.Spanish)

// IdentityFactors is the parse result over one user message.
type IdentityFactors struct {
	OrderID  string
	DNI      string
	Name     string
	LastName string
	Phone    string
}

// FactorCount returns how many of the four identity factors are present
// (the order id is a prerequisite, not a factor).
func (f IdentityFactors) FactorCount() int {
	n := 0
	if f.DNI != "" {
		n++
	}
	if f.Name != "" {
		n++
	}
	if f.LastName != "" {
		n++
	}
	if f.Phone != "" {
		n++
	}
	return n
}

// RequiredFactors is the minimum number of identity factors, besides the
// order id, needed to execute a lookup.
const RequiredFactors = 2

// Sufficient reports whether a lookup may be executed.
func (f IdentityFactors) Sufficient() bool {
	return f.OrderID != "" && f.FactorCount() >= RequiredFactors
}

// MissingFactors returns how many more factors are needed (0 when sufficient).
func (f IdentityFactors) MissingFactors() int {
	missing := RequiredFactors - f.FactorCount()
	if missing < 0 {
		return 0
	}
	return missing
}

var (
	// Order ids: labeled ("pedido #12345", "orden 12345", "order A-12345")
	// or a bare 5+ digit run when nothing else claims it.
	orderLabeledRE = regexp.MustCompile(`(?i)\b(?:pedido|orden|order|compra|nro\s*de\s*pedido)\s*[:#]?\s*([A-Z]{0,3}-?\d{4,12})\b`)
	orderBareRE    = regexp.MustCompile(`\b(\d{5,12})\b`)

	// DNI: 7–9 digits, labeled or bare; dots tolerated ("30.123.456").
	dniLabeledRE = regexp.MustCompile(`(?i)\bdni\s*[:#]?\s*(\d{1,2}\.?\d{3}\.?\d{3}|\d{7,9})\b`)
	dniBareRE    = regexp.MustCompile(`\b(\d{1,2}\.?\d{3}\.?\d{3}|\d{7,9})\b`)

	// Phones: 8+ digits once separators are dropped; labeled or bare.
	phoneLabeledRE = regexp.MustCompile(`(?i)\b(?:tel|telefono|teléfono|cel|celular|whatsapp)\s*[:#]?\s*(\+?[\d\s.\-()]{8,20})`)
	phoneBareRE    = regexp.MustCompile(`(\+?\d[\d\s.\-()]{7,19}\d)`)

	// Names: labeled captures ("nombre: Ana", "apellido Perez", "soy Ana Perez",
	// "me llamo Ana Perez").
	nameLabeledRE     = regexp.MustCompile(`(?i)\bnombre\s*[:#]?\s*([\p{L}]{2,30})`)
	lastNameLabeledRE = regexp.MustCompile(`(?i)\bapellido\s*[:#]?\s*([\p{L}]{2,30})`)
	selfIntroRE       = regexp.MustCompile(`(?i)\b(?:soy|me llamo)\s+([\p{L}]{2,30})(?:\s+([\p{L}]{2,30}))?`)

	digitsOnlyRE = regexp.MustCompile(`\D`)
)

// ExtractIdentityFactors parses an order id and identity factors from free
// text. Extraction is conservative: a candidate that fails its format check
// is dropped rather than guessed at, and the same digit run is never counted
// as two different factors.
func ExtractIdentityFactors(text string) IdentityFactors {
	var f IdentityFactors
	taken := map[string]struct{}{} // digit runs already claimed

	if m := orderLabeledRE.FindStringSubmatch(text); m != nil {
		f.OrderID = strings.ToUpper(m[1])
		taken[digitsOnlyRE.ReplaceAllString(m[1], "")] = struct{}{}
	}

	if m := dniLabeledRE.FindStringSubmatch(text); m != nil {
		if d := digitsOnlyRE.ReplaceAllString(m[1], ""); validDNI(d) {
			f.DNI = d
			taken[d] = struct{}{}
		}
	}

	if m := phoneLabeledRE.FindStringSubmatch(text); m != nil {
		if d := digitsOnlyRE.ReplaceAllString(m[1], ""); validPhone(d) {
			if _, used := taken[d]; !used {
				f.Phone = d
				taken[d] = struct{}{}
			}
		}
	}

	if m := nameLabeledRE.FindStringSubmatch(text); m != nil && validName(m[1]) {
		f.Name = titleCaser.String(strings.ToLower(m[1]))
	}
	if m := lastNameLabeledRE.FindStringSubmatch(text); m != nil && validName(m[1]) {
		f.LastName = titleCaser.String(strings.ToLower(m[1]))
	}
	if m := selfIntroRE.FindStringSubmatch(text); m != nil {
		if f.Name == "" && validName(m[1]) {
			f.Name = titleCaser.String(strings.ToLower(m[1]))
		}
		if f.LastName == "" && len(m) > 2 && m[2] != "" && validName(m[2]) {
			f.LastName = titleCaser.String(strings.ToLower(m[2]))
		}
	}

	// Positional fallbacks for unlabeled digit runs, longest first so an
	// 11-digit phone is not mistaken for a DNI.
	if f.Phone == "" {
		for _, m := range phoneBareRE.FindAllStringSubmatch(text, -1) {
			d := digitsOnlyRE.ReplaceAllString(m[1], "")
			if _, used := taken[d]; used || !validPhone(d) {
				continue
			}
			// A bare 7-9 digit run is ambiguous with a DNI; only claim it
			// as a phone when it is longer than any DNI.
			if len(d) <= 9 {
				continue
			}
			f.Phone = d
			taken[d] = struct{}{}
			break
		}
	}
	if f.DNI == "" {
		for _, m := range dniBareRE.FindAllStringSubmatch(text, -1) {
			d := digitsOnlyRE.ReplaceAllString(m[1], "")
			if _, used := taken[d]; used || !validDNI(d) {
				continue
			}
			f.DNI = d
			taken[d] = struct{}{}
			break
		}
	}
	if f.OrderID == "" {
		for _, m := range orderBareRE.FindAllStringSubmatch(text, -1) {
			d := m[1]
			if _, used := taken[d]; used {
				continue
			}
			f.OrderID = d
			taken[d] = struct{}{}
			break
		}
	}

	return f
}

func validDNI(digits string) bool {
	return len(digits) >= 7 && len(digits) <= 9
}

func validPhone(digits string) bool {
	return len(digits) >= 8 && len(digits) <= 15
}

func validName(s string) bool {
	if len([]rune(s)) < 2 {
		return false
	}
	// Normalized stop-list keeps labels and fillers from masquerading as names.
	switch NormalizeText(s) {
	case "pedido", "orden", "dni", "tel", "telefono", "celular", "numero", "nro":
		return false
	}
	return true
}
