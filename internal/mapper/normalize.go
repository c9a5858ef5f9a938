package mapper

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenize splits a field name into lower-case words. Separators, camelCase
// boundaries and letter/digit boundaries all start a new word, and
// diacritics are folded ("Prénom" and "prenom" tokenize the same).
func tokenize(name string) []string {
	name = foldDiacritics(strings.TrimSpace(name))
	if name == "" {
		return nil
	}

	var (
		words []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	rs := []rune(name)
	for i, r := range rs {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && len(cur) > 0 {
			prev := rs[i-1]
			switch {
			case unicode.IsLower(prev) && unicode.IsUpper(r):
				flush()
			case unicode.IsUpper(prev) && unicode.IsUpper(r) && i+1 < len(rs) && unicode.IsLower(rs[i+1]):
				// "SSNNumber" -> "ssn", "number"
				flush()
			case unicode.IsDigit(prev) != unicode.IsDigit(r):
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// key is the separator-free normalized form used for equality checks.
func key(tokens []string) string {
	return strings.Join(tokens, "")
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// abbreviations expands single-token short forms before containment checks.
var abbreviations = map[string]string{
	"addr":  "address",
	"st":    "street",
	"no":    "number",
	"num":   "number",
	"nbr":   "number",
	"tel":   "phone",
	"ph":    "phone",
	"dob":   "birthdate",
	"dt":    "date",
	"fname": "first",
	"lname": "last",
	"mi":    "middle",
	"zip":   "postal",
	"acct":  "account",
	"emp":   "employer",
	"org":   "organization",
	"co":    "company",
}

func expand(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if full, ok := abbreviations[t]; ok {
			t = full
		}
		out = append(out, t)
	}
	return out
}

// concepts groups normalized keys that name the same piece of information.
var concepts = map[string][]string{
	"firstname":  {"firstname", "givenname", "forename", "fname", "first", "prenom"},
	"middlename": {"middlename", "middleinitial", "mi", "middle"},
	"lastname":   {"lastname", "surname", "familyname", "lname", "last", "nom"},
	"fullname":   {"fullname", "name", "completename", "applicantname", "clientname"},
	"email":      {"email", "emailaddress", "mail", "emailaddr", "electronicmail"},
	"phone":      {"phone", "phonenumber", "telephone", "telephonenumber", "tel", "phoneno", "mobile", "mobilenumber", "cell", "cellphone", "cellnumber"},
	"birthdate":  {"birthdate", "dateofbirth", "dob", "birthday", "datebirth"},
	"address":    {"address", "streetaddress", "addr", "street", "addressline1", "address1", "mailingaddress", "homeaddress"},
	"postalcode": {"postalcode", "zip", "zipcode", "postcode", "zippostalcode"},
	"city":       {"city", "town", "locality"},
	"state":      {"state", "province", "region", "stateprovince"},
	"country":    {"country", "nation", "countrycode"},
	"ssn":        {"ssn", "socialsecuritynumber", "socialsecurityno", "taxid", "tin"},
	"income":     {"income", "salary", "annualincome", "annualsalary", "wages"},
	"employer":   {"employer", "employername", "company", "companyname", "organization"},
	"website":    {"website", "url", "homepage", "web", "site"},
}

var conceptIndex = func() map[string]string {
	idx := make(map[string]string)
	for concept, aliases := range concepts {
		for _, a := range aliases {
			idx[a] = concept
		}
	}
	return idx
}()

// conceptOf returns the concept a normalized key belongs to, or "".
func conceptOf(k string) string {
	return conceptIndex[k]
}
