package resolver

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"
)

// ageToken matches folder name segments such as 28Y, 28YRS or 28YEARS.
var ageToken = regexp.MustCompile(`^(\d{1,3})Y(?:RS|R|EARS)?$`)

// folderName is the matchable view of a patient folder name such as
// "ANJU_28Y_NCCT_HEAD_1.3.12.2".
type folderName struct {
	words    map[string]bool // Alphabetic tokens anywhere in the name
	namePart string          // Alphabetic tokens before the first age or numeric token
	ages     []int
}

func parseFolderName(name string) folderName {
	tokens := strings.FieldsFunc(norm.NFC.String(strings.ToUpper(name)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	fn := folderName{words: make(map[string]bool)}
	var nameTokens []string
	inName := true

	for _, tok := range tokens {
		if m := ageToken.FindStringSubmatch(tok); m != nil {
			age, _ := strconv.Atoi(m[1])
			fn.ages = append(fn.ages, age)
			inName = false
			continue
		}
		if strings.IndexFunc(tok, unicode.IsDigit) >= 0 {
			inName = false
			continue
		}
		fn.words[tok] = true
		if inName {
			nameTokens = append(nameTokens, tok)
		}
	}

	fn.namePart = strings.Join(nameTokens, " ")
	return fn
}

// exactMatch reports whether the folder's name part equals the patient name.
func (f folderName) exactMatch(patient string) bool {
	return f.namePart != "" && f.namePart == patient
}

// fuzzyMatch accepts a folder when every word of the patient name appears in
// it, or when the name part is within maxDistance edits of the patient name.
func (f folderName) fuzzyMatch(patient string, maxDistance int) bool {
	words := strings.Fields(patient)
	if len(words) == 0 {
		return false
	}

	contained := true
	for _, w := range words {
		if !f.words[w] {
			contained = false
			break
		}
	}
	if contained {
		return true
	}

	if maxDistance <= 0 || f.namePart == "" || utf8.RuneCountInString(strings.ReplaceAll(patient, " ", "")) < minFuzzyLength {
		return false
	}
	return levenshtein.ComputeDistance(f.namePart, patient) <= maxDistance
}

func (f folderName) hasAge(age int) bool {
	for _, a := range f.ages {
		if a == age {
			return true
		}
	}
	return false
}

// tokenScore counts how many of tokens appear in the folder name.
func (f folderName) tokenScore(tokens []string) int {
	score := 0
	for _, tok := range tokens {
		if f.words[tok] {
			score++
		}
	}
	return score
}

// minFuzzyLength is the shortest patient name, in letters, eligible for
// edit-distance matching.
const minFuzzyLength = 4
