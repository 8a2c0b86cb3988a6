// Package ocr turns raw OCR detections from a KTP into structured identity
// fields. Parsing is heuristic and never fails: a field that cannot be
// found is left nil.
package ocr

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/ekyc-ai-support/internal/ekyc"
)

var (
	nikPattern  = regexp.MustCompile(`\b\d{12,17}\b`)
	rtRwPattern = regexp.MustCompile(`RT/?RW[:\s]*([0-9]{1,3}\s*/\s*[0-9]{1,3})`)
	spaceRun    = regexp.MustCompile(`\s+`)
)

// Label vocabulary. Longer spellings come first so that "KEL/DESA" wins
// over "KEL".
var (
	labelsName           = []string{"NAMA"}
	labelsBirthPlaceDate = []string{"TEMPAT/TGL LAHIR", "TEMPAT / TGL LAHIR", "TEMPAT/ TGL LAHIR"}
	labelsGender         = []string{"JENIS KELAMIN"}
	labelsBloodType      = []string{"GOL DARAH", "GOLDARAH"}
	labelsAddress        = []string{"ALAMAT"}
	labelsRtRw           = []string{"RT/RW"}
	labelsVillage        = []string{"KEL/DESA", "KEL", "DESA"}
	labelsSubDistrict    = []string{"KECAMATAN", "KEC"}
	labelsReligion       = []string{"AGAMA"}
	labelsMaritalStatus  = []string{"STATUS PERKAWINAN"}
	labelsOccupation     = []string{"PEKERJAAN"}
	labelsCitizenship    = []string{"KEWARGANEGARAAN"}
	labelsIssueDate      = []string{"BERLAKU HINGGA"}
	labelsNIK            = []string{"NIK"}
)

// addressStopLabels end a multi-line address.
var addressStopLabels = [][]string{
	labelsNIK, labelsName, labelsBirthPlaceDate, labelsGender, labelsBloodType,
	labelsRtRw, labelsVillage, labelsSubDistrict, labelsReligion,
	labelsMaritalStatus, labelsOccupation, labelsCitizenship, labelsIssueDate,
}

var allLabelGroups = append([][]string{labelsAddress}, addressStopLabels...)

// Denoise normalises one OCR line: pipes read as I, line breaks and
// whitespace runs collapse to one space, and the text is upper-cased.
func Denoise(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "|", "I")
	return strings.ToUpper(strings.TrimSpace(spaceRun.ReplaceAllString(text, " ")))
}

// ParseKtpFields extracts KTP fields from OCR lines. Lines are denoised
// first. Lines that were not consumed by a label, do not start with one and
// do not equal an extracted value are kept in ExtraFields under "line_<n>",
// n being the 1-based line position.
func ParseKtpFields(lines []string) ekyc.KtpOcrResult {
	normalized := make([]string, len(lines))
	for i, l := range lines {
		normalized[i] = Denoise(l)
	}

	r := ekyc.KtpOcrResult{
		NIK:           extractNIK(normalized),
		Name:          extractByLabel(normalized, labelsName),
		Gender:        extractByLabel(normalized, labelsGender),
		BloodType:     extractByLabel(normalized, labelsBloodType),
		RtRw:          extractRtRw(normalized),
		Village:       extractByLabel(normalized, labelsVillage),
		SubDistrict:   extractByLabel(normalized, labelsSubDistrict),
		Religion:      extractByLabel(normalized, labelsReligion),
		MaritalStatus: extractByLabel(normalized, labelsMaritalStatus),
		Occupation:    extractByLabel(normalized, labelsOccupation),
		Citizenship:   extractByLabel(normalized, labelsCitizenship),
		IssueDate:     extractByLabel(normalized, labelsIssueDate),
		RawText:       strings.Join(nonEmpty(normalized), "\n"),
	}
	var consumed map[int]bool
	r.Address, consumed = extractAddress(normalized)
	r.BirthPlace, r.BirthDate = extractBirthInfo(normalized)
	r.ExtraFields = collectExtras(normalized, knownValues(r), consumed)
	return r
}

func extractNIK(lines []string) *string {
	for _, line := range lines {
		if m := nikPattern.FindString(line); m != "" {
			return &m
		}
	}
	return nil
}

// extractByLabel finds the first line containing one of labels and returns
// the text after the label, or the following line when nothing follows it
// on the same line.
func extractByLabel(lines []string, labels []string) *string {
	for i, line := range lines {
		for _, label := range labels {
			at := labelIndex(line, label)
			if at < 0 {
				continue
			}
			if value := strings.Trim(line[at+len(label):], " :"); value != "" {
				return &value
			}
			if i+1 < len(lines) {
				next := strings.TrimSpace(lines[i+1])
				return &next
			}
		}
	}
	return nil
}

// extractAddress joins the value of the ALAMAT line with the lines below it
// up to the next labelled line. It also returns the positions of the
// continuation lines it absorbed.
func extractAddress(lines []string) (*string, map[int]bool) {
	for i, line := range lines {
		at := labelIndex(line, labelsAddress[0])
		if at < 0 {
			continue
		}
		var chunks []string
		consumed := make(map[int]bool)
		if v := strings.Trim(line[at+len(labelsAddress[0]):], " :"); v != "" {
			chunks = append(chunks, v)
		}
		for j := i + 1; j < len(lines); j++ {
			if containsOtherLabel(lines[j]) {
				break
			}
			if c := strings.TrimSpace(lines[j]); c != "" {
				chunks = append(chunks, c)
				consumed[j] = true
			}
		}
		if len(chunks) == 0 {
			return nil, nil
		}
		address := strings.Join(chunks, " ")
		return &address, consumed
	}
	return nil, nil
}

func containsOtherLabel(line string) bool {
	for _, group := range addressStopLabels {
		for _, label := range group {
			if labelIndex(line, label) >= 0 {
				return true
			}
		}
	}
	return false
}

func extractRtRw(lines []string) *string {
	for _, line := range lines {
		if m := rtRwPattern.FindStringSubmatch(strings.ReplaceAll(line, " ", "")); m != nil {
			v := strings.ReplaceAll(m[1], " ", "")
			return &v
		}
	}
	return extractByLabel(lines, labelsRtRw)
}

// extractBirthInfo splits "JAKARTA, 17-08-1990" into place and date.
func extractBirthInfo(lines []string) (place, date *string) {
	raw := extractByLabel(lines, labelsBirthPlaceDate)
	if raw == nil {
		return nil, nil
	}
	tokens := strings.Fields(strings.ReplaceAll(*raw, ",", " "))
	if len(tokens) == 0 {
		return nil, nil
	}
	place = &tokens[0]
	if len(tokens) > 1 {
		d := strings.Join(tokens[1:], " ")
		date = &d
	}
	return place, date
}

func knownValues(r ekyc.KtpOcrResult) map[string]struct{} {
	known := make(map[string]struct{})
	for _, v := range []*string{
		r.NIK, r.Name, r.BirthPlace, r.BirthDate, r.Gender, r.BloodType, r.Address,
		r.RtRw, r.Village, r.SubDistrict, r.Religion, r.MaritalStatus,
		r.Occupation, r.Citizenship, r.IssueDate,
	} {
		if v != nil && *v != "" {
			known[*v] = struct{}{}
		}
	}
	return known
}

func collectExtras(lines []string, known map[string]struct{}, consumed map[int]bool) map[string]string {
	extras := make(map[string]string)
	for i, line := range lines {
		if strings.TrimSpace(line) == "" || consumed[i] || startsWithLabel(line) {
			continue
		}
		if _, ok := known[line]; ok {
			continue
		}
		extras["line_"+strconv.Itoa(i+1)] = strings.TrimSpace(line)
	}
	return extras
}

func startsWithLabel(line string) bool {
	for _, group := range allLabelGroups {
		for _, label := range group {
			if strings.HasPrefix(line, label) {
				return true
			}
		}
	}
	return false
}

// labelIndex returns the index of the first occurrence of label in line
// that is not glued to other letters, or -1. This keeps "KEL" from matching
// inside "KELAMIN".
func labelIndex(line, label string) int {
	offset := 0
	for {
		at := strings.Index(line[offset:], label)
		if at < 0 {
			return -1
		}
		at += offset
		end := at + len(label)
		if (at == 0 || !isLetter(line[at-1])) && (end == len(line) || !isLetter(line[end])) {
			return at
		}
		offset = at + 1
	}
}

func isLetter(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

func nonEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
