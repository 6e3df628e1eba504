// Package smartcode builds, parses and validates Smart Codes, the versioned
// taxonomy identifiers of the form HERA.{INDUSTRY}.{MODULE}.{TYPE}.{SUBTYPE}.V{N}.
package smartcode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Prefix is the literal first segment of every smart code.
const Prefix = "HERA"

// SegmentCount is the exact number of dot-separated segments.
const SegmentCount = 6

// placeholder replaces a free-text segment that normalizes to nothing.
const placeholder = "GENERAL"

// Smart code type segments.
const (
	TypeEntity       = "ENT"
	TypeRelationship = "REL"
	TypeDynamic      = "DYN"
	TypeTransaction  = "TXN"
	TypeWorkflow     = "WF"
)

var knownTypes = map[string]bool{
	TypeEntity:       true,
	TypeRelationship: true,
	TypeDynamic:      true,
	TypeTransaction:  true,
	TypeWorkflow:     true,
}

// Validation issue codes.
const (
	CodeMalformedSegmentCount = "MalformedSegmentCount"
	CodeBadPrefix             = "BadPrefix"
	CodeNotUppercase          = "NotUppercase"
	CodeInvalidCharacters     = "InvalidCharacters"
	CodeBadVersionFormat      = "BadVersionFormat"
	CodeLegacyNaming          = "LegacyNaming"
	CodeUnknownType           = "UnknownType"
)

var (
	versionPattern = regexp.MustCompile(`^V[1-9][0-9]*$`)
	legacyPattern  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// segmentNames label segments 2-5 in messages.
var segmentNames = [...]string{"prefix", "industry", "module", "type", "subtype", "version"}

// SmartCode is an immutable, syntactically valid smart code.
type SmartCode struct {
	raw string
}

// String returns the dotted form.
func (c SmartCode) String() string { return c.raw }

// IsZero reports whether c is the zero value.
func (c SmartCode) IsZero() bool { return c.raw == "" }

// Segments is the parsed form of a smart code.
type Segments struct {
	Industry string
	Module   string
	Type     string
	Subtype  string
	Version  int
}

// Issue is one validation error or warning.
type Issue struct {
	Code    string `json:"code"`
	Segment int    `json:"segment,omitempty"` // 1-based; 0 when not segment-specific.
	Message string `json:"message"`
}

func (i Issue) String() string { return i.Code + ": " + i.Message }

// Result reports the outcome of Validate.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Err returns nil when the code is valid, otherwise an error listing every
// validation issue.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.String()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// Build assembles a smart code from free-text segments. Each segment is
// normalized to uppercase letters only; digits and punctuation are dropped.
// A segment that normalizes to nothing becomes GENERAL and a version below 1
// becomes 1, so Build always yields a syntactically valid code.
func Build(industry, module, typ, subtype string, version int) SmartCode {
	if version < 1 {
		version = 1
	}
	parts := []string{
		Prefix,
		normalize(industry),
		normalize(module),
		normalize(typ),
		normalize(subtype),
		"V" + strconv.Itoa(version),
	}
	return SmartCode{raw: strings.Join(parts, ".")}
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return placeholder
	}
	return b.String()
}

// Validate checks raw against the smart code grammar. Segments 2-5 must be
// uppercase ASCII letters; the version must be V followed by a positive
// integer without leading zeros. Segments that look like a legacy naming
// convention (digits or underscores) also yield a LegacyNaming warning
// carrying the normalized replacement, for migration tooling.
func Validate(raw string) Result {
	res := Result{Errors: []Issue{}, Warnings: []Issue{}}
	parts := strings.Split(raw, ".")
	if len(parts) != SegmentCount {
		res.Errors = append(res.Errors, Issue{
			Code:    CodeMalformedSegmentCount,
			Message: fmt.Sprintf("expected %d segments, got %d", SegmentCount, len(parts)),
		})
		return res
	}

	if parts[0] != Prefix {
		res.Errors = append(res.Errors, Issue{
			Code:    CodeBadPrefix,
			Segment: 1,
			Message: fmt.Sprintf("first segment must be %s, got %q", Prefix, parts[0]),
		})
	}

	legacy := false
	for i := 1; i <= 4; i++ {
		seg := parts[i]
		switch {
		case isUpperLetters(seg):
		case isLetters(seg):
			res.Errors = append(res.Errors, Issue{
				Code:    CodeNotUppercase,
				Segment: i + 1,
				Message: fmt.Sprintf("%s segment %q must be uppercase", segmentNames[i], seg),
			})
		default:
			res.Errors = append(res.Errors, Issue{
				Code:    CodeInvalidCharacters,
				Segment: i + 1,
				Message: fmt.Sprintf("%s segment %q must contain only letters A-Z", segmentNames[i], seg),
			})
			if seg != "" && legacyPattern.MatchString(seg) {
				legacy = true
			}
		}
	}

	if !versionPattern.MatchString(parts[5]) {
		res.Errors = append(res.Errors, Issue{
			Code:    CodeBadVersionFormat,
			Segment: 6,
			Message: fmt.Sprintf("version segment %q must match V<n> with n >= 1", parts[5]),
		})
	} else if _, err := strconv.Atoi(parts[5][1:]); err != nil {
		res.Errors = append(res.Errors, Issue{
			Code:    CodeBadVersionFormat,
			Segment: 6,
			Message: fmt.Sprintf("version segment %q is out of range", parts[5]),
		})
	}

	if isUpperLetters(parts[3]) && !knownTypes[parts[3]] {
		res.Warnings = append(res.Warnings, Issue{
			Code:    CodeUnknownType,
			Segment: 4,
			Message: fmt.Sprintf("type segment %q is not one of ENT, REL, DYN, TXN, WF", parts[3]),
		})
	}

	if legacy {
		version := 1
		if n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(parts[5]), "V")); err == nil {
			version = n
		}
		suggested := Build(parts[1], parts[2], parts[3], parts[4], version)
		res.Warnings = append(res.Warnings, Issue{
			Code:    CodeLegacyNaming,
			Message: fmt.Sprintf("legacy naming detected; migrate to %s", suggested),
		})
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// Parse returns the segments of raw, or nil when raw is not a valid smart code.
func Parse(raw string) *Segments {
	if !Validate(raw).Valid {
		return nil
	}
	parts := strings.Split(raw, ".")
	version, _ := strconv.Atoi(parts[5][1:])
	return &Segments{
		Industry: parts[1],
		Module:   parts[2],
		Type:     parts[3],
		Subtype:  parts[4],
		Version:  version,
	}
}

// New returns raw as a SmartCode if it validates.
func New(raw string) (SmartCode, error) {
	if err := Validate(raw).Err(); err != nil {
		return SmartCode{}, fmt.Errorf("invalid smart code %q: %w", raw, err)
	}
	return SmartCode{raw: raw}, nil
}

// MustNew is New for package-level declarations; it panics on invalid input.
func MustNew(raw string) SmartCode {
	c, err := New(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the dotted form of the segments.
func (s Segments) String() string {
	return fmt.Sprintf("%s.%s.%s.%s.%s.V%d", Prefix, s.Industry, s.Module, s.Type, s.Subtype, s.Version)
}

func isUpperLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func isLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
