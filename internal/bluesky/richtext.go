package bluesky

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
)

var (
	mentionPattern = regexp.MustCompile(`(^|\s|\()(@)([a-zA-Z0-9.-]+)\b`)
	handlePattern  = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	linkPattern    = regexp.MustCompile(`(?i)(^|\s|\()((https?://\S+)|([a-z][a-z0-9]*(\.[a-z0-9]+)+\S*))`)
	tagPattern     = regexp.MustCompile(`(^|\s)[#＃]([^\s\x{00AD}\x{2060}\x{200A}\x{200B}\x{200C}\x{200D}\x{20E2}]+)`)
)

const maxTagLength = 64

// Detected is a facet candidate found in plain text. Exactly one of
// Mention (a handle), Link or Tag is set. Offsets are UTF-8 byte offsets.
type Detected struct {
	ByteStart int
	ByteEnd   int
	Mention   string
	Link      string
	Tag       string
}

// Detect finds mentions, links and hashtags in text, ordered by position.
// Mentions still need their handle resolved to a DID before sending.
func Detect(text string) []Detected {
	var out []Detected
	out = append(out, detectMentions(text)...)
	out = append(out, detectLinks(text)...)
	out = append(out, detectTags(text)...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ByteStart < out[j].ByteStart })
	return out
}

func detectMentions(text string) []Detected {
	var out []Detected
	for _, m := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		handle := text[m[6]:m[7]]
		if !handlePattern.MatchString(handle) {
			continue
		}
		out = append(out, Detected{
			ByteStart: m[4],
			ByteEnd:   m[7],
			Mention:   strings.ToLower(handle),
		})
	}
	return out
}

func detectLinks(text string) []Detected {
	var out []Detected
	for _, m := range linkPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[4], m[5]
		uri := text[start:end]
		if m[6] < 0 {
			// bare domain
			domain := text[m[8]:end]
			if i := strings.IndexAny(domain, "/?#:"); i >= 0 {
				domain = domain[:i]
			}
			if !plausibleDomain(strings.TrimRight(domain, ".,;!?)")) {
				continue
			}
			uri = "https://" + uri
		}

		trimmed := strings.TrimRight(uri, ".,;:!?")
		if strings.HasSuffix(trimmed, ")") && !strings.Contains(trimmed, "(") {
			trimmed = strings.TrimSuffix(trimmed, ")")
		}
		end -= len(uri) - len(trimmed)
		if end <= start {
			continue
		}
		out = append(out, Detected{ByteStart: start, ByteEnd: end, Link: trimmed})
	}
	return out
}

// plausibleDomain requires an ICANN-managed public suffix below at least one
// more label. A title-case top-level label ("fine.How") reads as a missing
// space after a full stop and is not linked.
func plausibleDomain(domain string) bool {
	i := strings.LastIndexByte(domain, '.')
	if i < 0 || titleCase(domain[i+1:]) {
		return false
	}
	domain = strings.ToLower(domain)
	suffix, icann := publicsuffix.PublicSuffix(domain)
	return icann && suffix != domain
}

func titleCase(label string) bool {
	if len(label) < 2 || !unicode.IsUpper(rune(label[0])) {
		return false
	}
	return strings.ToLower(label[1:]) == label[1:]
}

func detectTags(text string) []Detected {
	var out []Detected
	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		hashStart := m[3]
		tag := strings.TrimRightFunc(text[m[4]:m[5]], unicode.IsPunct)
		if tag == "" || strings.HasPrefix(tag, "\ufe0f") || utf8.RuneCountInString(tag) > maxTagLength {
			continue
		}
		if strings.IndexFunc(tag, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
			continue
		}
		out = append(out, Detected{
			ByteStart: hashStart,
			ByteEnd:   m[4] + len(tag),
			Tag:       tag,
		})
	}
	return out
}
