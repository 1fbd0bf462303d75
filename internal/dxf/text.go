package dxf

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// codePages maps $DWGCODEPAGE values to decoders. Files from AC1021 (R2007)
// on are UTF-8 regardless of this header.
var codePages = map[string]encoding.Encoding{
	"ANSI_936":  simplifiedchinese.GBK,
	"ANSI_950":  traditionalchinese.Big5,
	"ANSI_932":  japanese.ShiftJIS,
	"ANSI_949":  korean.EUCKR,
	"ANSI_1250": charmap.Windows1250,
	"ANSI_1251": charmap.Windows1251,
	"ANSI_1252": charmap.Windows1252,
	"ANSI_1253": charmap.Windows1253,
	"ANSI_1254": charmap.Windows1254,
	"ANSI_1255": charmap.Windows1255,
	"ANSI_1256": charmap.Windows1256,
	"ANSI_1257": charmap.Windows1257,
	"ANSI_1258": charmap.Windows1258,
	"ANSI_874":  charmap.Windows874,
}

const utf8Version = "AC1021"

// newStringDecoder returns the function applied to every string value.
func newStringDecoder(version, codePage string) func(string) string {
	var enc encoding.Encoding
	if version == "" || version < utf8Version {
		enc = codePages[strings.ToUpper(strings.TrimSpace(codePage))]
	}
	return func(s string) string {
		if enc != nil && !isASCII(s) {
			if decoded, err := enc.NewDecoder().String(s); err == nil {
				s = decoded
			}
		} else if !utf8.ValidString(s) {
			s = strings.ToValidUTF8(s, "�")
		}
		return decodeUnicodeEscapes(s)
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

var unicodeEscape = regexp.MustCompile(`\\[Uu]\+([0-9A-Fa-f]{4})`)

// decodeUnicodeEscapes turns \U+XXXX sequences into runes.
func decodeUnicodeEscapes(s string) string {
	if !strings.Contains(s, `\U+`) && !strings.Contains(s, `\u+`) {
		return s
	}
	return unicodeEscape.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.ParseUint(m[3:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(n))
	})
}

// expandControlCodes handles TEXT %% codes: %%d degree, %%p plus-minus,
// %%c diameter, %%% percent. Underline/overline toggles are dropped.
func expandControlCodes(s string) string {
	if !strings.Contains(s, "%%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && s[i+1] == '%' {
			switch s[i+2] {
			case 'd', 'D':
				b.WriteString("°")
			case 'p', 'P':
				b.WriteString("±")
			case 'c', 'C':
				b.WriteString("⌀")
			case '%':
				b.WriteByte('%')
			case 'u', 'U', 'o', 'O', 'k', 'K':
			default:
				b.WriteString(s[i : i+3])
			}
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// stripMTextFormatting removes MTEXT inline formatting. Paragraph breaks
// become newlines, stacked fractions become "num/den".
func stripMTextFormatting(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '{', '}':
			continue
		case '\\':
			if i+1 >= len(s) {
				continue
			}
			i++
			switch s[i] {
			case 'P', 'X':
				b.WriteByte('\n')
			case '~':
				b.WriteByte(' ')
			case '\\', '{', '}':
				b.WriteByte(s[i])
			case 'S':
				end := strings.IndexByte(s[i:], ';')
				if end < 0 {
					continue
				}
				frac := s[i+1 : i+end]
				frac = strings.NewReplacer("^", "/", "#", "/").Replace(frac)
				b.WriteString(strings.TrimSpace(frac))
				i += end
			case 'f', 'F', 'H', 'h', 'W', 'w', 'Q', 'q', 'T', 't', 'A', 'a', 'C', 'c', 'p':
				// codes with an argument terminated by ';'
				if end := strings.IndexByte(s[i:], ';'); end >= 0 {
					i += end
				}
			case 'L', 'l', 'O', 'o', 'K', 'k', 'N':
			default:
				b.WriteByte('\\')
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return strings.TrimSpace(b.String())
}
