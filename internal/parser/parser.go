package parser

import (
	"regexp"
	"slices"
)

// Extractor turns source text into the module specifiers it depends on.
// Implementations must be safe for concurrent use.
type Extractor interface {
	Extract(content string) []string
}

const (
	quote    = "[`'\"]"
	notQuote = "[^`'\"]"
)

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`//.*`)
)

// pattern is one specifier-extraction rule
type pattern struct {
	name   string
	re     *regexp.Regexp
	module int
	open   int
	close  int
	typ    int // -1 when the rule has no type marker
}

func newPattern(name, expr string) pattern {
	re := regexp.MustCompile(expr)
	return pattern{
		name:   name,
		re:     re,
		module: re.SubexpIndex("module"),
		open:   re.SubexpIndex("open"),
		close:  re.SubexpIndex("close"),
		typ:    re.SubexpIndex("type"),
	}
}

// specifier is the quoted module name shared by every rule
const specifier = `(?P<open>` + quote + `)(?P<module>` + notQuote + `+)(?P<close>` + quote + `)`

// callGuard rejects member calls such as foo.require('x')
const callGuard = `(?:^|[^.]\s*)`

// Parser extracts dependencies with regular expressions. It recognizes
// static imports, re-exports, dynamic imports, require calls and the jest
// require variants, ignoring comments and type-only imports.
type Parser struct {
	patterns []pattern
}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{
		patterns: []pattern{
			newPattern("import", `\bimport\s+(?P<type>type )?(?:`+notQuote+`+\s+from\s+)??`+specifier),
			newPattern("export", `\bexport\s+(?P<type>type )?(?:`+notQuote+`+\s+from\s+)??`+specifier),
			newPattern("dynamic_import", callGuard+`\bimport\s*?\(\s*?`+specifier+`\)`),
			newPattern("require", callGuard+`\brequire\s*?\(\s*?`+specifier+`\)`),
			newPattern("jest_require", callGuard+
				`\b(?:require\s*?\.\s*?(?:requireActual|requireMock)|jest\s*?\.\s*?(?:requireActual|requireMock|genMockFromModule))\s*?\(\s*?`+
				specifier+`\)`),
		},
	}
}

// Extract returns the sorted, unique module specifiers referenced by content
func (p *Parser) Extract(content string) []string {
	clean := StripComments(content)

	deps := make([]string, 0)
	for _, pat := range p.patterns {
		for _, m := range pat.re.FindAllStringSubmatchIndex(clean, -1) {
			// Type-only imports and exports are not runtime dependencies
			if pat.typ >= 0 && m[2*pat.typ] >= 0 {
				continue
			}
			if group(clean, m, pat.open) != group(clean, m, pat.close) {
				continue
			}
			deps = append(deps, group(clean, m, pat.module))
		}
	}

	slices.Sort(deps)
	return slices.Compact(deps)
}

// StripComments removes block comments and then line comments
func StripComments(content string) string {
	content = blockComment.ReplaceAllString(content, "")
	return lineComment.ReplaceAllString(content, "")
}

func group(s string, m []int, i int) string {
	if i < 0 || m[2*i] < 0 {
		return ""
	}
	return s[m[2*i]:m[2*i+1]]
}
