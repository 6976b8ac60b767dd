package encmap

import (
	"regexp"
	"strings"
)

var nextInstance = regexp.MustCompile(`,\s*\d+\s*:`)

// ParseMethod parses a method encoding with an explicit grammar:
//
//	encoding := ['{'] [entry {',' entry}] [','] ['}']
//	entry    := quoted                     // "key:attrs"
//	          | key ':' ( '{' attrs '}' | quoted | attrs )
//	attrs    := attr {',' attr}
//	attr     := name '=' value
//
// One layer of outer braces is optional. Attribute segments without '='
// continue the previous attribute's value. Attribute names have inner
// spaces replaced by underscores. Repeated instance keys keep the first
// entry.
func ParseMethod(s string) (MethodMap, error) {
	p := &methodParser{src: s}
	p.body, p.offset = unwrap(s)
	return p.parse()
}

type methodParser struct {
	src    string
	body   string
	offset int // position of body within src
	pos    int
}

// unwrap strips surrounding whitespace and at most one layer of braces,
// returning the body and its offset into s.
func unwrap(s string) (string, int) {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	if end-start >= 2 && s[start] == '{' && s[end-1] == '}' {
		start++
		end--
	}
	return s[start:end], start
}

func (p *methodParser) fail(msg string) error {
	return &ParseError{Mode: ModeMethod, Pos: p.offset + p.pos, Msg: msg, Input: p.src}
}

func (p *methodParser) parse() (MethodMap, error) {
	var m MethodMap
	seen := make(map[string]bool)

	for {
		p.skipSpace()
		if p.eof() {
			return m, nil
		}

		entry, err := p.entry()
		if err != nil {
			return MethodMap{}, err
		}
		if !seen[entry.Key] {
			seen[entry.Key] = true
			m.Entries = append(m.Entries, entry)
		}

		p.skipSpace()
		if p.eof() {
			return m, nil
		}
		if p.peek() != ',' {
			return MethodMap{}, p.fail("expected ',' between entries")
		}
		p.pos++
	}
}

func (p *methodParser) entry() (MethodEntry, error) {
	if c := p.peek(); c == '"' || c == '\'' {
		text, err := p.quoted()
		if err != nil {
			return MethodEntry{}, err
		}
		key, attrs, ok := strings.Cut(text, ":")
		if !ok {
			return MethodEntry{}, p.fail("entry has no instance separator ':'")
		}
		return p.build(key, attrs)
	}

	colon := strings.IndexByte(p.body[p.pos:], ':')
	if colon < 0 {
		return MethodEntry{}, p.fail("entry has no instance separator ':'")
	}
	key := p.body[p.pos : p.pos+colon]
	if strings.ContainsAny(key, "{},\"'") {
		return MethodEntry{}, p.fail("malformed instance key")
	}
	p.pos += colon + 1
	p.skipSpace()

	switch p.peek() {
	case '{':
		attrs, err := p.braced()
		if err != nil {
			return MethodEntry{}, err
		}
		return p.build(key, attrs)
	case '"', '\'':
		attrs, err := p.quoted()
		if err != nil {
			return MethodEntry{}, err
		}
		return p.build(key, attrs)
	default:
		return p.build(key, p.bare())
	}
}

// bare reads unwrapped attributes, which run until the next `, <digits>:`
// instance boundary or the end of the body.
func (p *methodParser) bare() string {
	rest := p.body[p.pos:]
	if loc := nextInstance.FindStringIndex(rest); loc != nil {
		p.pos += loc[0]
		return rest[:loc[0]]
	}
	p.pos = len(p.body)
	return rest
}

func (p *methodParser) build(key, attrs string) (MethodEntry, error) {
	e := MethodEntry{Key: strings.TrimSpace(key)}
	for _, seg := range strings.Split(attrs, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		name, value, ok := strings.Cut(seg, "=")
		if !ok {
			if len(e.Attrs) == 0 {
				return MethodEntry{}, p.fail("attribute without '='")
			}
			last := &e.Attrs[len(e.Attrs)-1]
			last.Value += ", " + seg
			continue
		}
		name = strings.Join(strings.Fields(name), "_")
		if name == "" {
			return MethodEntry{}, p.fail("attribute without name")
		}
		e.Attrs = append(e.Attrs, Attr{Name: name, Value: strings.TrimSpace(value)})
	}
	return e, nil
}

// quoted reads a single- or double-quoted string with backslash escapes.
func (p *methodParser) quoted() (string, error) {
	quote := p.body[p.pos]
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.body[p.pos]
		switch {
		case c == '\\':
			if p.pos+1 >= len(p.body) {
				return "", p.fail("dangling escape")
			}
			b.WriteByte(p.body[p.pos+1])
			p.pos += 2
		case c == quote:
			p.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.fail("unterminated string")
}

// braced reads a '{...}' attribute group. Nested braces are rejected.
func (p *methodParser) braced() (string, error) {
	p.pos++
	start := p.pos
	for !p.eof() {
		switch p.body[p.pos] {
		case '}':
			text := p.body[start:p.pos]
			p.pos++
			return text, nil
		case '{':
			return "", p.fail("nested '{' in attribute group")
		}
		p.pos++
	}
	return "", p.fail("unterminated attribute group")
}

func (p *methodParser) skipSpace() {
	for !p.eof() && isSpace(p.body[p.pos]) {
		p.pos++
	}
}

func (p *methodParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.body[p.pos]
}

func (p *methodParser) eof() bool { return p.pos >= len(p.body) }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
