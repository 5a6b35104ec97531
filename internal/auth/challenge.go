package auth

import (
	"net/http"
	"strings"
)

// Challenge is one scheme offered in a WWW-Authenticate header.
type Challenge struct {
	Scheme string
	Params map[string]string
}

// ParseChallenges reads every challenge from WWW-Authenticate values such
// as `Signature realm="x",headers="(created)", Basic realm="y"`.
func ParseChallenges(values []string) []Challenge {
	var challenges []Challenge
	for _, value := range values {
		p := &challengeParser{s: value}
		for {
			p.skip(" \t,")
			if p.done() {
				break
			}
			token := p.token()
			if token == "" {
				// Unparseable character; drop it and move on.
				p.pos++
				continue
			}
			p.skip(" \t")
			if !p.done() && p.s[p.pos] == '=' && len(challenges) > 0 {
				p.pos++
				p.skip(" \t")
				challenges[len(challenges)-1].Params[strings.ToLower(token)] = p.value()
				continue
			}
			challenges = append(challenges, Challenge{Scheme: token, Params: map[string]string{}})
		}
	}
	return challenges
}

// FindChallenge returns the challenge for scheme in resp, if offered.
func FindChallenge(resp *http.Response, scheme string) *Challenge {
	if resp == nil {
		return nil
	}
	for _, c := range ParseChallenges(resp.Header.Values("WWW-Authenticate")) {
		if strings.EqualFold(c.Scheme, scheme) {
			return &c
		}
	}
	return nil
}

type challengeParser struct {
	s   string
	pos int
}

func (p *challengeParser) done() bool { return p.pos >= len(p.s) }

func (p *challengeParser) skip(chars string) {
	for !p.done() && strings.IndexByte(chars, p.s[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *challengeParser) token() string {
	start := p.pos
	for !p.done() && strings.IndexByte(" \t,=\"", p.s[p.pos]) < 0 {
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *challengeParser) value() string {
	if p.done() || p.s[p.pos] != '"' {
		return p.token()
	}
	p.pos++
	var b strings.Builder
	for !p.done() {
		ch := p.s[p.pos]
		p.pos++
		switch {
		case ch == '\\' && !p.done():
			b.WriteByte(p.s[p.pos])
			p.pos++
		case ch == '"':
			return b.String()
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
