package prompts

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) describe() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return strconv.Quote(t.text)
}

// ParseCondition parses a condition expression into its tree form.
func ParseCondition(expr string) (Condition, error) {
	toks, err := lexCondition(expr)
	if err != nil {
		return nil, err
	}
	p := &condParser{expr: expr, toks: toks}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %s", tok.describe())
	}
	return cond, nil
}

// ValidateCondition reports a ConditionSyntaxError for a malformed
// expression. An empty expression is valid.
func ValidateCondition(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := ParseCondition(expr)
	return err
}

func lexCondition(expr string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '"' || c == '\'':
			end := i + 1
			for end < len(expr) && expr[end] != c {
				if expr[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(expr) {
				return nil, &ConditionSyntaxError{Expr: expr, Pos: i, Msg: "unterminated string"}
			}
			raw := expr[i+1 : end]
			val := decodeEscapes(strings.ReplaceAll(raw, `\`+string(c), string(c)))
			toks = append(toks, token{tokString, val, i})
			i = end + 1
		case strings.ContainsRune("=!<>&|", rune(c)):
			op := string(c)
			if i+1 < len(expr) {
				two := expr[i : i+2]
				switch two {
				case "==", "!=", ">=", "<=", "&&", "||":
					op = two
				}
			}
			switch op {
			case "=", "&", "|":
				return nil, &ConditionSyntaxError{Expr: expr, Pos: i, Msg: fmt.Sprintf("unknown operator %q", op)}
			}
			toks = append(toks, token{tokOp, op, i})
			i += len(op)
		case c == '-' || c == '.' || (c >= '0' && c <= '9'):
			end := i + 1
			for end < len(expr) && (expr[end] == '.' || (expr[end] >= '0' && expr[end] <= '9')) {
				end++
			}
			toks = append(toks, token{tokNumber, expr[i:end], i})
			i = end
		case c == '_' || unicode.IsLetter(rune(c)):
			end := i + 1
			for end < len(expr) && isIdentByte(expr[end]) {
				end++
			}
			toks = append(toks, token{tokIdent, expr[i:end], i})
			i = end
		default:
			return nil, &ConditionSyntaxError{Expr: expr, Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(expr)})
	return toks, nil
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '.' || b == '-' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

type condParser struct {
	expr string
	toks []token
	i    int
}

func (p *condParser) peek() token { return p.toks[p.i] }

func (p *condParser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *condParser) errorf(t token, format string, args ...any) error {
	return &ConditionSyntaxError{Expr: p.expr, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *condParser) accept(kind tokenKind, texts ...string) bool {
	t := p.peek()
	if t.kind != kind {
		return false
	}
	if len(texts) == 0 {
		p.next()
		return true
	}
	for _, s := range texts {
		if strings.EqualFold(t.text, s) {
			p.next()
			return true
		}
	}
	return false
}

func (p *condParser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s, got %s", what, t.describe())
	}
	return t, nil
}

func (p *condParser) parseOr() (Condition, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []Condition{first}
	for p.accept(tokOp, "||") || p.accept(tokIdent, "or") {
		t, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return Any{Terms: terms}, nil
}

func (p *condParser) parseAnd() (Condition, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []Condition{first}
	for p.accept(tokOp, "&&") || p.accept(tokIdent, "and") {
		t, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return All{Terms: terms}, nil
}

func (p *condParser) parseUnary() (Condition, error) {
	if p.accept(tokOp, "!") || p.accept(tokIdent, "not") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Term: inner}, nil
	}
	if p.accept(tokLParen) {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parsePredicate()
}

func (p *condParser) parsePredicate() (Condition, error) {
	t := p.next()
	if t.kind != tokIdent {
		return nil, p.errorf(t, "expected condition, got %s", t.describe())
	}
	switch strings.ToLower(t.text) {
	case "true":
		return Literal{Value: true}, nil
	case "false":
		return Literal{Value: false}, nil
	case "time_between":
		return p.parseTimeBetween(t)
	case "flag":
		return p.parseFlag()
	case "has":
		return p.parseHas()
	}
	field, err := p.field(t)
	if err != nil {
		return nil, err
	}
	return p.parseComparison(field)
}

func (p *condParser) field(t token) (Field, error) {
	name := t.text
	switch name {
	case "turn_count":
		return Field{Kind: FieldTurnCount}, nil
	case "hour":
		return Field{Kind: FieldHour}, nil
	case "minute":
		return Field{Kind: FieldMinute}, nil
	case "weekday":
		return Field{Kind: FieldWeekday}, nil
	}
	prefix, key, ok := strings.Cut(name, ".")
	if ok && key != "" {
		switch prefix {
		case "user":
			return Field{Kind: FieldUser, Key: key}, nil
		case "conversation":
			return Field{Kind: FieldConversation, Key: key}, nil
		case "metric":
			return Field{Kind: FieldMetric, Key: key}, nil
		}
	}
	if p.peek().kind == tokLParen {
		return Field{}, p.errorf(t, "unknown function %q", name)
	}
	return Field{}, p.errorf(t, "unknown field %q", name)
}

func (p *condParser) parseComparison(f Field) (Condition, error) {
	opTok := p.next()
	if opTok.kind != tokOp || opTok.text == "!" || opTok.text == "&&" || opTok.text == "||" {
		return nil, p.errorf(opTok, "expected comparison operator after %s, got %s", f, opTok.describe())
	}
	op := CompareOp(opTok.text)
	lit := p.next()
	switch lit.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(lit.text, 64)
		if err != nil {
			return nil, p.errorf(lit, "invalid number %q", lit.text)
		}
		return Comparison{Field: f, Op: op, Value: v}, nil
	case tokString:
		if op != OpEq && op != OpNe {
			return nil, p.errorf(opTok, "operator %s needs a numeric operand", op)
		}
		val := lit.text
		switch f.Kind {
		case FieldUser, FieldConversation:
		case FieldWeekday:
			day, ok := weekdayName(val)
			if !ok {
				return nil, p.errorf(lit, "unknown weekday %q", val)
			}
			val = day
		default:
			return nil, p.errorf(lit, "%s compares against numbers only", f)
		}
		eq := AttributeEquals{Field: f, Value: val}
		if op == OpNe {
			return Not{Term: eq}, nil
		}
		return eq, nil
	}
	return nil, p.errorf(lit, "expected literal after %s, got %s", op, lit.describe())
}

func (p *condParser) parseTimeBetween(fn token) (Condition, error) {
	if _, err := p.expect(tokLParen, "'(' after time_between"); err != nil {
		return nil, err
	}
	startTok, err := p.expect(tokString, "start time")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokComma, "','"); err != nil {
		return nil, err
	}
	endTok, err := p.expect(tokString, "end time")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	start, ok := parseClock(startTok.text)
	if !ok {
		return nil, p.errorf(startTok, "invalid time %q, want HH:MM", startTok.text)
	}
	end, ok := parseClock(endTok.text)
	if !ok {
		return nil, p.errorf(endTok, "invalid time %q, want HH:MM", endTok.text)
	}
	if start == end {
		return nil, p.errorf(fn, "empty time window")
	}
	return TimeWindow{Start: start, End: end}, nil
}

func (p *condParser) parseFlag() (Condition, error) {
	if _, err := p.expect(tokLParen, "'(' after flag"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokString, "flag name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	if name.text == "" {
		return nil, p.errorf(name, "empty flag name")
	}
	return FlagSet{Name: name.text}, nil
}

func (p *condParser) parseHas() (Condition, error) {
	if _, err := p.expect(tokLParen, "'(' after has"); err != nil {
		return nil, err
	}
	ft, err := p.expect(tokIdent, "field")
	if err != nil {
		return nil, err
	}
	f, err := p.field(ft)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	return HasAttribute{Field: f}, nil
}

func parseClock(s string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
