package formula

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapcalc/pkg/ref"
	"github.com/leapstack-labs/leapcalc/pkg/value"
)

// Operator precedence, loosest to tightest. The three reference
// operators sit above everything else and are ordered among
// themselves: ':' binds tighter than intersection, which binds
// tighter than union.
const (
	precNone = iota
	precCompare
	precConcat
	precAdd
	precMul
	precExp
	precPostfix
	precUnary
	precUnion
	precIsect
	precRange
)

// binaryOp maps an infix token to its operator and precedence.
func binaryOp(k TokenKind) (Op, int) {
	switch k {
	case EQ:
		return OpEQ, precCompare
	case NE:
		return OpNE, precCompare
	case LT:
		return OpLT, precCompare
	case GT:
		return OpGT, precCompare
	case LE:
		return OpLE, precCompare
	case GE:
		return OpGE, precCompare
	case AMP:
		return OpConcat, precConcat
	case PLUS:
		return OpAdd, precAdd
	case MINUS:
		return OpSub, precAdd
	case STAR:
		return OpMul, precMul
	case SLASH:
		return OpDiv, precMul
	case CARET:
		return OpPow, precExp
	}
	return OpNone, precNone
}

// parseExpr parses an expression, consuming operators that bind
// tighter than prec.
func (p *Parser) parseExpr(prec int) Expr {
	left := p.parseUnary()
	for {
		switch {
		case p.check(COLON) && prec < precRange:
			p.nextToken()
			right := p.parseExpr(precRange)
			left = &RangeExpr{Left: left, Right: right}

		case p.isIntersection() && prec < precIsect:
			right := p.parseExpr(precIsect)
			left = &BinaryExpr{Op: OpIntersect, Left: left, Right: right}

		case p.check(ARGSEP) && p.groupDepth > 0 && prec < precUnion:
			p.nextToken()
			right := p.parseExpr(precUnion)
			left = &BinaryExpr{Op: OpUnion, Left: left, Right: right}

		case p.check(PERCENT) && prec < precPostfix:
			p.nextToken()
			left = &UnaryExpr{Op: OpPercent, Operand: left}

		case p.check(HASH) && prec < precPostfix:
			p.nextToken()
			left = &SpillRange{Operand: left}

		case p.check(LPAREN) && !p.token.SpaceBefore && prec < precPostfix && invocable(left):
			left = p.parseInvoke(left)

		default:
			op, opPrec := binaryOp(p.token.Kind)
			if op == OpNone || prec >= opPrec {
				return left
			}
			p.nextToken()
			right := p.parseExpr(opPrec)
			left = &BinaryExpr{Op: op, Left: left, Right: right}
		}
	}
}

// isIntersection reports whether the current token starts the right
// operand of an intersection: something reference-like separated from
// the previous token by whitespace.
func (p *Parser) isIntersection() bool {
	if !p.token.SpaceBefore {
		return false
	}
	switch p.token.Kind {
	case CELLREF, COLREF, ROWREF, IDENT, QUOTESHEET, BRACKET, LPAREN:
		return true
	case NUMBER:
		// a row range like 3:5 on the right-hand side
		return p.checkPeek(COLON)
	}
	return false
}

// invocable reports whether a node may be called with (args). Plain
// cell references are not callable.
func invocable(e Expr) bool {
	switch e.(type) {
	case *LambdaExpr, *FuncCall, *Invoke:
		return true
	}
	return false
}

// parseUnary parses prefix operators and hands off to parsePrimary.
// The operand is parsed at precUnary, so unary minus binds tighter
// than '^' but looser than the reference operators.
func (p *Parser) parseUnary() Expr {
	switch p.token.Kind {
	case MINUS:
		p.nextToken()
		return &UnaryExpr{Op: OpNeg, Operand: p.parseExpr(precUnary)}
	case PLUS:
		p.nextToken()
		return &UnaryExpr{Op: OpPos, Operand: p.parseExpr(precUnary)}
	case AT:
		p.nextToken()
		return &UnaryExpr{Op: OpImplicit, Operand: p.parseExpr(precUnary)}
	}
	return p.parsePrimary()
}

// parsePrimary parses literals, references, names, calls, arrays and
// grouped expressions.
func (p *Parser) parsePrimary() Expr {
	switch p.token.Kind {
	case NUMBER:
		return p.parseNumberOrRowRange()

	case STRING:
		lit := p.token.Literal
		p.nextToken()
		return &StringLit{Value: lit}

	case ERRORLIT:
		lit := p.token.Literal
		p.nextToken()
		if kind, ok := p.loc.ParseError(lit); ok {
			return &ErrorLit{Kind: kind}
		}
		p.addError(fmt.Sprintf("unknown error literal %q", lit))
		return &ErrorLit{Kind: value.ErrUnknown}

	case CELLREF:
		// A cell-looking prefix can still be a function (LOG10) or an
		// unquoted sheet name.
		if p.checkPeek(LPAREN) && !p.peek.SpaceBefore {
			name := p.loc.CanonicalFunction(p.token.Literal)
			p.nextToken()
			return p.parseCall(name)
		}
		if p.checkPeek(BANG) {
			sheet := p.token.Literal
			p.nextToken()
			p.nextToken()
			return p.parseRefBody("", sheet, "")
		}
		return p.parseCellRef("", "", "")

	case ROWREF:
		return p.parseRowRange("", "", "")

	case COLREF:
		return p.parseColRange("", "", "")

	case IDENT:
		return p.parseIdent()

	case QUOTESHEET:
		return p.parseQuotedSheet("")

	case BRACKET:
		return p.parseBracket()

	case LBRACE:
		return p.parseArrayLit()

	case LPAREN:
		p.groupDepth++
		p.nextToken()
		inner := p.parseExpr(precNone)
		p.expect(RPAREN)
		p.groupDepth--
		return inner
	}

	p.addError(fmt.Sprintf("unexpected token %s", p.token.Kind))
	p.nextToken()
	return &ErrorLit{Kind: value.ErrUnknown}
}

// parseNumberOrRowRange handles a NUMBER token, which is either a
// numeric literal or the first bound of a bare row range like 3:5.
func (p *Parser) parseNumberOrRowRange() Expr {
	if p.checkPeek(COLON) && (p.checkPeek2(NUMBER) || p.checkPeek2(ROWREF)) {
		if _, _, ok := ref.ParseRow(p.token.Literal); ok {
			return p.parseRowRange("", "", "")
		}
	}
	lit := p.token.Literal
	p.nextToken()
	n, ok := p.loc.ParseNumber(lit)
	if !ok {
		p.addError(fmt.Sprintf("malformed number %q", lit))
		return &NumberLit{}
	}
	return &NumberLit{Value: n}
}

// parseIdent disambiguates a bare identifier: function call,
// structured table reference, sheet prefix, sheet span, column range,
// boolean literal or defined name.
func (p *Parser) parseIdent() Expr {
	lit := p.token.Literal

	if p.checkPeek(LPAREN) {
		name := p.loc.CanonicalFunction(lit)
		p.nextToken()
		return p.parseCall(name)
	}
	if p.checkPeek(BRACKET) && !p.peek.SpaceBefore {
		p.nextToken()
		return p.parseStructured(lit)
	}
	if p.checkPeek(BANG) {
		p.nextToken()
		p.nextToken()
		return p.parseRefBody("", lit, "")
	}
	if p.checkPeek(COLON) && (p.checkPeek2(IDENT) || p.checkPeek2(QUOTESHEET) || p.checkPeek2(COLREF)) {
		return p.parseIdentColon(lit)
	}
	if b, ok := p.loc.ParseBool(lit); ok {
		p.nextToken()
		return &BoolLit{Value: b}
	}
	p.nextToken()
	return &NameRef{Name: strings.ToUpper(lit)}
}

// parseIdentColon resolves the IDENT ':' IDENT ambiguity by
// consuming both sides and inspecting what follows: a '!' makes it a
// 3-D sheet span, two column labels make a whole-column range, and
// anything else is a range between two defined names.
func (p *Parser) parseIdentColon(first string) Expr {
	p.nextToken() // first IDENT
	p.nextToken() // ':'

	second := p.token.Literal
	secondKind := p.token.Kind
	p.nextToken()

	if p.check(BANG) {
		p.nextToken()
		if secondKind == QUOTESHEET {
			second = stripBookPrefix(second)
		}
		return p.parseRefBody("", first, second)
	}

	c1, abs1, ok1 := ref.ParseCol(first)
	c2, abs2, ok2 := ref.ParseCol(second)
	if ok1 && ok2 && secondKind != QUOTESHEET {
		return &ColRange{
			StartCol: p.colCoord(c1, abs1),
			EndCol:   p.colCoord(c2, abs2),
		}
	}

	left := &NameRef{Name: strings.ToUpper(first)}
	if secondKind != IDENT {
		p.addError(fmt.Sprintf("cannot use %s as a range bound", secondKind))
		return left
	}
	return &RangeExpr{Left: left, Right: &NameRef{Name: strings.ToUpper(second)}}
}

// parseQuotedSheet handles a quoted sheet token, whose literal may
// carry a book prefix and an embedded span ('Jan:Mar'). A following
// ':' continues a mixed span such as 'My Sheet':Other!A1.
func (p *Parser) parseQuotedSheet(book string) Expr {
	lit := p.token.Literal
	if b, rest, ok := splitBook(lit); ok {
		book = b
		lit = rest
	}
	first, last, _ := strings.Cut(lit, ":")

	p.nextToken()
	if p.check(COLON) && (p.checkPeek(IDENT) || p.checkPeek(QUOTESHEET)) && last == "" {
		p.nextToken()
		last = stripBookPrefix(p.token.Literal)
		p.nextToken()
	}
	if !p.expect(BANG) {
		return &ErrorLit{Kind: value.ErrRef}
	}
	return p.parseRefBody(book, first, last)
}

// parseBracket handles a leading '[...]' token: an external book
// prefix when a sheet name and '!' follow, otherwise a structured
// reference like [@Amount].
func (p *Parser) parseBracket() Expr {
	isBook := (p.checkPeek(IDENT) || p.checkPeek(QUOTESHEET) || p.checkPeek(CELLREF)) &&
		(p.checkPeek2(BANG) || p.checkPeek2(COLON))
	if !isBook {
		return p.parseStructured("")
	}

	book := strings.TrimSuffix(strings.TrimPrefix(p.token.Literal, "["), "]")
	p.nextToken()

	if p.check(QUOTESHEET) {
		return p.parseQuotedSheet(book)
	}
	first := p.token.Literal
	p.nextToken()
	last := ""
	if p.check(COLON) {
		p.nextToken()
		if !p.check(IDENT) && !p.check(QUOTESHEET) && !p.check(CELLREF) {
			p.addError(fmt.Sprintf("expected sheet name, found %s", p.token.Kind))
			return &ErrorLit{Kind: value.ErrRef}
		}
		last = stripBookPrefix(p.token.Literal)
		p.nextToken()
	}
	if !p.expect(BANG) {
		return &ErrorLit{Kind: value.ErrRef}
	}
	return p.parseRefBody(book, first, last)
}

// parseRefBody parses what follows a sheet qualifier and '!': a cell,
// a whole-column or whole-row range, a sheet-scoped name, or a
// dangling #REF! left behind by deletions.
func (p *Parser) parseRefBody(book, first, last string) Expr {
	switch p.token.Kind {
	case CELLREF:
		return p.parseCellRef(book, first, last)
	case COLREF:
		return p.parseColRange(book, first, last)
	case ROWREF, NUMBER:
		return p.parseRowRange(book, first, last)
	case ERRORLIT:
		lit := p.token.Literal
		p.nextToken()
		if kind, ok := p.loc.ParseError(lit); ok {
			return &ErrorLit{Kind: kind}
		}
		return &ErrorLit{Kind: value.ErrRef}
	case IDENT:
		lit := p.token.Literal
		if p.checkPeek(COLON) && (p.checkPeek2(IDENT) || p.checkPeek2(COLREF)) {
			if _, _, ok := ref.ParseCol(lit); ok {
				return p.parseColRange(book, first, last)
			}
		}
		p.nextToken()
		return &NameRef{Sheet: first, Name: strings.ToUpper(lit)}
	}
	p.addError(fmt.Sprintf("expected reference after '!', found %s", p.token.Kind))
	return &ErrorLit{Kind: value.ErrRef}
}

// parseCellRef consumes the current CELLREF token.
func (p *Parser) parseCellRef(book, first, last string) Expr {
	a1, ok := ref.ParseA1(p.token.Literal)
	if !ok {
		p.addError(fmt.Sprintf("malformed cell reference %q", p.token.Literal))
		p.nextToken()
		return &ErrorLit{Kind: value.ErrRef}
	}
	p.nextToken()
	return &CellRef{
		Book:       book,
		SheetFirst: first,
		SheetLast:  last,
		Row:        p.rowCoord(a1.Addr.Row, a1.AbsRow),
		Col:        p.colCoord(a1.Addr.Col, a1.AbsCol),
	}
}

// parseColRange consumes COL ':' COL where either side may carry '$'.
func (p *Parser) parseColRange(book, first, last string) Expr {
	c1, abs1, ok := ref.ParseCol(p.token.Literal)
	if !ok {
		p.addError(fmt.Sprintf("malformed column reference %q", p.token.Literal))
		p.nextToken()
		return &ErrorLit{Kind: value.ErrRef}
	}
	p.nextToken()
	if !p.expect(COLON) {
		return &ErrorLit{Kind: value.ErrRef}
	}
	c2, abs2, ok := ref.ParseCol(p.token.Literal)
	if !ok || (p.token.Kind != IDENT && p.token.Kind != COLREF) {
		p.addError(fmt.Sprintf("malformed column reference %q", p.token.Literal))
		p.nextToken()
		return &ErrorLit{Kind: value.ErrRef}
	}
	p.nextToken()
	return &ColRange{
		Book:       book,
		SheetFirst: first,
		SheetLast:  last,
		StartCol:   p.colCoord(c1, abs1),
		EndCol:     p.colCoord(c2, abs2),
	}
}

// parseRowRange consumes ROW ':' ROW where either side may carry '$'.
func (p *Parser) parseRowRange(book, first, last string) Expr {
	r1, abs1, ok := ref.ParseRow(p.token.Literal)
	if !ok {
		p.addError(fmt.Sprintf("malformed row reference %q", p.token.Literal))
		p.nextToken()
		return &ErrorLit{Kind: value.ErrRef}
	}
	p.nextToken()
	if !p.expect(COLON) {
		return &ErrorLit{Kind: value.ErrRef}
	}
	r2, abs2, ok := ref.ParseRow(p.token.Literal)
	if !ok || (p.token.Kind != NUMBER && p.token.Kind != ROWREF) {
		p.addError(fmt.Sprintf("malformed row reference %q", p.token.Literal))
		p.nextToken()
		return &ErrorLit{Kind: value.ErrRef}
	}
	p.nextToken()
	return &RowRange{
		Book:       book,
		SheetFirst: first,
		SheetLast:  last,
		StartRow:   p.rowCoord(r1, abs1),
		EndRow:     p.rowCoord(r2, abs2),
	}
}

func (p *Parser) rowCoord(row int, abs bool) Coord {
	if abs {
		return AbsCoord(row)
	}
	return RelCoord(row, p.origin.Row)
}

func (p *Parser) colCoord(col int, abs bool) Coord {
	if abs {
		return AbsCoord(col)
	}
	return RelCoord(col, p.origin.Col)
}

// parseCall parses the argument list of a named function call. The
// opening paren is the current token. LAMBDA calls fold into a
// LambdaExpr.
func (p *Parser) parseCall(name string) Expr {
	args := p.parseArgs()
	if name == "LAMBDA" {
		return p.foldLambda(args)
	}
	return &FuncCall{Name: name, Args: args}
}

// parseInvoke parses a direct invocation of a callee expression, such
// as LAMBDA(x,x+1)(5).
func (p *Parser) parseInvoke(callee Expr) Expr {
	return &Invoke{Callee: callee, Args: p.parseArgs()}
}

// parseArgs parses '(' arg, arg, ... ')'. An argument left empty
// between separators or before the closing paren becomes EmptyArg; a
// trailing argument that is simply not written does not appear at
// all. Union recognition is suspended inside the list, since ',' is
// the separator here.
func (p *Parser) parseArgs() []Expr {
	savedDepth := p.groupDepth
	p.groupDepth = 0
	defer func() { p.groupDepth = savedDepth }()

	p.expect(LPAREN)
	var args []Expr
	if !p.check(RPAREN) && !p.check(EOF) {
		for {
			if p.check(ARGSEP) || p.check(RPAREN) {
				args = append(args, &EmptyArg{})
			} else {
				args = append(args, p.parseExpr(precNone))
			}
			if p.match(ARGSEP) {
				continue
			}
			break
		}
	}
	p.expect(RPAREN)
	return args
}

// foldLambda turns LAMBDA(p1, ..., body) into a LambdaExpr, checking
// that every parameter is a plain name.
func (p *Parser) foldLambda(args []Expr) Expr {
	if len(args) == 0 {
		p.addError("LAMBDA requires a body")
		return &ErrorLit{Kind: value.ErrUnknown}
	}
	body := args[len(args)-1]
	if _, isEmpty := body.(*EmptyArg); isEmpty {
		p.addError("LAMBDA requires a body")
		return &ErrorLit{Kind: value.ErrUnknown}
	}
	params := make([]string, 0, len(args)-1)
	for _, a := range args[:len(args)-1] {
		name, ok := a.(*NameRef)
		if !ok || name.Sheet != "" {
			p.addError("LAMBDA parameter must be a name")
			return &ErrorLit{Kind: value.ErrUnknown}
		}
		params = append(params, name.Name)
	}
	return &LambdaExpr{Params: params, Body: body}
}

// parseArrayLit parses an array constant {1,2;3,4}. Elements are
// literal scalars, optionally signed; rows must be rectangular.
func (p *Parser) parseArrayLit() Expr {
	p.expect(LBRACE)
	var rows [][]Expr
	row := []Expr{}
	for {
		switch p.token.Kind {
		case RBRACE:
			p.nextToken()
			rows = append(rows, row)
			return p.finishArray(rows)
		case EOF:
			p.addError("unterminated array constant")
			return &ErrorLit{Kind: value.ErrUnknown}
		case ARRAYCOL:
			p.nextToken()
		case ARRAYROW:
			p.nextToken()
			rows = append(rows, row)
			row = []Expr{}
		default:
			row = append(row, p.parseArrayElement())
		}
	}
}

func (p *Parser) finishArray(rows [][]Expr) Expr {
	if len(rows) == 0 || len(rows[0]) == 0 {
		p.addError("empty array constant")
		return &ErrorLit{Kind: value.ErrUnknown}
	}
	width := len(rows[0])
	for _, r := range rows[1:] {
		if len(r) != width {
			p.addError("array rows must have equal length")
			return &ErrorLit{Kind: value.ErrUnknown}
		}
	}
	return &ArrayLit{Rows: rows}
}

// parseArrayElement parses one scalar inside an array constant.
func (p *Parser) parseArrayElement() Expr {
	neg := false
	for p.check(MINUS) || p.check(PLUS) {
		if p.check(MINUS) {
			neg = !neg
		}
		p.nextToken()
	}
	switch p.token.Kind {
	case NUMBER:
		lit := p.token.Literal
		p.nextToken()
		n, ok := p.loc.ParseNumber(lit)
		if !ok {
			p.addError(fmt.Sprintf("malformed number %q", lit))
			return &NumberLit{}
		}
		if neg {
			n = -n
		}
		return &NumberLit{Value: n}
	case STRING:
		lit := p.token.Literal
		p.nextToken()
		if neg {
			p.addError("cannot negate text in an array constant")
		}
		return &StringLit{Value: lit}
	case IDENT:
		lit := p.token.Literal
		p.nextToken()
		if b, ok := p.loc.ParseBool(lit); ok {
			return &BoolLit{Value: b}
		}
		p.addError(fmt.Sprintf("invalid array element %q", lit))
		return &ErrorLit{Kind: value.ErrUnknown}
	case ERRORLIT:
		lit := p.token.Literal
		p.nextToken()
		if kind, ok := p.loc.ParseError(lit); ok {
			return &ErrorLit{Kind: kind}
		}
		p.addError(fmt.Sprintf("unknown error literal %q", lit))
		return &ErrorLit{Kind: value.ErrUnknown}
	}
	p.addError(fmt.Sprintf("invalid array element %s", p.token.Kind))
	p.nextToken()
	return &ErrorLit{Kind: value.ErrUnknown}
}

// parseStructured parses a structured table reference. The current
// token is the BRACKET payload; table is the preceding table name, or
// empty for the [@Col] shorthand.
func (p *Parser) parseStructured(table string) Expr {
	raw := p.token.Literal
	p.nextToken()
	body := strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	sr := &StructuredRef{Table: table, Raw: raw}
	parseStructuredBody(sr, body)
	return sr
}

// parseStructuredBody fills in the selector fields from the bracket
// body. Unrecognized shapes keep only Raw, which still renders back
// verbatim; the evaluator rejects them.
func parseStructuredBody(sr *StructuredRef, body string) {
	if strings.HasPrefix(body, "@") {
		sr.ThisRow = true
		body = strings.TrimPrefix(body, "@")
		if body == "" {
			return
		}
	}
	if !strings.Contains(body, "[") {
		if strings.HasPrefix(body, "#") {
			sr.Section = body
			if strings.EqualFold(body, "#This Row") {
				sr.ThisRow = true
				sr.Section = ""
			}
			return
		}
		sr.StartCol = unescapeColumn(body)
		return
	}
	for _, item := range splitStructuredItems(body) {
		inner := strings.TrimSuffix(strings.TrimPrefix(item.text, "["), "]")
		switch {
		case strings.HasPrefix(inner, "#"):
			if strings.EqualFold(inner, "#This Row") {
				sr.ThisRow = true
			} else {
				sr.Section = inner
			}
		case strings.HasPrefix(inner, "@"):
			sr.ThisRow = true
			sr.StartCol = unescapeColumn(strings.TrimPrefix(inner, "@"))
		case item.spanEnd:
			sr.EndCol = unescapeColumn(inner)
		case sr.StartCol == "":
			sr.StartCol = unescapeColumn(inner)
		default:
			sr.EndCol = unescapeColumn(inner)
		}
	}
}

type structuredItem struct {
	text    string
	spanEnd bool // joined to the previous item by ':'
}

// splitStructuredItems splits "[#All],[A]:[B]" into bracketed items,
// tracking whether each was joined by ':' to its predecessor.
func splitStructuredItems(body string) []structuredItem {
	var items []structuredItem
	i := 0
	spanEnd := false
	for i < len(body) {
		switch body[i] {
		case '[':
			depth := 1
			j := i + 1
			for j < len(body) && depth > 0 {
				switch body[j] {
				case '[':
					depth++
				case ']':
					depth--
				}
				j++
			}
			items = append(items, structuredItem{text: body[i:j], spanEnd: spanEnd})
			spanEnd = false
			i = j
		case ':':
			spanEnd = true
			i++
		default:
			i++
		}
	}
	return items
}

// unescapeColumn undoes the bracket escapes used in column names,
// where ']' is written as ']]' and special characters are prefixed
// with a single quote.
func unescapeColumn(s string) string {
	s = strings.ReplaceAll(s, "]]", "]")
	s = strings.ReplaceAll(s, "'[", "[")
	s = strings.ReplaceAll(s, "']", "]")
	s = strings.ReplaceAll(s, "'#", "#")
	s = strings.ReplaceAll(s, "'@", "@")
	return s
}

// splitBook splits a "[Book]Sheet" literal into its book and sheet
// parts.
func splitBook(s string) (book, rest string, ok bool) {
	if !strings.HasPrefix(s, "[") {
		return "", s, false
	}
	idx := strings.IndexByte(s, ']')
	if idx < 0 {
		return "", s, false
	}
	return s[1:idx], s[idx+1:], true
}

// stripBookPrefix drops a leading "[Book]" from a sheet literal, for
// span tails like 'Book1.xlsx'Sheet3 where only the sheet matters.
func stripBookPrefix(s string) string {
	if _, rest, ok := splitBook(s); ok {
		return rest
	}
	return s
}
