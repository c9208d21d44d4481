package vibes

import (
	"errors"
	"fmt"
	"strconv"
)

type (
	prefixParseFn func() Expression
	infixParseFn  func(Expression) Expression
)

const (
	lowestPrec = iota
	precOr
	precAnd
	precEquality
	precComparison
	precRange
	precSum
	precProduct
	precPrefix
	precCall
)

var precedences = map[TokenType]int{
	tokenOr:       precOr,
	tokenAnd:      precAnd,
	tokenEQ:       precEquality,
	tokenNotEQ:    precEquality,
	tokenLT:       precComparison,
	tokenLTE:      precComparison,
	tokenGT:       precComparison,
	tokenGTE:      precComparison,
	tokenRange:    precRange,
	tokenPlus:     precSum,
	tokenMinus:    precSum,
	tokenAsterisk: precProduct,
	tokenSlash:    precProduct,
	tokenPercent:  precProduct,
	tokenLParen:   precCall,
	tokenLBracket: precCall,
	tokenDot:      precCall,
}

type parser struct {
	l      *lexer
	source string

	curToken  Token
	peekToken Token

	errors []error

	// noDoBlock is set while parsing loop headers so a trailing `do`
	// belongs to the loop rather than to a call in the condition.
	noDoBlock bool

	prefixFns map[TokenType]prefixParseFn
	infixFns  map[TokenType]infixParseFn
}

func newParser(input string) *parser {
	p := &parser{l: newLexer(input), source: input}
	p.prefixFns = map[TokenType]prefixParseFn{
		tokenIdent:        p.parseIdentifier,
		tokenInt:          p.parseIntegerLiteral,
		tokenFloat:        p.parseFloatLiteral,
		tokenString:       p.parseStringLiteral,
		tokenInterpString: p.parseInterpolatedString,
		tokenSymbol:       p.parseSymbolLiteral,
		tokenTrue:         p.parseBooleanLiteral,
		tokenFalse:        p.parseBooleanLiteral,
		tokenNil:          p.parseNilLiteral,
		tokenSelf:         p.parseSelf,
		tokenIvar:         p.parseIvar,
		tokenBang:         p.parsePrefixExpression,
		tokenMinus:        p.parsePrefixExpression,
		tokenLParen:       p.parseGroupedExpression,
		tokenLBracket:     p.parseArrayLiteral,
		tokenLBrace:       p.parseHashLiteral,
	}
	p.infixFns = map[TokenType]infixParseFn{
		tokenPlus:     p.parseInfixExpression,
		tokenMinus:    p.parseInfixExpression,
		tokenAsterisk: p.parseInfixExpression,
		tokenSlash:    p.parseInfixExpression,
		tokenPercent:  p.parseInfixExpression,
		tokenEQ:       p.parseInfixExpression,
		tokenNotEQ:    p.parseInfixExpression,
		tokenLT:       p.parseInfixExpression,
		tokenLTE:      p.parseInfixExpression,
		tokenGT:       p.parseInfixExpression,
		tokenGTE:      p.parseInfixExpression,
		tokenAnd:      p.parseInfixExpression,
		tokenOr:       p.parseInfixExpression,
		tokenRange:    p.parseRangeExpression,
		tokenLParen:   p.parseCallExpression,
		tokenLBracket: p.parseIndexExpression,
		tokenDot:      p.parseMemberExpression,
	}

	p.nextToken()
	p.nextToken()
	return p
}

func (p *parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// ParseProgram parses source into a Program, returning every parse error
// joined into one.
func (p *parser) ParseProgram() (*Program, error) {
	program := &Program{}
	for p.curToken.Type != tokenEOF {
		if stmt := p.parseStatement(); stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.nextToken()
	}
	if len(p.errors) > 0 {
		return program, errors.Join(p.errors...)
	}
	return program, nil
}

func (p *parser) parseStatement() Statement {
	switch p.curToken.Type {
	case tokenDef:
		return p.parseFunctionStatement(false)
	case tokenClass:
		return p.parseClassStatement()
	case tokenReturn:
		return p.parseReturnStatement()
	case tokenRaise:
		return p.parseRaiseStatement()
	case tokenIf:
		return p.parseIfStatement()
	case tokenWhile:
		return p.parseWhileStatement()
	case tokenFor:
		return p.parseForStatement()
	case tokenBegin:
		return p.parseTryStatement()
	case tokenBreak:
		return &BreakStmt{position: p.curToken.Pos}
	case tokenNext:
		return &NextStmt{position: p.curToken.Pos}
	case tokenIllegal:
		p.addParseError(p.curToken.Pos, fmt.Sprintf("illegal token %q", p.curToken.Literal))
		return nil
	default:
		return p.parseExpressionOrAssignStatement()
	}
}

// parseBlock advances past the construct header and collects statements
// until one of stop is the current token.
func (p *parser) parseBlock(stop ...TokenType) []Statement {
	var stmts []Statement
	p.nextToken()
	for !p.curTokenIs(stop...) {
		if p.curToken.Type == tokenEOF {
			p.errorExpected(p.curToken, tokenLabel(stop[0]))
			return stmts
		}
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
		}
		p.nextToken()
	}
	return stmts
}

func (p *parser) parseFunctionStatement(inClass bool) Statement {
	pos := p.curToken.Pos
	fn := &FunctionStmt{position: pos}

	if p.peekToken.Type == tokenSelf {
		if !inClass {
			p.addParseError(p.peekToken.Pos, "class methods are only allowed inside a class")
			return nil
		}
		p.nextToken()
		if !p.expectPeek(tokenDot) {
			return nil
		}
		fn.IsClassMethod = true
	}

	p.nextToken()
	if !isNameToken(p.curToken) {
		p.errorExpected(p.curToken, "function name")
		return nil
	}
	fn.Name = p.curToken.Literal

	if p.peekToken.Type == tokenLParen && p.peekToken.Pos.Line == p.curToken.Pos.Line {
		p.nextToken()
		params, ok := p.parseParams()
		if !ok {
			return nil
		}
		fn.Params = params
	}

	if p.peekToken.Type == tokenArrow {
		p.nextToken()
		p.nextToken()
		fn.ReturnTy = p.parseTypeExpr()
		if fn.ReturnTy == nil {
			return nil
		}
	}

	fn.Body = p.parseBlock(tokenEnd)
	fn.end = p.curToken.Pos
	return fn
}

func (p *parser) parseParams() ([]Param, bool) {
	var params []Param
	if p.peekToken.Type == tokenRParen {
		p.nextToken()
		return params, true
	}

	for {
		p.nextToken()
		if p.curToken.Type != tokenIdent {
			p.errorExpected(p.curToken, "parameter name")
			return nil, false
		}
		param := Param{Name: p.curToken.Literal}
		if p.peekToken.Type == tokenColon {
			p.nextToken()
			p.nextToken()
			param.Type = p.parseTypeExpr()
			if param.Type == nil {
				return nil, false
			}
		}
		if p.peekToken.Type == tokenAssign {
			p.nextToken()
			p.nextToken()
			param.DefaultVal = p.parseExpression(lowestPrec)
		}
		params = append(params, param)

		if p.peekToken.Type == tokenComma {
			p.nextToken()
			continue
		}
		if !p.expectPeek(tokenRParen) {
			return nil, false
		}
		return params, true
	}
}

func (p *parser) parseClassStatement() Statement {
	pos := p.curToken.Pos
	if !p.expectPeek(tokenIdent) {
		return nil
	}
	class := &ClassStmt{Name: p.curToken.Literal, position: pos}

	private := false
	p.nextToken()
	for p.curToken.Type != tokenEnd {
		switch p.curToken.Type {
		case tokenEOF:
			p.errorExpected(p.curToken, "end")
			return nil
		case tokenPrivate:
			private = true
		case tokenDef:
			stmt := p.parseFunctionStatement(true)
			if fn, ok := stmt.(*FunctionStmt); ok {
				fn.Private = private
				if fn.IsClassMethod {
					class.ClassMethods = append(class.ClassMethods, fn)
				} else {
					class.Methods = append(class.Methods, fn)
				}
			}
		case tokenProperty:
			class.Properties = append(class.Properties, p.parsePropertyDecls()...)
		default:
			if stmt := p.parseStatement(); stmt != nil {
				class.Body = append(class.Body, stmt)
			}
		}
		p.nextToken()
	}
	class.end = p.curToken.Pos
	return class
}

func (p *parser) parsePropertyDecls() []*PropertyDecl {
	var decls []*PropertyDecl
	for {
		if !p.expectPeek(tokenIdent) {
			return decls
		}
		decl := &PropertyDecl{Name: p.curToken.Literal, position: p.curToken.Pos}
		if p.peekToken.Type == tokenColon {
			p.nextToken()
			p.nextToken()
			decl.Type = p.parseTypeExpr()
			if decl.Type == nil {
				return decls
			}
		}
		if p.peekToken.Type == tokenAssign {
			p.nextToken()
			p.nextToken()
			decl.Default = p.parseExpression(lowestPrec)
		}
		decls = append(decls, decl)
		if p.peekToken.Type != tokenComma {
			return decls
		}
		p.nextToken()
	}
}

func (p *parser) parseReturnStatement() Statement {
	stmt := &ReturnStmt{position: p.curToken.Pos}
	if p.peekStartsExpression() {
		p.nextToken()
		stmt.Value = p.parseExpression(lowestPrec)
	}
	return stmt
}

func (p *parser) parseRaiseStatement() Statement {
	stmt := &RaiseStmt{position: p.curToken.Pos}
	if p.peekStartsExpression() {
		p.nextToken()
		stmt.Value = p.parseExpression(lowestPrec)
	}
	return stmt
}

func (p *parser) parseIfStatement() Statement {
	stmt := &IfStmt{position: p.curToken.Pos}
	p.nextToken()
	stmt.Condition = p.parseExpression(lowestPrec)
	stmt.Consequent = p.parseBlock(tokenElsif, tokenElse, tokenEnd)

	for p.curToken.Type == tokenElsif {
		clause := &IfStmt{position: p.curToken.Pos}
		p.nextToken()
		clause.Condition = p.parseExpression(lowestPrec)
		clause.Consequent = p.parseBlock(tokenElsif, tokenElse, tokenEnd)
		stmt.ElseIf = append(stmt.ElseIf, clause)
	}
	if p.curToken.Type == tokenElse {
		stmt.Alternate = p.parseBlock(tokenEnd)
	}
	return stmt
}

func (p *parser) parseWhileStatement() Statement {
	stmt := &WhileStmt{position: p.curToken.Pos}
	p.nextToken()
	p.noDoBlock = true
	stmt.Condition = p.parseExpression(lowestPrec)
	p.noDoBlock = false
	if p.peekToken.Type == tokenDo {
		p.nextToken()
	}
	stmt.Body = p.parseBlock(tokenEnd)
	return stmt
}

func (p *parser) parseForStatement() Statement {
	stmt := &ForStmt{position: p.curToken.Pos}
	if !p.expectPeek(tokenIdent) {
		return nil
	}
	stmt.Iterator = p.curToken.Literal
	if !p.expectPeek(tokenIn) {
		return nil
	}
	p.nextToken()
	p.noDoBlock = true
	stmt.Iterable = p.parseExpression(lowestPrec)
	p.noDoBlock = false
	if p.peekToken.Type == tokenDo {
		p.nextToken()
	}
	stmt.Body = p.parseBlock(tokenEnd)
	return stmt
}

func (p *parser) parseTryStatement() Statement {
	stmt := &TryStmt{position: p.curToken.Pos}
	stmt.Body = p.parseBlock(tokenRescue, tokenEnsure, tokenEnd)
	if p.curToken.Type == tokenRescue {
		if p.peekToken.Type == tokenHashRock {
			p.nextToken()
		}
		if p.peekToken.Type == tokenIdent && p.peekToken.Pos.Line == p.curToken.Pos.Line {
			p.nextToken()
			stmt.RescueVar = p.curToken.Literal
		}
		stmt.Rescue = p.parseBlock(tokenEnsure, tokenEnd)
	}
	if p.curToken.Type == tokenEnsure {
		stmt.Ensure = p.parseBlock(tokenEnd)
	}
	return stmt
}

func (p *parser) parseExpressionOrAssignStatement() Statement {
	pos := p.curToken.Pos
	expr := p.parseExpression(lowestPrec)
	if expr == nil {
		return nil
	}

	switch p.peekToken.Type {
	case tokenAssign, tokenPlusAssign, tokenMinusAssign:
		if !isAssignable(expr) {
			p.addParseError(p.peekToken.Pos, "invalid assignment target")
			return nil
		}
		p.nextToken()
		op := p.curToken.Type
		p.nextToken()
		value := p.parseExpression(lowestPrec)
		if value == nil {
			return nil
		}
		return &AssignStmt{Target: expr, Value: value, Operator: op, position: pos}
	}

	return &ExprStmt{Expr: expr, position: pos}
}

func isAssignable(expr Expression) bool {
	switch expr.(type) {
	case *Identifier, *IvarExpr, *MemberExpr, *IndexExpr:
		return true
	}
	return false
}

func (p *parser) parseTypeExpr() *TypeExpr {
	first := p.parseTypeAtom()
	if first == nil {
		return nil
	}
	union := []*TypeExpr{first}
	for p.peekToken.Type == tokenPipe {
		p.nextToken()
		p.nextToken()
		next := p.parseTypeAtom()
		if next == nil {
			return nil
		}
		union = append(union, next)
	}
	if len(union) == 1 {
		return first
	}
	ty := &TypeExpr{Kind: TypeUnion, Union: union, position: first.position}
	ty.Name = formatTypeExpr(ty)
	return ty
}

func (p *parser) parseTypeAtom() *TypeExpr {
	if p.curToken.Type != tokenIdent && p.curToken.Type != tokenNil {
		p.errorExpected(p.curToken, "type name")
		return nil
	}
	ty := &TypeExpr{Name: p.curToken.Literal, position: p.curToken.Pos}
	ty.Kind, ty.Nullable = resolveType(p.curToken.Literal)

	if p.peekToken.Type != tokenLT {
		return ty
	}
	if ty.Kind != TypeArray && ty.Kind != TypeHash {
		p.addParseError(p.curToken.Pos, fmt.Sprintf("type %s does not accept type arguments", ty.Name))
		return nil
	}
	p.nextToken()
	for {
		p.nextToken()
		arg := p.parseTypeExpr()
		if arg == nil {
			return nil
		}
		ty.TypeArgs = append(ty.TypeArgs, arg)
		if p.peekToken.Type == tokenComma {
			p.nextToken()
			continue
		}
		if !p.expectPeek(tokenGT) {
			return nil
		}
		break
	}
	if p.peekToken.Type == tokenIllegal && p.peekToken.Literal == "?" {
		p.nextToken()
		ty.Nullable = true
		ty.Name += "?"
	}
	return ty
}

func (p *parser) parseExpression(precedence int) Expression {
	prefix := p.prefixFns[p.curToken.Type]
	if prefix == nil {
		p.errorUnexpected(p.curToken)
		return nil
	}
	left := prefix()
	if left == nil {
		return nil
	}

	for p.peekToken.Type != tokenEOF && precedence < p.peekPrecedence() {
		infix := p.infixFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
		if left == nil {
			return nil
		}
	}
	return left
}

func (p *parser) peekPrecedence() int {
	switch p.peekToken.Type {
	case tokenLParen, tokenLBracket:
		// A call or index must start on the line of its receiver.
		if p.peekToken.Pos.Line != p.curToken.Pos.Line {
			return lowestPrec
		}
	}
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return lowestPrec
}

func (p *parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return lowestPrec
}

func (p *parser) curTokenIs(types ...TokenType) bool {
	for _, tt := range types {
		if p.curToken.Type == tt {
			return true
		}
	}
	return false
}

func (p *parser) expectPeek(tt TokenType) bool {
	if p.peekToken.Type == tt {
		p.nextToken()
		return true
	}
	p.errorExpected(p.peekToken, tokenLabel(tt))
	return false
}

// peekStartsExpression reports whether the next token opens an expression
// on the current line.
func (p *parser) peekStartsExpression() bool {
	if p.peekToken.Pos.Line != p.curToken.Pos.Line {
		return false
	}
	_, ok := p.prefixFns[p.peekToken.Type]
	return ok
}

func isNameToken(tok Token) bool {
	if tok.Type == tokenIdent {
		return true
	}
	_, keyword := keywords[tok.Literal]
	return keyword && tok.Literal != ""
}

func parseIntLiteral(literal string) (int64, error) {
	return strconv.ParseInt(literal, 10, 64)
}
