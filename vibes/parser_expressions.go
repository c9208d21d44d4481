package vibes

import (
	"fmt"
	"strconv"
	"strings"
)

func (p *parser) parseIdentifier() Expression {
	ident := &Identifier{Name: p.curToken.Literal, position: p.curToken.Pos}
	return p.parseCommandCall(ident)
}

// parseCommandCall turns `name arg, key: v` and `name do ... end` into call
// expressions. Arguments must start on the same line as the callee.
func (p *parser) parseCommandCall(callee Expression) Expression {
	if p.peekToken.Type == tokenDo && !p.noDoBlock {
		call := &CallExpr{Callee: callee, position: callee.Pos()}
		p.nextToken()
		call.Block = p.parseBlockLiteral()
		return call
	}
	if !p.peekStartsCommandArg() {
		return callee
	}

	call := &CallExpr{Callee: callee, position: callee.Pos()}
	for {
		p.nextToken()
		if p.curToken.Type == tokenIdent && p.peekToken.Type == tokenColon {
			name := p.curToken.Literal
			p.nextToken()
			p.nextToken()
			call.KwArgs = append(call.KwArgs, KeywordArg{Name: name, Value: p.parseExpression(lowestPrec)})
		} else {
			arg := p.parseExpression(lowestPrec)
			if arg == nil {
				return nil
			}
			call.Args = append(call.Args, arg)
		}
		if p.peekToken.Type != tokenComma {
			break
		}
		p.nextToken()
	}
	if p.peekToken.Type == tokenDo && !p.noDoBlock {
		p.nextToken()
		call.Block = p.parseBlockLiteral()
	}
	return call
}

func (p *parser) peekStartsCommandArg() bool {
	if p.peekToken.Pos.Line != p.curToken.Pos.Line {
		return false
	}
	switch p.peekToken.Type {
	case tokenString, tokenInterpString, tokenInt, tokenFloat, tokenSymbol,
		tokenIdent, tokenIvar, tokenSelf, tokenNil, tokenTrue, tokenFalse:
		return true
	case tokenLBracket:
		// `name [1]` is a call while `name[1]` indexes.
		return p.peekToken.Pos.Column > p.curToken.Pos.Column+len(p.curToken.Literal)
	}
	return false
}

func (p *parser) parseIntegerLiteral() Expression {
	value, err := parseIntLiteral(p.curToken.Literal)
	if err != nil {
		p.addParseError(p.curToken.Pos, fmt.Sprintf("invalid integer %q", p.curToken.Literal))
		return nil
	}
	return &IntegerLiteral{Value: value, position: p.curToken.Pos}
}

func (p *parser) parseFloatLiteral() Expression {
	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.addParseError(p.curToken.Pos, fmt.Sprintf("invalid float %q", p.curToken.Literal))
		return nil
	}
	return &FloatLiteral{Value: value, position: p.curToken.Pos}
}

func (p *parser) parseStringLiteral() Expression {
	return &StringLiteral{Value: p.curToken.Literal, position: p.curToken.Pos}
}

// parseInterpolatedString splits the raw literal into text and #{...}
// segments, parsing each embedded expression with a child parser.
func (p *parser) parseInterpolatedString() Expression {
	pos := p.curToken.Pos
	raw := p.curToken.Literal
	node := &InterpolatedString{position: pos}

	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			node.Parts = append(node.Parts, &StringLiteral{Value: text.String(), position: pos})
			text.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case ch == '\\' && i+1 < len(raw):
			i++
			text.WriteString(unescapeRune(rune(raw[i])))
		case ch == '#' && i+1 < len(raw) && raw[i+1] == '{':
			depth := 1
			j := i + 2
			for ; j < len(raw) && depth > 0; j++ {
				switch raw[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
			}
			inner := raw[i+2 : j-1]
			flush()
			child := newParser(inner)
			expr := child.parseExpression(lowestPrec)
			if len(child.errors) > 0 || expr == nil {
				p.addParseError(pos, fmt.Sprintf("invalid interpolation #{%s}", inner))
				return nil
			}
			node.Parts = append(node.Parts, expr)
			i = j - 1
		default:
			text.WriteByte(ch)
		}
	}
	flush()
	return node
}

func (p *parser) parseSymbolLiteral() Expression {
	return &SymbolLiteral{Name: p.curToken.Literal, position: p.curToken.Pos}
}

func (p *parser) parseBooleanLiteral() Expression {
	return &BoolLiteral{Value: p.curToken.Type == tokenTrue, position: p.curToken.Pos}
}

func (p *parser) parseNilLiteral() Expression {
	return &NilLiteral{position: p.curToken.Pos}
}

func (p *parser) parseSelf() Expression {
	return &SelfExpr{position: p.curToken.Pos}
}

func (p *parser) parseIvar() Expression {
	return &IvarExpr{Name: p.curToken.Literal, position: p.curToken.Pos}
}

func (p *parser) parsePrefixExpression() Expression {
	expr := &UnaryExpr{Operator: p.curToken.Type, position: p.curToken.Pos}
	p.nextToken()
	expr.Right = p.parseExpression(precPrefix)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *parser) parseGroupedExpression() Expression {
	p.nextToken()
	expr := p.parseExpression(lowestPrec)
	if !p.expectPeek(tokenRParen) {
		return nil
	}
	return expr
}

func (p *parser) parseArrayLiteral() Expression {
	arr := &ArrayLiteral{position: p.curToken.Pos}
	if p.peekToken.Type == tokenRBracket {
		p.nextToken()
		return arr
	}
	for {
		p.nextToken()
		elem := p.parseExpression(lowestPrec)
		if elem == nil {
			return nil
		}
		arr.Elements = append(arr.Elements, elem)
		if p.peekToken.Type == tokenComma {
			p.nextToken()
			if p.peekToken.Type == tokenRBracket {
				p.nextToken()
				return arr
			}
			continue
		}
		if !p.expectPeek(tokenRBracket) {
			return nil
		}
		return arr
	}
}

func (p *parser) parseHashLiteral() Expression {
	hash := &HashLiteral{position: p.curToken.Pos}
	if p.peekToken.Type == tokenRBrace {
		p.nextToken()
		return hash
	}
	for {
		p.nextToken()
		pair, ok := p.parseHashPair()
		if !ok {
			return nil
		}
		hash.Pairs = append(hash.Pairs, pair)
		if p.peekToken.Type == tokenComma {
			p.nextToken()
			if p.peekToken.Type == tokenRBrace {
				p.nextToken()
				return hash
			}
			continue
		}
		if !p.expectPeek(tokenRBrace) {
			return nil
		}
		return hash
	}
}

// parseHashPair accepts both `name: value` and `key => value`.
func (p *parser) parseHashPair() (HashPair, bool) {
	if (p.curToken.Type == tokenIdent || p.curToken.Type == tokenString) && p.peekToken.Type == tokenColon {
		key := &StringLiteral{Value: p.curToken.Literal, position: p.curToken.Pos}
		p.nextToken()
		p.nextToken()
		value := p.parseExpression(lowestPrec)
		return HashPair{Key: key, Value: value}, value != nil
	}
	key := p.parseExpression(lowestPrec)
	if key == nil {
		return HashPair{}, false
	}
	if !p.expectPeek(tokenHashRock) {
		return HashPair{}, false
	}
	p.nextToken()
	value := p.parseExpression(lowestPrec)
	return HashPair{Key: key, Value: value}, value != nil
}

func (p *parser) parseInfixExpression(left Expression) Expression {
	expr := &BinaryExpr{Left: left, Operator: p.curToken.Type, position: p.curToken.Pos}
	precedence := p.curPrecedence()
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *parser) parseRangeExpression(left Expression) Expression {
	expr := &RangeExpr{Start: left, position: p.curToken.Pos}
	p.nextToken()
	expr.End = p.parseExpression(precRange)
	if expr.End == nil {
		return nil
	}
	return expr
}

func (p *parser) parseCallExpression(callee Expression) Expression {
	call := &CallExpr{Callee: callee, position: callee.Pos()}
	if p.peekToken.Type == tokenRParen {
		p.nextToken()
	} else {
		for {
			p.nextToken()
			if p.curToken.Type == tokenIdent && p.peekToken.Type == tokenColon {
				name := p.curToken.Literal
				p.nextToken()
				p.nextToken()
				value := p.parseExpression(lowestPrec)
				if value == nil {
					return nil
				}
				call.KwArgs = append(call.KwArgs, KeywordArg{Name: name, Value: value})
			} else {
				arg := p.parseExpression(lowestPrec)
				if arg == nil {
					return nil
				}
				call.Args = append(call.Args, arg)
			}
			if p.peekToken.Type == tokenComma {
				p.nextToken()
				continue
			}
			if !p.expectPeek(tokenRParen) {
				return nil
			}
			break
		}
	}
	if p.peekToken.Type == tokenDo && !p.noDoBlock {
		p.nextToken()
		call.Block = p.parseBlockLiteral()
	}
	return call
}

func (p *parser) parseIndexExpression(left Expression) Expression {
	expr := &IndexExpr{Object: left, position: p.curToken.Pos}
	p.nextToken()
	expr.Index = p.parseExpression(lowestPrec)
	if expr.Index == nil || !p.expectPeek(tokenRBracket) {
		return nil
	}
	return expr
}

func (p *parser) parseMemberExpression(left Expression) Expression {
	pos := p.curToken.Pos
	p.nextToken()
	if !isNameToken(p.curToken) {
		p.errorExpected(p.curToken, "member name")
		return nil
	}
	member := &MemberExpr{Object: left, Property: p.curToken.Literal, position: pos}
	if p.peekToken.Type == tokenLParen && p.peekToken.Pos.Line == p.curToken.Pos.Line {
		return member
	}
	return p.parseCommandCall(member)
}

func (p *parser) parseBlockLiteral() *BlockLiteral {
	block := &BlockLiteral{position: p.curToken.Pos}
	if p.peekToken.Type == tokenPipe {
		p.nextToken()
		for {
			if !p.expectPeek(tokenIdent) {
				return nil
			}
			block.Params = append(block.Params, Param{Name: p.curToken.Literal})
			if p.peekToken.Type == tokenComma {
				p.nextToken()
				continue
			}
			if !p.expectPeek(tokenPipe) {
				return nil
			}
			break
		}
	}
	saved := p.noDoBlock
	p.noDoBlock = false
	block.Body = p.parseBlock(tokenEnd)
	p.noDoBlock = saved
	return block
}
