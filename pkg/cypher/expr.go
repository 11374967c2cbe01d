package cypher

import "strconv"

// Expression parsing follows the precedence ladder, lowest first:
// OR < XOR < AND < NOT < comparison < string predicate < additive <
// multiplicative < unary minus < power < access < atom.

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	lhs, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.cur().IsKeyword("OR") {
		p.advance()
		rhs, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		lhs = &Binary{Op: "OR", LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseXor() (Expr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().IsKeyword("XOR") {
		p.advance()
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = &Binary{Op: "XOR", LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	lhs, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur().IsKeyword("AND") {
		p.advance()
		rhs, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		lhs = &Binary{Op: "AND", LHS: lhs, RHS: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.cur().IsKeyword("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "NOT", Operand: operand}, nil
	}
	return p.parseComparison()
}

func comparisonOp(t Token) (string, bool) {
	switch t.Kind {
	case TokenEq:
		return "=", true
	case TokenNeq:
		return "<>", true
	case TokenLt:
		return "<", true
	case TokenLte:
		return "<=", true
	case TokenGt:
		return ">", true
	case TokenGte:
		return ">=", true
	}
	return "", false
}

// parseComparison desugars chained comparisons, so a <= b < c becomes
// a <= b AND b < c.
func (p *Parser) parseComparison() (Expr, error) {
	lhs, err := p.parseStringPredicate()
	if err != nil {
		return nil, err
	}
	var result Expr
	prev := lhs
	for {
		op, ok := comparisonOp(p.cur())
		if !ok {
			break
		}
		p.advance()
		rhs, err := p.parseStringPredicate()
		if err != nil {
			return nil, err
		}
		cmp := &Binary{Op: op, LHS: prev, RHS: rhs}
		if result == nil {
			result = cmp
		} else {
			result = &Binary{Op: "AND", LHS: result, RHS: cmp}
		}
		prev = rhs
	}
	if result != nil {
		return result, nil
	}
	return lhs, nil
}

func (p *Parser) parseStringPredicate() (Expr, error) {
	lhs, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.cur().IsKeyword("IN"):
			p.advance()
			rhs, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			lhs = &Binary{Op: "IN", LHS: lhs, RHS: rhs}
		case p.cur().IsKeyword("STARTS"):
			p.advance()
			if err := p.expectKeyword("WITH"); err != nil {
				return nil, err
			}
			rhs, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			lhs = &Binary{Op: "STARTS WITH", LHS: lhs, RHS: rhs}
		case p.cur().IsKeyword("ENDS"):
			p.advance()
			if err := p.expectKeyword("WITH"); err != nil {
				return nil, err
			}
			rhs, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			lhs = &Binary{Op: "ENDS WITH", LHS: lhs, RHS: rhs}
		case p.cur().IsKeyword("CONTAINS"):
			p.advance()
			rhs, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			lhs = &Binary{Op: "CONTAINS", LHS: lhs, RHS: rhs}
		case p.cur().Kind == TokenRegexMatch:
			p.advance()
			rhs, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			lhs = &Binary{Op: "=~", LHS: lhs, RHS: rhs}
		case p.cur().IsKeyword("IS"):
			p.advance()
			negated := p.acceptKeyword("NOT")
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			lhs = &IsNull{Subject: lhs, Negated: negated}
		default:
			return lhs, nil
		}
	}
}

func (p *Parser) parseAdditive() (Expr, error) {
	lhs, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.cur().Kind {
		case TokenPlus:
			op = "+"
		case TokenMinus:
			op = "-"
		default:
			return lhs, nil
		}
		p.advance()
		rhs, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		lhs = &Binary{Op: op, LHS: lhs, RHS: rhs}
	}
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.cur().Kind {
		case TokenStar:
			op = "*"
		case TokenSlash:
			op = "/"
		case TokenPercent:
			op = "%"
		default:
			return lhs, nil
		}
		p.advance()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = &Binary{Op: op, LHS: lhs, RHS: rhs}
	}
}

func (p *Parser) parseUnary() (Expr, error) {
	switch p.cur().Kind {
	case TokenMinus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "-", Operand: operand}, nil
	case TokenPlus:
		p.advance()
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *Parser) parsePower() (Expr, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind == TokenCaret {
		p.advance()
		// right-associative
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "^", LHS: base, RHS: exp}, nil
	}
	return base, nil
}

func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case TokenDot:
			p.advance()
			key, err := p.expectIdent("a property name")
			if err != nil {
				return nil, err
			}
			expr = &PropertyAccess{Subject: expr, Key: key}
		case TokenLBracket:
			p.advance()
			var from Expr
			if p.cur().Kind != TokenRange {
				if from, err = p.parseExpr(); err != nil {
					return nil, err
				}
			}
			if p.cur().Kind == TokenRange {
				p.advance()
				var to Expr
				if p.cur().Kind != TokenRBracket {
					if to, err = p.parseExpr(); err != nil {
						return nil, err
					}
				}
				if _, err := p.expect(TokenRBracket, "']'"); err != nil {
					return nil, err
				}
				expr = &SliceAccess{Subject: expr, From: from, To: to}
				continue
			}
			if from == nil {
				return nil, p.errExpected("an index expression")
			}
			if _, err := p.expect(TokenRBracket, "']'"); err != nil {
				return nil, err
			}
			expr = &IndexAccess{Subject: expr, Index: from}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseAtom() (Expr, error) {
	t := p.cur()
	switch t.Kind {
	case TokenInt:
		p.advance()
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return nil, &SyntaxError{Line: t.Line, Col: t.Col, Expected: "an integer literal", Found: t.describe()}
		}
		return &Literal{Value: n}, nil
	case TokenFloat:
		p.advance()
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, &SyntaxError{Line: t.Line, Col: t.Col, Expected: "a float literal", Found: t.describe()}
		}
		return &Literal{Value: f}, nil
	case TokenString:
		p.advance()
		return &Literal{Value: t.Text}, nil
	case TokenParam:
		p.advance()
		return &Parameter{Name: t.Text}, nil
	case TokenLParen:
		if p.patternAhead(p.pos) {
			part, err := p.parsePatternPart()
			if err != nil {
				return nil, err
			}
			return &PatternExpr{Part: part}, nil
		}
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenLBracket:
		return p.parseBracketAtom()
	case TokenLBrace:
		return p.parseMapLiteral()
	}

	switch {
	case t.IsKeyword("TRUE"):
		p.advance()
		return &Literal{Value: true}, nil
	case t.IsKeyword("FALSE"):
		p.advance()
		return &Literal{Value: false}, nil
	case t.IsKeyword("NULL"):
		p.advance()
		return &Literal{Value: nil}, nil
	case t.IsKeyword("CASE"):
		p.advance()
		return p.parseCase()
	case t.IsKeyword("EXISTS") && p.peek().Kind == TokenLParen:
		return p.parseExists()
	case (t.IsKeyword("ALL") || t.IsKeyword("ANY") || t.IsKeyword("NONE") || t.IsKeyword("SINGLE")) && p.peek().Kind == TokenLParen:
		return p.parseQuantifier()
	case t.IsKeyword("REDUCE") && p.peek().Kind == TokenLParen:
		return p.parseReduce()
	}

	if t.Kind == TokenIdent {
		if name, ok := p.functionNameAhead(); ok {
			return p.parseFunctionCall(name)
		}
		p.advance()
		return &Variable{Name: t.Text}, nil
	}
	return nil, p.errExpected("an expression")
}

// functionNameAhead detects a possibly dotted function name directly
// followed by '(' and, if found, consumes the name.
func (p *Parser) functionNameAhead() (string, bool) {
	i := p.pos
	for p.at(i).Kind == TokenIdent && p.at(i+1).Kind == TokenDot && p.at(i+2).Kind == TokenIdent {
		i += 2
	}
	if p.at(i).Kind != TokenIdent || p.at(i+1).Kind != TokenLParen {
		return "", false
	}
	name := p.advance().Text
	for p.cur().Kind == TokenDot {
		p.advance()
		name += "." + p.advance().Text
	}
	return name, true
}

func (p *Parser) parseFunctionCall(name string) (Expr, error) {
	if _, err := p.expect(TokenLParen, "'('"); err != nil {
		return nil, err
	}
	fc := &FunctionCall{Name: name}
	if p.cur().Kind == TokenStar {
		p.advance()
		fc.Star = true
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return fc, nil
	}
	fc.Distinct = p.acceptKeyword("DISTINCT")
	for p.cur().Kind != TokenRParen {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		fc.Args = append(fc.Args, arg)
		if p.cur().Kind != TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenRParen, "')'"); err != nil {
		return nil, err
	}
	return fc, nil
}

// parseBracketAtom distinguishes list literals, list comprehensions
// and pattern comprehensions, which all open with '['.
func (p *Parser) parseBracketAtom() (Expr, error) {
	p.advance()

	// [x IN list WHERE pred | proj]
	if p.cur().Kind == TokenIdent && p.peek().IsKeyword("IN") {
		v := p.advance().Text
		p.advance()
		list, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lc := &ListComprehension{Var: v, List: list}
		if p.acceptKeyword("WHERE") {
			if lc.Where, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
		if p.cur().Kind == TokenPipe {
			p.advance()
			if lc.Projection, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(TokenRBracket, "']'"); err != nil {
			return nil, err
		}
		return lc, nil
	}

	// [(a)-[:R]->(b) | proj]
	if p.patternAhead(p.pos) || (p.cur().Kind == TokenIdent && p.peek().Kind == TokenEq && p.at(p.pos+2).Kind == TokenLParen) {
		part, err := p.parsePatternPart()
		if err != nil {
			return nil, err
		}
		pc := &PatternComprehension{Part: part}
		if p.acceptKeyword("WHERE") {
			if pc.Where, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(TokenPipe, "'|'"); err != nil {
			return nil, err
		}
		if pc.Projection, err = p.parseExpr(); err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRBracket, "']'"); err != nil {
			return nil, err
		}
		return pc, nil
	}

	list := &ListLiteral{}
	for p.cur().Kind != TokenRBracket {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
		if p.cur().Kind != TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenRBracket, "']'"); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Parser) parseMapLiteral() (Expr, error) {
	p.advance()
	m := &MapLiteral{}
	for p.cur().Kind != TokenRBrace {
		var key string
		switch p.cur().Kind {
		case TokenIdent, TokenString:
			key = p.advance().Text
		default:
			return nil, p.errExpected("a map key")
		}
		if _, err := p.expect(TokenColon, "':'"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, value)
		if p.cur().Kind != TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenRBrace, "'}'"); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Parser) parseCase() (Expr, error) {
	c := &CaseExpr{}
	var err error
	if !p.cur().IsKeyword("WHEN") {
		if c.Input, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	for p.acceptKeyword("WHEN") {
		var arm CaseWhen
		if arm.Cond, err = p.parseExpr(); err != nil {
			return nil, err
		}
		if err = p.expectKeyword("THEN"); err != nil {
			return nil, err
		}
		if arm.Then, err = p.parseExpr(); err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, arm)
	}
	if len(c.Whens) == 0 {
		return nil, p.errExpected("'WHEN'")
	}
	if p.acceptKeyword("ELSE") {
		if c.Else, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if err = p.expectKeyword("END"); err != nil {
		return nil, err
	}
	return c, nil
}

// parseExists handles both EXISTS((a)-[:R]->(b)) and exists(n.prop).
func (p *Parser) parseExists() (Expr, error) {
	p.advance()
	if p.patternAhead(p.pos + 1) {
		p.advance()
		part, err := p.parsePatternPart()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return &PatternExpr{Part: part}, nil
	}
	return p.parseFunctionCall("exists")
}

func (p *Parser) parseQuantifier() (Expr, error) {
	kind := p.advance().Upper
	if _, err := p.expect(TokenLParen, "'('"); err != nil {
		return nil, err
	}
	q := &Quantifier{Kind: kind}
	var err error
	if q.Var, err = p.expectIdent("a variable"); err != nil {
		return nil, err
	}
	if err = p.expectKeyword("IN"); err != nil {
		return nil, err
	}
	if q.List, err = p.parseExpr(); err != nil {
		return nil, err
	}
	if p.acceptKeyword("WHERE") {
		if q.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if _, err = p.expect(TokenRParen, "')'"); err != nil {
		return nil, err
	}
	return q, nil
}

func (p *Parser) parseReduce() (Expr, error) {
	p.advance()
	if _, err := p.expect(TokenLParen, "'('"); err != nil {
		return nil, err
	}
	r := &Reduce{}
	var err error
	if r.Acc, err = p.expectIdent("an accumulator"); err != nil {
		return nil, err
	}
	if _, err = p.expect(TokenEq, "'='"); err != nil {
		return nil, err
	}
	if r.Init, err = p.parseExpr(); err != nil {
		return nil, err
	}
	if _, err = p.expect(TokenComma, "','"); err != nil {
		return nil, err
	}
	if r.Var, err = p.expectIdent("a variable"); err != nil {
		return nil, err
	}
	if err = p.expectKeyword("IN"); err != nil {
		return nil, err
	}
	if r.List, err = p.parseExpr(); err != nil {
		return nil, err
	}
	if _, err = p.expect(TokenPipe, "'|'"); err != nil {
		return nil, err
	}
	if r.Expr, err = p.parseExpr(); err != nil {
		return nil, err
	}
	if _, err = p.expect(TokenRParen, "')'"); err != nil {
		return nil, err
	}
	return r, nil
}
