package cypher

import "strconv"

func (p *Parser) parsePatternList() ([]*PatternPart, error) {
	var parts []*PatternPart
	for {
		part, err := p.parsePatternPart()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		if p.cur().Kind != TokenComma {
			return parts, nil
		}
		p.advance()
	}
}

// parsePatternPart parses an optionally named path: p = (a)-[r]->(b).
func (p *Parser) parsePatternPart() (*PatternPart, error) {
	part := &PatternPart{}
	if p.cur().Kind == TokenIdent && p.peek().Kind == TokenEq && p.at(p.pos+2).Kind == TokenLParen {
		part.Variable = p.advance().Text
		p.advance()
	}

	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	part.Nodes = append(part.Nodes, node)

	for p.cur().Kind == TokenMinus || p.cur().Kind == TokenLt {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		part.Rels = append(part.Rels, rel)
		part.Nodes = append(part.Nodes, node)
	}
	return part, nil
}

func (p *Parser) parseNodePattern() (*NodePattern, error) {
	if _, err := p.expect(TokenLParen, "'('"); err != nil {
		return nil, err
	}
	n := &NodePattern{}
	if p.cur().Kind == TokenIdent {
		n.Variable = p.advance().Text
	}
	if p.cur().Kind == TokenColon {
		labels, err := p.parseLabels()
		if err != nil {
			return nil, err
		}
		n.Labels = labels
	}
	if p.cur().Kind == TokenLBrace {
		props, err := p.parsePropertyMap()
		if err != nil {
			return nil, err
		}
		n.Props = props
	}
	if _, err := p.expect(TokenRParen, "')'"); err != nil {
		return nil, err
	}
	return n, nil
}

// parseRelPattern parses the relationship between two nodes:
// -->, <--, --, -[r:T*1..3 {k: v}]->, <-[r]-, -[r]-.
func (p *Parser) parseRelPattern() (*RelPattern, error) {
	r := &RelPattern{Direction: DirectionBoth}

	if p.cur().Kind == TokenLt {
		p.advance()
		r.Direction = DirectionIn
	}
	if _, err := p.expect(TokenMinus, "'-'"); err != nil {
		return nil, err
	}

	if p.cur().Kind == TokenLBracket {
		p.advance()
		if err := p.parseRelDetail(r); err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRBracket, "']'"); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(TokenMinus, "'-'"); err != nil {
		return nil, err
	}
	if p.cur().Kind == TokenGt {
		if r.Direction == DirectionIn {
			return nil, p.errExpected("a single direction arrow")
		}
		p.advance()
		r.Direction = DirectionOut
	}
	return r, nil
}

func (p *Parser) parseRelDetail(r *RelPattern) error {
	if p.cur().Kind == TokenIdent {
		r.Variable = p.advance().Text
	}
	if p.cur().Kind == TokenColon {
		p.advance()
		typ, err := p.expectIdent("a relationship type")
		if err != nil {
			return err
		}
		r.Types = append(r.Types, typ)
		for p.cur().Kind == TokenPipe {
			p.advance()
			if p.cur().Kind == TokenColon {
				p.advance()
			}
			typ, err := p.expectIdent("a relationship type")
			if err != nil {
				return err
			}
			r.Types = append(r.Types, typ)
		}
	}
	if p.cur().Kind == TokenStar {
		p.advance()
		r.VarLength = true
		if p.cur().Kind == TokenInt {
			n, err := p.parseHopCount()
			if err != nil {
				return err
			}
			r.MinHops = &n
			if p.cur().Kind == TokenRange {
				p.advance()
				if p.cur().Kind == TokenInt {
					m, err := p.parseHopCount()
					if err != nil {
						return err
					}
					r.MaxHops = &m
				}
			} else {
				// a bare *n means exactly n hops
				r.MaxHops = &n
			}
		} else if p.cur().Kind == TokenRange {
			p.advance()
			if p.cur().Kind == TokenInt {
				m, err := p.parseHopCount()
				if err != nil {
					return err
				}
				r.MaxHops = &m
			}
		}
	}
	if p.cur().Kind == TokenLBrace {
		props, err := p.parsePropertyMap()
		if err != nil {
			return err
		}
		r.Props = props
	}
	return nil
}

func (p *Parser) parseHopCount() (int, error) {
	t := p.advance()
	n, err := strconv.Atoi(t.Text)
	if err != nil || n < 0 {
		return 0, &SyntaxError{Line: t.Line, Col: t.Col, Expected: "a hop count", Found: t.describe()}
	}
	return n, nil
}

// parsePropertyMap parses {key: expr, ...}. Keys may be identifiers or
// quoted strings.
func (p *Parser) parsePropertyMap() (map[string]Expr, error) {
	if _, err := p.expect(TokenLBrace, "'{'"); err != nil {
		return nil, err
	}
	props := make(map[string]Expr)
	for p.cur().Kind != TokenRBrace {
		var key string
		switch p.cur().Kind {
		case TokenIdent, TokenString:
			key = p.advance().Text
		default:
			return nil, p.errExpected("a property key")
		}
		if _, err := p.expect(TokenColon, "':'"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		props[key] = value
		if p.cur().Kind != TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokenRBrace, "'}'"); err != nil {
		return nil, err
	}
	return props, nil
}

// patternAhead reports whether the '(' at index i opens a graph
// pattern rather than a parenthesized expression, by checking what
// follows its matching close paren.
func (p *Parser) patternAhead(i int) bool {
	if p.at(i).Kind != TokenLParen {
		return false
	}
	depth := 0
	for ; i < len(p.toks); i++ {
		switch p.at(i).Kind {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
			if depth == 0 {
				next := p.at(i + 1).Kind
				return next == TokenMinus || next == TokenLt
			}
		case TokenEOF:
			return false
		}
	}
	return false
}
