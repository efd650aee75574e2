package sqlparse

import "fmt"

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIllegal

	tokenIdent
	tokenNumber
	tokenString

	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenPercent
	tokenConcat // ||
	tokenEq
	tokenNe
	tokenLt
	tokenGt
	tokenLe
	tokenGe
	tokenDot
	tokenComma
	tokenSemicolon
	tokenLParen
	tokenRParen

	tokenAll
	tokenAnd
	tokenAs
	tokenAsc
	tokenBetween
	tokenBy
	tokenCase
	tokenCast
	tokenCross
	tokenDesc
	tokenDistinct
	tokenElse
	tokenEnd
	tokenExcept
	tokenExists
	tokenFalse
	tokenFrom
	tokenFull
	tokenGroup
	tokenHaving
	tokenIlike
	tokenIn
	tokenInner
	tokenIntersect
	tokenIs
	tokenJoin
	tokenLeft
	tokenLike
	tokenLimit
	tokenNot
	tokenNull
	tokenOffset
	tokenOn
	tokenOr
	tokenOrder
	tokenOuter
	tokenRecursive
	tokenRight
	tokenSelect
	tokenThen
	tokenTrue
	tokenUnion
	tokenWhen
	tokenWhere
	tokenWith
)

type token struct {
	typ     tokenType
	literal string
	pos     Position
}

// Position is a location in the SQL source, 1-based.
type Position struct {
	Line   int
	Column int
}

func (t tokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

var tokenNames = map[tokenType]string{
	tokenEOF:     "EOF",
	tokenIllegal: "ILLEGAL",

	tokenIdent:  "IDENT",
	tokenNumber: "NUMBER",
	tokenString: "STRING",

	tokenPlus:      "+",
	tokenMinus:     "-",
	tokenStar:      "*",
	tokenSlash:     "/",
	tokenPercent:   "%",
	tokenConcat:    "||",
	tokenEq:        "=",
	tokenNe:        "!=",
	tokenLt:        "<",
	tokenGt:        ">",
	tokenLe:        "<=",
	tokenGe:        ">=",
	tokenDot:       ".",
	tokenComma:     ",",
	tokenSemicolon: ";",
	tokenLParen:    "(",
	tokenRParen:    ")",

	tokenAll:       "ALL",
	tokenAnd:       "AND",
	tokenAs:        "AS",
	tokenAsc:       "ASC",
	tokenBetween:   "BETWEEN",
	tokenBy:        "BY",
	tokenCase:      "CASE",
	tokenCast:      "CAST",
	tokenCross:     "CROSS",
	tokenDesc:      "DESC",
	tokenDistinct:  "DISTINCT",
	tokenElse:      "ELSE",
	tokenEnd:       "END",
	tokenExcept:    "EXCEPT",
	tokenExists:    "EXISTS",
	tokenFalse:     "FALSE",
	tokenFrom:      "FROM",
	tokenFull:      "FULL",
	tokenGroup:     "GROUP",
	tokenHaving:    "HAVING",
	tokenIlike:     "ILIKE",
	tokenIn:        "IN",
	tokenInner:     "INNER",
	tokenIntersect: "INTERSECT",
	tokenIs:        "IS",
	tokenJoin:      "JOIN",
	tokenLeft:      "LEFT",
	tokenLike:      "LIKE",
	tokenLimit:     "LIMIT",
	tokenNot:       "NOT",
	tokenNull:      "NULL",
	tokenOffset:    "OFFSET",
	tokenOn:        "ON",
	tokenOr:        "OR",
	tokenOrder:     "ORDER",
	tokenOuter:     "OUTER",
	tokenRecursive: "RECURSIVE",
	tokenRight:     "RIGHT",
	tokenSelect:    "SELECT",
	tokenThen:      "THEN",
	tokenTrue:      "TRUE",
	tokenUnion:     "UNION",
	tokenWhen:      "WHEN",
	tokenWhere:     "WHERE",
	tokenWith:      "WITH",
}

var keywords = map[string]tokenType{
	"all":       tokenAll,
	"and":       tokenAnd,
	"as":        tokenAs,
	"asc":       tokenAsc,
	"between":   tokenBetween,
	"by":        tokenBy,
	"case":      tokenCase,
	"cast":      tokenCast,
	"cross":     tokenCross,
	"desc":      tokenDesc,
	"distinct":  tokenDistinct,
	"else":      tokenElse,
	"end":       tokenEnd,
	"except":    tokenExcept,
	"exists":    tokenExists,
	"false":     tokenFalse,
	"from":      tokenFrom,
	"full":      tokenFull,
	"group":     tokenGroup,
	"having":    tokenHaving,
	"ilike":     tokenIlike,
	"in":        tokenIn,
	"inner":     tokenInner,
	"intersect": tokenIntersect,
	"is":        tokenIs,
	"join":      tokenJoin,
	"left":      tokenLeft,
	"like":      tokenLike,
	"limit":     tokenLimit,
	"not":       tokenNot,
	"null":      tokenNull,
	"offset":    tokenOffset,
	"on":        tokenOn,
	"or":        tokenOr,
	"order":     tokenOrder,
	"outer":     tokenOuter,
	"recursive": tokenRecursive,
	"right":     tokenRight,
	"select":    tokenSelect,
	"then":      tokenThen,
	"true":      tokenTrue,
	"union":     tokenUnion,
	"when":      tokenWhen,
	"where":     tokenWhere,
	"with":      tokenWith,
}

// lookupIdent classifies an identifier as a keyword or plain identifier.
func lookupIdent(ident string) tokenType {
	if typ, ok := keywords[ident]; ok {
		return typ
	}
	return tokenIdent
}
