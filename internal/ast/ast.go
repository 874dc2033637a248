// Package ast defines the closed set of node shapes the filter engine
// understands. Nodes are produced from pg_query parse trees by the adapter in
// pgquery.go and are never mutated afterwards.
package ast

// Shape identifies the kind of a Node
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeSelectStatement
	ShapeSetOperation
	ShapeUpdateStatement
	ShapeDeleteStatement
	ShapeInsertStatement
	ShapeCommonTableExpr
	ShapeRangeSubselect
	ShapeRangeVar
	ShapeJoinExpr
	ShapeBinaryExpr
	ShapeBooleanExpr
	ShapeRowExpr
	ShapeColumnRef
	ShapeNullTest
	ShapeBooleanTest
	ShapeFuncCall
	ShapeSubLink
	ShapeConstant
	ShapeList
	ShapeTypeCast
	ShapeParamRef
)

var shapeNames = map[Shape]string{
	ShapeUnknown:         "Unknown",
	ShapeSelectStatement: "SelectStatement",
	ShapeSetOperation:    "SetOperation",
	ShapeUpdateStatement: "UpdateStatement",
	ShapeDeleteStatement: "DeleteStatement",
	ShapeInsertStatement: "InsertStatement",
	ShapeCommonTableExpr: "CommonTableExpr",
	ShapeRangeSubselect:  "RangeSubselect",
	ShapeRangeVar:        "RangeVar",
	ShapeJoinExpr:        "JoinExpr",
	ShapeBinaryExpr:      "BinaryExpr",
	ShapeBooleanExpr:     "BooleanExpr",
	ShapeRowExpr:         "RowExpr",
	ShapeColumnRef:       "ColumnRef",
	ShapeNullTest:        "NullTest",
	ShapeBooleanTest:     "BooleanTest",
	ShapeFuncCall:        "FuncCall",
	ShapeSubLink:         "SubLink",
	ShapeConstant:        "Constant",
	ShapeList:            "List",
	ShapeTypeCast:        "TypeCast",
	ShapeParamRef:        "ParamRef",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Node is implemented by every shape in this package and nothing else
type Node interface {
	Shape() Shape
	node()
}

// SetOp is the set-operation kind of a SELECT
type SetOp int

const (
	SetOpNone SetOp = iota
	SetOpUnion
	SetOpIntersect
	SetOpExcept
)

// SelectStatement is a SELECT. A plain select has Op == SetOpNone and uses
// From/Where/With; a combining select only uses Larg and Rarg.
type SelectStatement struct {
	Op    SetOp
	All   bool
	From  []Node
	Where Node
	With  []*CommonTableExpr
	Larg  *SelectStatement
	Rarg  *SelectStatement
}

// Shape reports SetOperation for UNION/INTERSECT/EXCEPT selects
func (s *SelectStatement) Shape() Shape {
	if s.Op != SetOpNone {
		return ShapeSetOperation
	}
	return ShapeSelectStatement
}

// UpdateStatement is an UPDATE
type UpdateStatement struct {
	Relation *RangeVar
	From     []Node
	Where    Node
	With     []*CommonTableExpr
}

func (*UpdateStatement) Shape() Shape { return ShapeUpdateStatement }

// DeleteStatement is a DELETE
type DeleteStatement struct {
	Relation *RangeVar
	Using    []Node
	Where    Node
	With     []*CommonTableExpr
}

func (*DeleteStatement) Shape() Shape { return ShapeDeleteStatement }

// InsertStatement is an INSERT; only its source query carries filters
type InsertStatement struct {
	Relation *RangeVar
	Select   Node
	With     []*CommonTableExpr
}

func (*InsertStatement) Shape() Shape { return ShapeInsertStatement }

// CommonTableExpr is one entry of a WITH clause
type CommonTableExpr struct {
	Name  string
	Query Node
}

func (*CommonTableExpr) Shape() Shape { return ShapeCommonTableExpr }

// RangeSubselect is a sub-select in a FROM list
type RangeSubselect struct {
	Lateral  bool
	Subquery Node
	Alias    string
}

func (*RangeSubselect) Shape() Shape { return ShapeRangeSubselect }

// RangeVar is a table reference in a FROM list
type RangeVar struct {
	Schema string
	Name   string
	Alias  string
}

func (*RangeVar) Shape() Shape { return ShapeRangeVar }

// QualifiedName returns schema.name, or name when no schema is given
func (r *RangeVar) QualifiedName() string {
	if r.Schema != "" {
		return r.Schema + "." + r.Name
	}
	return r.Name
}

// JoinExpr is a JOIN; Larg and Rarg may themselves be joins
type JoinExpr struct {
	Larg  Node
	Rarg  Node
	Quals Node
}

func (*JoinExpr) Shape() Shape { return ShapeJoinExpr }

// BinaryKind classifies a BinaryExpr
type BinaryKind int

const (
	BinaryOp BinaryKind = iota
	BinaryOpAny
	BinaryOpAll
	BinaryDistinct
	BinaryNotDistinct
	BinaryNullIf
	BinaryIn
	BinaryLike
	BinaryILike
	BinarySimilar
	BinaryBetween
	BinaryNotBetween
	BinaryBetweenSym
	BinaryNotBetweenSym
)

// BinaryExpr is an operator expression with a left and right operand.
// Name is the operator spelling as it appears in the parse tree.
type BinaryExpr struct {
	Kind  BinaryKind
	Name  string
	Left  Node
	Right Node
}

func (*BinaryExpr) Shape() Shape { return ShapeBinaryExpr }

// BoolOp is the connective of a BooleanExpr
type BoolOp int

const (
	BoolAnd BoolOp = iota
	BoolOr
	BoolNot
)

// BooleanExpr is AND/OR/NOT over its arguments
type BooleanExpr struct {
	Op   BoolOp
	Args []Node
}

func (*BooleanExpr) Shape() Shape { return ShapeBooleanExpr }

// RowExpr is a ROW(...) constructor
type RowExpr struct {
	Args []Node
}

func (*RowExpr) Shape() Shape { return ShapeRowExpr }

// Star is the field value used for `*` in a ColumnRef
const Star = "*"

// ColumnRef is a possibly qualified column reference
type ColumnRef struct {
	Fields []string
}

func (*ColumnRef) Shape() Shape { return ShapeColumnRef }

// NullTestType is the polarity of a NullTest
type NullTestType int

const (
	IsNull NullTestType = iota
	IsNotNull
)

// NullTest is `arg IS [NOT] NULL`
type NullTest struct {
	Arg  Node
	Type NullTestType
}

func (*NullTest) Shape() Shape { return ShapeNullTest }

// BoolTestType is the polarity of a BooleanTest
type BoolTestType int

const (
	IsTrue BoolTestType = iota
	IsNotTrue
	IsFalse
	IsNotFalse
	IsUnknown
	IsNotUnknown
)

// BooleanTest is `arg IS [NOT] TRUE|FALSE|UNKNOWN`
type BooleanTest struct {
	Arg  Node
	Type BoolTestType
}

func (*BooleanTest) Shape() Shape { return ShapeBooleanTest }

// FuncCall is a function invocation
type FuncCall struct {
	Name []string
	Args []Node
}

func (*FuncCall) Shape() Shape { return ShapeFuncCall }

// SubLinkType is the kind of a SubLink
type SubLinkType int

const (
	ExistsSubLink SubLinkType = iota
	AllSubLink
	AnySubLink
	RowCompareSubLink
	ExprSubLink
	MultiExprSubLink
	ArraySubLink
	CTESubLink
)

// SubLink is a sub-select used inside an expression
type SubLink struct {
	Type      SubLinkType
	TestExpr  Node
	Subselect Node
}

func (*SubLink) Shape() Shape { return ShapeSubLink }

// LiteralKind is the declared kind of a Constant
type LiteralKind int

const (
	LiteralNull LiteralKind = iota
	LiteralString
	LiteralInteger
	LiteralFloat
	LiteralBoolean
	LiteralBitString
)

// Constant is a literal. Text holds the source text for string, float and
// bit-string literals; Int holds integer literals; Bool holds booleans.
type Constant struct {
	Kind LiteralKind
	Text string
	Int  int64
	Bool bool
}

func (*Constant) Shape() Shape { return ShapeConstant }

// List is a bare list of nodes, as used for IN-lists and BETWEEN bounds
type List struct {
	Items []Node
}

func (*List) Shape() Shape { return ShapeList }

// TypeCast is `arg::type`
type TypeCast struct {
	Arg      Node
	TypeName []string
}

func (*TypeCast) Shape() Shape { return ShapeTypeCast }

// ParamRef is a positional parameter ($1)
type ParamRef struct {
	Number int
}

func (*ParamRef) Shape() Shape { return ShapeParamRef }

// Unknown stands in for any parse-tree node this package does not model
type Unknown struct {
	Tag string
}

func (*Unknown) Shape() Shape { return ShapeUnknown }

func (*SelectStatement) node() {}
func (*UpdateStatement) node() {}
func (*DeleteStatement) node() {}
func (*InsertStatement) node() {}
func (*CommonTableExpr) node() {}
func (*RangeSubselect) node()  {}
func (*RangeVar) node()        {}
func (*JoinExpr) node()        {}
func (*BinaryExpr) node()      {}
func (*BooleanExpr) node()     {}
func (*RowExpr) node()         {}
func (*ColumnRef) node()       {}
func (*NullTest) node()        {}
func (*BooleanTest) node()     {}
func (*FuncCall) node()        {}
func (*SubLink) node()         {}
func (*Constant) node()        {}
func (*List) node()            {}
func (*TypeCast) node()        {}
func (*ParamRef) node()        {}
func (*Unknown) node()         {}
