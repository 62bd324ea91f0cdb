// Package kernel extracts symbolic access models from loop kernels written
// in a restricted C-like language: declarations followed by one perfectly
// nested loop whose body assigns between array references with affine
// subscripts.
package kernel

import (
	"fmt"
	"strings"
)

// ElemType is the element datatype of a kernel variable.
type ElemType string

// The supported float kinds.
const (
	Float32 ElemType = "float"
	Float64 ElemType = "double"
)

// Size returns the width of the type in bytes.
func (t ElemType) Size() int {
	switch t {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic(fmt.Sprintf("size of unsupported type %q", string(t)))
	}
}

func (t ElemType) supported() bool {
	return t == Float32 || t == Float64
}

// A Variable is a declared kernel variable. Shape lists dimension sizes
// outermost first; an empty shape marks a scalar. Variables are immutable
// once declared.
type Variable struct {
	Name  string
	Type  ElemType
	Shape []int
}

// IsScalar returns true if the variable has no array dimensions.
func (v Variable) IsScalar() bool {
	return len(v.Shape) == 0
}

// A LoopDim is one level of the loop nest.
type LoopDim struct {
	Index string
	Start int
	Bound int
	Step  int
}

// OffsetKind tags the three accepted subscript forms.
type OffsetKind int

const (
	// Relative marks a subscript of the form loopIndex or loopIndex±delta.
	Relative OffsetKind = iota
	// Absolute marks a bare integer constant subscript.
	Absolute
	// Direct marks a bare variable reference without any subscript.
	Direct
)

// An AccessOffset is the extracted form of one subscript dimension.
type AccessOffset struct {
	Kind  OffsetKind
	Index string // loop index name, Relative only
	Delta int    // signed delta (Relative) or constant index (Absolute)
}

func (o AccessOffset) String() string {
	switch o.Kind {
	case Relative:
		if o.Delta == 0 {
			return o.Index
		}
		return fmt.Sprintf("%s%+d", o.Index, o.Delta)
	case Absolute:
		return fmt.Sprintf("%d", o.Delta)
	default:
		return "direct"
	}
}

// An Access is the full offset sequence of one array reference, outermost
// dimension first. Bare variable references carry a single Direct entry.
type Access []AccessOffset

// UsesIndex returns true if any dimension of the access is relative to the
// named loop index.
func (a Access) UsesIndex(name string) bool {
	for _, o := range a {
		if o.Kind == Relative && o.Index == name {
			return true
		}
	}

	return false
}

func (a Access) String() string {
	parts := make([]string, len(a))
	for i, o := range a {
		parts[i] = o.String()
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

// A Kernel holds raw kernel code together with constant bindings and
// programmatic declarations, ready to be processed into a Model.
type Kernel struct {
	code      string
	constants map[string]int
	variables map[string]Variable
}

// New creates a Kernel from source code.
func New(code string) *Kernel {
	return &Kernel{
		code:      code,
		constants: make(map[string]int),
		variables: make(map[string]Variable),
	}
}

// BindConstant records a named integer constant used to resolve symbolic
// dimension sizes and loop bounds. Later bindings override earlier ones.
func (k *Kernel) BindConstant(name string, value int) {
	k.constants[name] = value
}

// Declare registers a variable ahead of processing, as an alternative to
// declaring it in the kernel code.
func (k *Kernel) Declare(name string, typ ElemType, shape []int) error {
	if !typ.supported() {
		return &UnsupportedTypeError{Type: string(typ)}
	}

	for _, dim := range shape {
		if dim <= 0 {
			return &MalformedShapeError{
				Var:    name,
				Detail: fmt.Sprintf("dimension size %d is not positive", dim),
			}
		}
	}

	k.variables[name] = Variable{Name: name, Type: typ, Shape: shape}

	return nil
}

// Process validates the kernel against the restricted grammar and extracts
// the symbolic access model. The Kernel itself is not modified, and the
// returned Model is immutable afterwards; processing the same code and
// constants always yields the same model.
func (k *Kernel) Process() (*Model, error) {
	stmts, err := parse(k.code)
	if err != nil {
		return nil, err
	}

	m := &Model{
		Variables:    make(map[string]Variable),
		Constants:    make(map[string]int),
		Sources:      make(map[string][]Access),
		Destinations: make(map[string][]Access),
	}
	for name, v := range k.variables {
		m.Variables[name] = v
	}
	for name, v := range k.constants {
		m.Constants[name] = v
	}

	x := &extractor{model: m}
	if err := x.run(stmts); err != nil {
		return nil, err
	}

	return m, nil
}

// A Model is the symbolic access model of one kernel: who is declared, how
// the loops run, and which offsets each variable is read and written with.
// All fields are populated by Kernel.Process and must not be mutated.
type Model struct {
	Variables    map[string]Variable
	LoopStack    []LoopDim // outermost first
	Constants    map[string]int
	Sources      map[string][]Access
	Destinations map[string][]Access
}

// LoopOrder returns the loop index names concatenated outermost first.
func (m *Model) LoopOrder() string {
	order := ""
	for _, dim := range m.LoopStack {
		order += dim.Index
	}

	return order
}

// InnermostIndex returns the index name of the innermost loop.
func (m *Model) InnermostIndex() string {
	return m.LoopStack[len(m.LoopStack)-1].Index
}

// Stride returns the element distance between neighbors along one array
// dimension: the product of all dimension sizes inside it.
func (m *Model) Stride(varName string, dim int) int {
	v := m.Variables[varName]

	stride := 1
	for _, size := range v.Shape[dim+1:] {
		stride *= size
	}

	return stride
}

// extractor walks the parsed statements and populates the model, rejecting
// anything the restricted grammar does not allow.
type extractor struct {
	model *Model
}

func (x *extractor) run(stmts []stmt) error {
	if len(stmts) == 0 {
		return &UnsupportedConstructError{
			Construct: "empty kernel, expected declarations followed by a loop",
			Line:      1, Col: 1,
		}
	}

	for _, s := range stmts[:len(stmts)-1] {
		decl, ok := s.(*declStmt)
		if !ok {
			p := s.stmtPos()
			return &UnsupportedConstructError{
				Construct: "only declarations may appear before the loop",
				Line:      p.line, Col: p.col,
			}
		}

		if err := x.processDecl(decl); err != nil {
			return err
		}
	}

	loop, ok := stmts[len(stmts)-1].(*forStmt)
	if !ok {
		p := stmts[len(stmts)-1].stmtPos()
		return &UnsupportedConstructError{
			Construct: "last statement of the kernel must be a for loop",
			Line:      p.line, Col: p.col,
		}
	}

	return x.processFor(loop)
}

func (x *extractor) processDecl(decl *declStmt) error {
	typ := ElemType(decl.typeName)
	if !typ.supported() {
		return &UnsupportedTypeError{Type: decl.typeName}
	}

	for _, item := range decl.items {
		var shape []int
		for _, dimExpr := range item.dims {
			size, err := x.evalDim(item.name, dimExpr)
			if err != nil {
				return err
			}
			shape = append(shape, size)
		}

		for _, dim := range shape {
			if dim <= 0 {
				return &MalformedShapeError{
					Var:    item.name,
					Detail: fmt.Sprintf("dimension size %d is not positive", dim),
				}
			}
		}

		x.model.Variables[item.name] = Variable{
			Name:  item.name,
			Type:  typ,
			Shape: shape,
		}
	}

	return nil
}

// evalDim resolves an array dimension expression: a product of integer
// literals and bound constants.
func (x *extractor) evalDim(varName string, e expr) (int, error) {
	switch e := e.(type) {
	case *intExpr:
		return e.value, nil
	case *identExpr:
		value, ok := x.model.Constants[e.name]
		if !ok {
			return 0, &MissingConstantError{Name: e.name}
		}
		return value, nil
	case *binaryExpr:
		if e.op != "*" {
			break
		}
		left, err := x.evalDim(varName, e.left)
		if err != nil {
			return 0, err
		}
		right, err := x.evalDim(varName, e.right)
		if err != nil {
			return 0, err
		}
		return left * right, nil
	}

	return 0, &MalformedShapeError{
		Var: varName,
		Detail: fmt.Sprintf(
			"%s is not a product of integer and bound constants",
			e.exprString()),
	}
}

func (x *extractor) processFor(loop *forStmt) error {
	dim, err := x.loopDim(loop)
	if err != nil {
		return err
	}
	x.model.LoopStack = append(x.model.LoopStack, dim)

	// A perfectly nested loop body is either a single inner loop or a run
	// of assignment statements; nothing else may appear.
	if len(loop.body) == 1 {
		if inner, ok := loop.body[0].(*forStmt); ok {
			return x.processFor(inner)
		}
	}

	for _, s := range loop.body {
		assign, ok := s.(*assignStmt)
		if !ok {
			p := s.stmtPos()
			return &UnsupportedConstructError{
				Construct: "loop body must be a single nested loop " +
					"or a block of assignment statements",
				Line: p.line, Col: p.col,
			}
		}

		if err := x.processAssignment(assign); err != nil {
			return err
		}
	}

	return nil
}

func (x *extractor) loopDim(loop *forStmt) (LoopDim, error) {
	initLHS, ok := loop.init.lhs.(*identExpr)
	if !ok {
		return LoopDim{}, &UnsupportedConstructError{
			Construct: "loop initializer must assign to the loop counter",
			Line:      loop.line, Col: loop.col,
		}
	}

	start, ok := loop.init.rhs.(*intExpr)
	if !ok {
		return LoopDim{}, &UnsupportedConstructError{
			Construct: "loop start value must be an integer constant",
			Line:      loop.line, Col: loop.col,
		}
	}

	if loop.cond.op != "<" {
		return LoopDim{}, &UnsupportedConstructError{
			Construct: fmt.Sprintf(
				"loop condition operator %q, only < is supported", loop.cond.op),
			Line: loop.line, Col: loop.col,
		}
	}

	condLHS, ok := loop.cond.left.(*identExpr)
	if !ok {
		return LoopDim{}, &UnsupportedConstructError{
			Construct: "left side of the loop condition must be the loop counter",
			Line:      loop.line, Col: loop.col,
		}
	}

	bound, err := x.evalBound(loop.cond.right, loop)
	if err != nil {
		return LoopDim{}, err
	}

	step, err := x.loopStep(loop)
	if err != nil {
		return LoopDim{}, err
	}

	if initLHS.name != condLHS.name || condLHS.name != loop.post.index {
		return LoopDim{}, &UnsupportedConstructError{
			Construct: "initializer, condition, and step of a loop " +
				"must act on the same counter variable",
			Line: loop.line, Col: loop.col,
		}
	}

	return LoopDim{
		Index: initLHS.name,
		Start: start.value,
		Bound: bound,
		Step:  step,
	}, nil
}

// evalBound resolves the right side of a loop condition: an integer
// constant, a bound constant, or boundConstant ± integerConstant.
func (x *extractor) evalBound(e expr, loop *forStmt) (int, error) {
	switch e := e.(type) {
	case *intExpr:
		return e.value, nil
	case *identExpr:
		value, ok := x.model.Constants[e.name]
		if !ok {
			return 0, &MissingConstantError{Name: e.name}
		}
		return value, nil
	case *binaryExpr:
		name, ok := e.left.(*identExpr)
		if !ok {
			break
		}
		offset, okRight := e.right.(*intExpr)
		if !okRight || (e.op != "+" && e.op != "-") {
			break
		}

		value, bound := x.model.Constants[name.name]
		if !bound {
			return 0, &MissingConstantError{Name: name.name}
		}

		if e.op == "-" {
			return value - offset.value, nil
		}
		return value + offset.value, nil
	}

	return 0, &UnsupportedConstructError{
		Construct: fmt.Sprintf(
			"loop bound %s, must be a constant, a bound constant, "+
				"or boundConstant ± integer constant",
			e.exprString()),
		Line: loop.line, Col: loop.col,
	}
}

func (x *extractor) loopStep(loop *forStmt) (int, error) {
	post := loop.post

	switch post.op {
	case "++":
		return 1, nil
	case "+=":
		step, ok := post.step.(*intExpr)
		if !ok {
			return 0, &UnsupportedConstructError{
				Construct: "loop step increment must be an integer constant",
				Line:      post.line, Col: post.col,
			}
		}
		return step.value, nil
	default:
		return 0, &UnsupportedConstructError{
			Construct: fmt.Sprintf(
				"loop step operator %q, only ++ and += are supported", post.op),
			Line: post.line, Col: post.col,
		}
	}
}

func (x *extractor) processAssignment(assign *assignStmt) error {
	if assign.op != "=" {
		return &UnsupportedConstructError{
			Construct: fmt.Sprintf(
				"compound assignment %q in loop body", assign.op),
			Line: assign.line, Col: assign.col,
		}
	}

	switch lhs := assign.lhs.(type) {
	case *identExpr:
		x.record(x.model.Destinations, lhs.name, Access{{Kind: Direct}})
	case *indexExpr:
		name, access, err := x.extractAccess(lhs)
		if err != nil {
			return err
		}
		x.record(x.model.Destinations, name, access)
	default:
		return &UnsupportedConstructError{
			Construct: "assignment target must be a variable or array reference",
			Line:      assign.line, Col: assign.col,
		}
	}

	return x.processSources(assign.rhs)
}

// processSources records every leaf variable and array reference on the
// right side of an assignment.
func (x *extractor) processSources(e expr) error {
	switch e := e.(type) {
	case *identExpr:
		x.record(x.model.Sources, e.name, Access{{Kind: Direct}})
		return nil
	case *indexExpr:
		name, access, err := x.extractAccess(e)
		if err != nil {
			return err
		}
		x.record(x.model.Sources, name, access)
		return nil
	case *intExpr, *floatExpr:
		return nil
	case *binaryExpr:
		if err := x.processSources(e.left); err != nil {
			return err
		}
		return x.processSources(e.right)
	default:
		p := e.pos()
		return &UnsupportedConstructError{
			Construct: fmt.Sprintf(
				"expression %s, only references, constants, "+
					"and binary operations are supported", e.exprString()),
			Line: p.line, Col: p.col,
		}
	}
}

func (x *extractor) record(table map[string][]Access, name string, a Access) {
	table[name] = append(table[name], a)
}

// extractAccess unwinds a nested array reference into its base name and the
// offset sequence, outermost dimension first.
func (x *extractor) extractAccess(e *indexExpr) (string, Access, error) {
	var reversed Access

	current := e
	for {
		offset, err := x.subscriptOffset(current.subscript)
		if err != nil {
			return "", nil, err
		}
		reversed = append(reversed, offset)

		switch base := current.base.(type) {
		case *indexExpr:
			current = base
		case *identExpr:
			access := make(Access, len(reversed))
			for i, o := range reversed {
				access[len(reversed)-1-i] = o
			}

			v, declared := x.model.Variables[base.name]
			if declared && len(access) > len(v.Shape) {
				return "", nil, &MalformedShapeError{
					Var: base.name,
					Detail: fmt.Sprintf(
						"accessed with %d subscripts but declared "+
							"with %d dimensions",
						len(access), len(v.Shape)),
				}
			}

			return base.name, access, nil
		default:
			p := current.pos()
			return "", nil, &UnsupportedConstructError{
				Construct: "array references must be applied to variables",
				Line:      p.line, Col: p.col,
			}
		}
	}
}

// subscriptOffset matches one subscript dimension against the accepted
// affine forms.
func (x *extractor) subscriptOffset(sub expr) (AccessOffset, error) {
	switch sub := sub.(type) {
	case *identExpr:
		if !x.isLoopIndex(sub.name) {
			return AccessOffset{}, &UndeclaredIndexError{
				Index: sub.name,
				Line:  sub.line, Col: sub.col,
			}
		}
		return AccessOffset{Kind: Relative, Index: sub.name}, nil

	case *intExpr:
		return AccessOffset{Kind: Absolute, Delta: sub.value}, nil

	case *binaryExpr:
		if sub.op != "+" && sub.op != "-" {
			break
		}
		name, okLeft := sub.left.(*identExpr)
		delta, okRight := sub.right.(*intExpr)
		if !okLeft || !okRight {
			break
		}
		if !x.isLoopIndex(name.name) {
			return AccessOffset{}, &UndeclaredIndexError{
				Index: name.name,
				Line:  name.line, Col: name.col,
			}
		}

		d := delta.value
		if sub.op == "-" {
			d = -d
		}
		return AccessOffset{Kind: Relative, Index: name.name, Delta: d}, nil
	}

	p := sub.pos()

	return AccessOffset{}, &UnsupportedSubscriptError{
		Subscript: sub.exprString(),
		Line:      p.line, Col: p.col,
	}
}

func (x *extractor) isLoopIndex(name string) bool {
	for _, dim := range x.model.LoopStack {
		if dim.Index == name {
			return true
		}
	}

	return false
}
