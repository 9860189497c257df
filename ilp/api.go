package ilp

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Sense is the relation between the left and right hand side of a constraint.
type Sense int

const (
	LessOrEqual Sense = iota
	GreaterOrEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessOrEqual:
		return "<="
	case GreaterOrEqual:
		return ">="
	case Equal:
		return "="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

// Problem is a mixed integer linear program in minimization form.
// All variables are nonnegative.
type Problem struct {
	name        string
	variables   []*Variable
	constraints []*Constraint
}

type Variable struct {
	name    string
	index   int
	problem *Problem

	// coefficient of the variable in the objective function
	coefficient float64

	// integrality constraint
	integer bool

	lower float64
	upper float64

	// fractional variables with a higher priority are branched on first
	priority int
}

// Term is a variable multiplied by a coefficient, e.g. "-1 * x1".
type Term struct {
	Coef float64
	Var  *Variable
}

// Expression is a sum of terms.
type Expression []Term

// Sum returns the expression adding up all provided variables with coefficient 1.
func Sum(vars ...*Variable) Expression {
	expr := make(Expression, 0, len(vars))
	for _, v := range vars {
		expr = append(expr, Term{Coef: 1, Var: v})
	}
	return expr
}

// Add appends coef * v to the expression.
func (e Expression) Add(coef float64, v *Variable) Expression {
	return append(e, Term{Coef: coef, Var: v})
}

// Scale returns a copy of the expression with every coefficient multiplied by f.
func (e Expression) Scale(f float64) Expression {
	out := make(Expression, len(e))
	for i, t := range e {
		out[i] = Term{Coef: t.Coef * f, Var: t.Var}
	}
	return out
}

type Constraint struct {
	name  string
	expr  Expression
	sense Sense
	rhs   float64
}

func (c *Constraint) Name() string           { return c.name }
func (c *Constraint) Expression() Expression { return c.expr }
func (c *Constraint) Sense() Sense           { return c.sense }
func (c *Constraint) RHS() float64           { return c.rhs }

func NewProblem(name string) *Problem {
	return &Problem{name: name}
}

func (p *Problem) Name() string { return p.name }

func (p *Problem) Variables() []*Variable { return p.variables }

func (p *Problem) Constraints() []*Constraint { return p.constraints }

// AddVariable adds a continuous variable in [0, +Inf) with a zero objective coefficient.
func (p *Problem) AddVariable(name string) *Variable {
	v := &Variable{
		name:    name,
		index:   len(p.variables),
		problem: p,
		upper:   math.Inf(1),
	}
	p.variables = append(p.variables, v)
	return v
}

// AddIntegerVariable adds a variable in [0, +Inf) subject to an integrality constraint.
func (p *Problem) AddIntegerVariable(name string) *Variable {
	return p.AddVariable(name).SetInteger(true)
}

// AddBinaryVariable adds an integer variable in [0, 1].
func (p *Problem) AddBinaryVariable(name string) *Variable {
	return p.AddIntegerVariable(name).SetUpperBound(1)
}

// AddConstraint adds the constraint "expr sense rhs".
// An expression without terms is allowed: it is checked as a constant during presolve.
func (p *Problem) AddConstraint(name string, expr Expression, sense Sense, rhs float64) (*Constraint, error) {
	for _, t := range expr {
		if !p.checkExpression(t) {
			return nil, errors.Wrapf(ErrForeignVariable, "constraint %q", name)
		}
	}
	if sense != LessOrEqual && sense != GreaterOrEqual && sense != Equal {
		return nil, errors.Errorf("constraint %q: unknown sense %d", name, int(sense))
	}

	c := &Constraint{
		name:  name,
		expr:  expr,
		sense: sense,
		rhs:   rhs,
	}
	p.constraints = append(p.constraints, c)
	return c, nil
}

// Minimize replaces the objective function with expr.
func (p *Problem) Minimize(expr Expression) error {
	for _, t := range expr {
		if !p.checkExpression(t) {
			return errors.Wrap(ErrForeignVariable, "objective")
		}
	}
	for _, v := range p.variables {
		v.coefficient = 0
	}
	for _, t := range expr {
		t.Var.coefficient += t.Coef
	}
	return nil
}

// Check whether the term refers to a variable that was declared to this problem.
func (p *Problem) checkExpression(t Term) bool {
	return t.Var != nil && t.Var.problem == p
}

// violation returns an error describing the first bound, integrality
// requirement or constraint that values does not satisfy.
func (p *Problem) violation(values []float64) error {
	for i, v := range p.variables {
		x := values[i]
		if math.IsNaN(x) || x < v.lower-tolerance || x > v.upper+tolerance {
			return errors.Errorf("variable %s = %v is outside [%v, %v]", v.name, x, v.lower, v.upper)
		}
		if v.integer && !isAllInteger(x) {
			return errors.Errorf("integer variable %s = %v", v.name, x)
		}
	}
	for _, c := range p.constraints {
		var lhs float64
		for _, t := range c.expr {
			lhs += t.Coef * values[t.Var.index]
		}
		if !constantHolds(c.sense, c.rhs-lhs) {
			return errors.Errorf("constraint %s: %v %s %v does not hold", c.name, lhs, c.sense, c.rhs)
		}
	}
	return nil
}

// WriteTo writes a human readable listing of the objective, all constraints and all variable bounds.
func (p *Problem) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	integers := 0
	for _, v := range p.variables {
		if v.integer {
			integers++
		}
	}
	fmt.Fprintf(&sb, "problem %s: %d variables (%d integer), %d constraints\n",
		p.name, len(p.variables), integers, len(p.constraints))

	var objective Expression
	for _, v := range p.variables {
		if v.coefficient != 0 {
			objective = objective.Add(v.coefficient, v)
		}
	}
	fmt.Fprintf(&sb, "minimize %s\n", objective)

	sb.WriteString("subject to\n")
	for _, c := range p.constraints {
		fmt.Fprintf(&sb, "  %s: %s %s %s\n", c.name, c.expr, c.sense, formatFloat(c.rhs))
	}

	sb.WriteString("bounds\n")
	for _, v := range p.variables {
		kind := "continuous"
		if v.integer {
			kind = "integer"
		}
		fmt.Fprintf(&sb, "  %s [%s, %s] %s\n", v.name, formatFloat(v.lower), formatFloat(v.upper), kind)
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func (e Expression) String() string {
	if len(e) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i, t := range e {
		coef := t.Coef
		switch {
		case i == 0 && coef < 0:
			sb.WriteString("-")
			coef = -coef
		case i > 0 && coef < 0:
			sb.WriteString(" - ")
			coef = -coef
		case i > 0:
			sb.WriteString(" + ")
		}
		if coef != 1 {
			sb.WriteString(formatFloat(coef))
			sb.WriteString(" ")
		}
		sb.WriteString(t.Var.name)
	}
	return sb.String()
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (v *Variable) Name() string { return v.name }

func (v *Variable) Coefficient() float64 { return v.coefficient }

func (v *Variable) IsInteger() bool { return v.integer }

func (v *Variable) LowerBound() float64 { return v.lower }

func (v *Variable) UpperBound() float64 { return v.upper }

func (v *Variable) Priority() int { return v.priority }

// SetPriority sets the branching priority. As long as a variable of a higher
// priority is fractional, variables of a lower priority are not branched on.
func (v *Variable) SetPriority(priority int) *Variable {
	v.priority = priority
	return v
}

func (v *Variable) SetCoefficient(coef float64) *Variable {
	v.coefficient = coef
	return v
}

func (v *Variable) SetInteger(integer bool) *Variable {
	v.integer = integer
	return v
}

// SetLowerBound sets the lower bound. Negative lower bounds are rejected when solving.
func (v *Variable) SetLowerBound(lb float64) *Variable {
	v.lower = lb
	return v
}

// SetUpperBound sets the upper bound. Use math.Inf(1) to remove it.
func (v *Variable) SetUpperBound(ub float64) *Variable {
	v.upper = ub
	return v
}
