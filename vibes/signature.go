package vibes

import (
	"fmt"
	"strconv"
	"strings"
)

type DefinitionKind int

const (
	DefFunction DefinitionKind = iota
	DefClass
	DefAssign
)

// Definition is a top-level binding declared by a script, with the source
// lines it spans. Assignments span a single line.
type Definition struct {
	Name  string
	Kind  DefinitionKind
	Start Position
	End   Position
}

// Definitions lists the script's top-level defs, classes and plain
// assignments in source order.
func (s *Script) Definitions() []Definition {
	var defs []Definition
	for _, stmt := range s.program.Statements {
		switch st := stmt.(type) {
		case *FunctionStmt:
			defs = append(defs, Definition{Name: st.Name, Kind: DefFunction, Start: st.Pos(), End: st.End()})
		case *ClassStmt:
			defs = append(defs, Definition{Name: st.Name, Kind: DefClass, Start: st.Pos(), End: st.End()})
		case *AssignStmt:
			if ident, ok := st.Target.(*Identifier); ok {
				defs = append(defs, Definition{Name: ident.Name, Kind: DefAssign, Start: st.Pos(), End: st.Pos()})
			}
		}
	}
	return defs
}

// DocComment returns the comment block directly above line, without the
// leading markers. Annotation lines starting with "# @" are skipped.
func DocComment(source string, line int) string {
	lines := strings.Split(source, "\n")
	var doc []string
	for i := line - 2; i >= 0 && i < len(lines); i-- {
		text := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(text, "#") {
			break
		}
		if strings.HasPrefix(text, "# @") {
			continue
		}
		doc = append(doc, strings.TrimSpace(strings.TrimPrefix(text, "#")))
	}
	for i, j := 0, len(doc)-1; i < j; i, j = i+1, j-1 {
		doc[i], doc[j] = doc[j], doc[i]
	}
	return strings.Join(doc, "\n")
}

// FunctionSignature renders a def header without its body.
func FunctionSignature(fn *ScriptFunction) string {
	var b strings.Builder
	b.WriteString("def ")
	if fn.Decl != nil && fn.Decl.IsClassMethod {
		b.WriteString("self.")
	}
	b.WriteString(fn.Name)
	if len(fn.Params) > 0 {
		b.WriteString("(")
		for i, param := range fn.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatParam(param))
		}
		b.WriteString(")")
	}
	if fn.ReturnTy != nil {
		b.WriteString(" -> ")
		b.WriteString(formatTypeExpr(fn.ReturnTy))
	}
	return b.String()
}

func formatParam(param Param) string {
	out := param.Name
	if param.Type != nil {
		out += ": " + formatTypeExpr(param.Type)
	}
	if param.DefaultVal != nil {
		out += " = " + formatExpression(param.DefaultVal)
	}
	return out
}

// Describe renders a function signature preceded by its doc comment.
func (fn *ScriptFunction) Describe() string {
	return withDoc(DocComment(fn.Source, fn.Pos.Line), FunctionSignature(fn), "")
}

// Outline renders the structural source of a class: its doc comment,
// header, properties and public method signatures, without bodies.
func (c *ClassDef) Outline() string {
	var b strings.Builder
	header := "class " + c.Name
	if c.Decl != nil {
		header = withDoc(DocComment(c.Source, c.Decl.Pos().Line), header, "")
	}
	b.WriteString(header)
	b.WriteString("\n")
	for _, prop := range c.Properties {
		b.WriteString("  property ")
		b.WriteString(prop.Name)
		if prop.Type != nil {
			b.WriteString(": ")
			b.WriteString(formatTypeExpr(prop.Type))
		}
		if prop.Default != nil {
			b.WriteString(" = ")
			b.WriteString(formatExpression(prop.Default))
		}
		b.WriteString("\n")
	}
	for _, fn := range c.orderedMethods() {
		if fn.Private {
			continue
		}
		b.WriteString(withDoc(DocComment(fn.Source, fn.Pos.Line), FunctionSignature(fn), "  "))
		b.WriteString("\n")
	}
	b.WriteString("end")
	return b.String()
}

func (c *ClassDef) orderedMethods() []*ScriptFunction {
	var out []*ScriptFunction
	if c.Decl == nil {
		for _, name := range sortedKeys(c.ClassMethods) {
			out = append(out, c.ClassMethods[name])
		}
		for _, name := range sortedKeys(c.Methods) {
			out = append(out, c.Methods[name])
		}
		return out
	}
	for _, decl := range c.Decl.ClassMethods {
		if fn, ok := c.ClassMethods[decl.Name]; ok {
			out = append(out, fn)
		}
	}
	for _, decl := range c.Decl.Methods {
		if fn, ok := c.Methods[decl.Name]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func withDoc(doc, text, indent string) string {
	var b strings.Builder
	if doc != "" {
		for line := range strings.SplitSeq(doc, "\n") {
			b.WriteString(indent)
			b.WriteString(strings.TrimRight("# "+line, " "))
			b.WriteString("\n")
		}
	}
	b.WriteString(indent)
	b.WriteString(text)
	return b.String()
}

func formatExpression(expr Expression) string {
	switch e := expr.(type) {
	case *Identifier:
		return e.Name
	case *IntegerLiteral:
		return strconv.FormatInt(e.Value, 10)
	case *FloatLiteral:
		return formatFloat(e.Value)
	case *StringLiteral:
		return strconv.Quote(e.Value)
	case *SymbolLiteral:
		return ":" + e.Name
	case *BoolLiteral:
		return strconv.FormatBool(e.Value)
	case *NilLiteral:
		return "nil"
	case *SelfExpr:
		return "self"
	case *IvarExpr:
		return "@" + e.Name
	case *ArrayLiteral:
		parts := make([]string, len(e.Elements))
		for i, el := range e.Elements {
			parts[i] = formatExpression(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *HashLiteral:
		parts := make([]string, len(e.Pairs))
		for i, pair := range e.Pairs {
			parts[i] = formatExpression(pair.Key) + " => " + formatExpression(pair.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *UnaryExpr:
		return string(e.Operator) + formatExpression(e.Right)
	case *BinaryExpr:
		return formatExpression(e.Left) + " " + string(e.Operator) + " " + formatExpression(e.Right)
	case *RangeExpr:
		return formatExpression(e.Start) + ".." + formatExpression(e.End)
	case *MemberExpr:
		return formatExpression(e.Object) + "." + e.Property
	case *IndexExpr:
		return formatExpression(e.Object) + "[" + formatExpression(e.Index) + "]"
	case *CallExpr:
		parts := make([]string, 0, len(e.Args)+len(e.KwArgs))
		for _, arg := range e.Args {
			parts = append(parts, formatExpression(arg))
		}
		for _, kw := range e.KwArgs {
			parts = append(parts, kw.Name+": "+formatExpression(kw.Value))
		}
		return fmt.Sprintf("%s(%s)", formatExpression(e.Callee), strings.Join(parts, ", "))
	}
	return "..."
}
