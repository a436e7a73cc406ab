// Package asm assembles mcvm assembly source into a bytecode image.
//
// Source is line oriented:
//
//	; comment
//	.asciz msg "hello\n"     ; data directive: kind, name, values
//	.main:                   ; label definition
//	    lcons r1, &msg       ; &name is a data address
//	    printp r1
//	    jmp .main            ; .label is a program offset
//
// Grammar is defined as Go structs with tags and parsed with Participle v2.
package asm

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// File is the top-level AST node.
type File struct {
	Lines []*Line `@@*`
}

// Line is one source line. Every part is optional.
type Line struct {
	Pos lexer.Position

	Label     *string      `@LabelDef?`
	Sizing    *Sizing      `( @@`
	Directive *Directive   `| @@`
	Inst      *Instruction `| @@ )?`
	EOL       string       `@EOL`
}

// Sizing sets the machine sizing recorded in the image: .scratch n or .stack n.
type Sizing struct {
	Kind  string `@Sizing`
	Value string `@Int`
}

// Directive: .kind name values
type Directive struct {
	Pos lexer.Position

	Kind   string     `@Directive`
	Name   string     `@Ident`
	Values []*Operand `( @@ ( "," @@ )* )?`
}

// Instruction: mnemonic operand, operand, ...
type Instruction struct {
	Pos lexer.Position

	Mnemonic string     `@Ident`
	Operands []*Operand `( @@ ( "," @@ )* )?`
}

// Operand is a single instruction or directive argument.
type Operand struct {
	Pos lexer.Position

	Float *string `  @Float`
	Int   *string `| @Int`
	Str   *string `| @String`
	Label *string `| @Label`
	Ref   *string `| @Ref`
	Reg   *string `| @Ident`
}

// String returns the operand as written.
func (o *Operand) String() string {
	switch {
	case o.Float != nil:
		return *o.Float
	case o.Int != nil:
		return *o.Int
	case o.Str != nil:
		return *o.Str
	case o.Label != nil:
		return *o.Label
	case o.Ref != nil:
		return *o.Ref
	case o.Reg != nil:
		return *o.Reg
	}
	return ""
}

var asmLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `;[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
	{Name: "EOL", Pattern: `\n`},

	{Name: "LabelDef", Pattern: `\.[A-Za-z_][A-Za-z0-9_]*:`},
	{Name: "Directive", Pattern: `\.(asciz|byte|word|long|zero)\b`},
	{Name: "Sizing", Pattern: `\.(scratch|stack)\b`},
	{Name: "Label", Pattern: `\.[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Ref", Pattern: `&[A-Za-z_][A-Za-z0-9_]*`},

	{Name: "String", Pattern: `"(\\.|[^"\\\n])*"`},
	{Name: "Float", Pattern: `[-+]?[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?`},
	{Name: "Int", Pattern: `[-+]?(0[xX][0-9a-fA-F]+|0[bB][01]+|[0-9]+)`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `,`},
})

var parser = participle.MustBuild[File](
	participle.Lexer(asmLexer),
	participle.Elide("Whitespace", "Comment"),
)

// Parse parses assembly source into its AST.
func Parse(filename, source string) (*File, error) {
	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	return parser.ParseString(filename, source)
}
