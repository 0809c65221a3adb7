// Package paramgen writes Go source for a parameters type, for projects
// that prefer a concrete struct over the map-backed params.Params.
//
// The generated type is generic in its element type, carries the vector
// view (Len, Optvec, Reconstruct) and a literal copy of the table it was
// generated from.
package paramgen

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"math"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/san-kum/tracersim/internal/params"
)

var greek = map[rune]string{
	'α': "Alpha", 'β': "Beta", 'γ': "Gamma", 'δ': "Delta", 'ε': "Epsilon",
	'ζ': "Zeta", 'η': "Eta", 'θ': "Theta", 'ι': "Iota", 'κ': "Kappa",
	'λ': "Lambda", 'μ': "Mu", 'ν': "Nu", 'ξ': "Xi", 'π': "Pi", 'ρ': "Rho",
	'σ': "Sigma", 'τ': "Tau", 'υ': "Upsilon", 'φ': "Phi", 'χ': "Chi",
	'ψ': "Psi", 'ω': "Omega",
}

// GoName turns a parameter name into an exported Go identifier: Greek
// letters are spelled out, subscript digits become digits and underscores
// separate CamelCase words, so "τ_geo" becomes "TauGeo".
func GoName(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		var w strings.Builder
		for _, r := range part {
			switch {
			case greek[unicode.ToLower(r)] != "":
				w.WriteString(greek[unicode.ToLower(r)])
			case r >= '₀' && r <= '₉':
				w.WriteRune('0' + (r - '₀'))
			default:
				w.WriteRune(r)
			}
		}
		s := []rune(w.String())
		s[0] = unicode.ToUpper(s[0])
		b.WriteString(string(s))
	}
	return b.String()
}

type field struct {
	Name, GoName             string
	Default                  string
	StorageUnit, DisplayUnit string
	Optimizable              bool
	Mean, Variance           string
	Description              string
}

type file struct {
	Package  string
	Name     string
	Lower    string
	Fields   []field
	Opt      []field
	NeedMath bool
}

// methods are declared on every generated type; fields may not shadow them.
var methods = map[string]bool{"Len": true, "Optvec": true, "Reconstruct": true}

// Generate returns gofmt'd source declaring the parameters type of s in
// package pkg.
func Generate(s *params.Schema, pkg string) ([]byte, error) {
	if !token.IsIdentifier(pkg) {
		return nil, fmt.Errorf("paramgen: invalid package name %q", pkg)
	}
	name := s.Name()
	if !token.IsExported(name) {
		return nil, fmt.Errorf("paramgen: type name %q is not exported", name)
	}

	f := file{Package: pkg, Name: name, Lower: strings.ToLower(name[:1]) + name[1:]}
	seen := map[string]string{}
	for _, fd := range s.Fields() {
		g := GoName(fd.Name)
		if !token.IsIdentifier(g) {
			return nil, fmt.Errorf("paramgen: %q has no Go spelling", fd.Name)
		}
		if methods[g] {
			return nil, fmt.Errorf("paramgen: %q maps to %s, a method of the generated type", fd.Name, g)
		}
		if prev, ok := seen[g]; ok {
			return nil, fmt.Errorf("paramgen: %q and %q both map to %s", prev, fd.Name, g)
		}
		seen[g] = fd.Name
		mean, nm := literal(fd.ObsMean)
		variance, nv := literal(fd.ObsVariance)
		def, nd := literal(fd.Default)
		f.NeedMath = f.NeedMath || nm || nv || nd
		row := field{
			Name:        fd.Name,
			GoName:      g,
			Default:     def,
			StorageUnit: fd.StorageUnit.String(),
			DisplayUnit: fd.DisplayUnit.String(),
			Optimizable: fd.Optimizable,
			Mean:        mean,
			Variance:    variance,
			Description: fd.Description,
		}
		f.Fields = append(f.Fields, row)
		if fd.Optimizable {
			f.Opt = append(f.Opt, row)
		}
	}

	var buf bytes.Buffer
	if err := source.Execute(&buf, f); err != nil {
		return nil, fmt.Errorf("paramgen: %w", err)
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("paramgen: format %s: %w", name, err)
	}
	return out, nil
}

// literal renders v as a Go float64 expression and reports whether it
// needs the math package.
func literal(v float64) (string, bool) {
	switch {
	case math.IsNaN(v):
		return "math.NaN()", true
	case math.IsInf(v, 1):
		return "math.Inf(1)", true
	case math.IsInf(v, -1):
		return "math.Inf(-1)", true
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, false
}

var source = template.Must(template.New("params").Parse(`// Code generated by paramgen. DO NOT EDIT.

package {{.Package}}

import (
	"fmt"
{{- if .NeedMath}}
	"math"
{{- end}}
)

// {{.Name}} holds model parameters in SI units.
type {{.Name}}[T any] struct {
{{- range .Fields}}
	// {{.GoName}} is {{printf "%q" .Name}} [{{.StorageUnit}}]{{if not .Optimizable}}, fixed{{end}}.
	{{.GoName}} T
{{- end}}
}

// Len returns the number of optimizable parameters.
func (p {{.Name}}[T]) Len() int { return {{len .Opt}} }

// Optvec returns the optimizable values in table order.
func (p {{.Name}}[T]) Optvec() []T {
	return []T{ {{- range .Opt}}p.{{.GoName}}, {{end -}} }
}

// Reconstruct returns a copy of p with its optimizable values taken from v.
func (p {{.Name}}[T]) Reconstruct(v []T) ({{.Name}}[T], error) {
	if len(v) != {{len .Opt}} {
		return p, fmt.Errorf("{{.Name}}: got %d values, want {{len .Opt}}", len(v))
	}
{{- range $i, $f := .Opt}}
	p.{{$f.GoName}} = v[{{$i}}]
{{- end}}
	return p, nil
}

// Defaults{{.Name}} returns the table values.
func Defaults{{.Name}}() {{.Name}}[float64] {
	return {{.Name}}[float64]{
{{- range .Fields}}
		{{.GoName}}: {{.Default}},
{{- end}}
	}
}

type {{.Lower}}Field struct {
	Name        string
	Value       float64
	StorageUnit string
	DisplayUnit string
	Optimizable bool
	Mean        float64
	Variance    float64
	Description string
}

// Schema{{.Name}} is the parameter table {{.Name}} was generated from.
var Schema{{.Name}} = []{{.Lower}}Field{
{{- range .Fields}}
	{Name: {{printf "%q" .Name}}, Value: {{.Default}}, StorageUnit: {{printf "%q" .StorageUnit}}, DisplayUnit: {{printf "%q" .DisplayUnit}}, Optimizable: {{.Optimizable}}, Mean: {{.Mean}}, Variance: {{.Variance}}, Description: {{printf "%q" .Description}}},
{{- end}}
}
`))
