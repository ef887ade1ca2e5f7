package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/roach88/pgproxy/internal/ir"
)

// Options controls how a batch is rendered.
type Options struct {
	// Schema is the target schema. Empty means ir.DefaultSchema.
	Schema string

	// Expose lists local function names callable from remote code.
	Expose []string
}

func (o Options) schema() string {
	if o.Schema == "" {
		return ir.DefaultSchema
	}
	return o.Schema
}

// QualifiedName returns the quoted schema-qualified procedure name.
func QualifiedName(schema, function string) string {
	return pgx.Identifier{schema, ir.ProcedureName(function)}.Sanitize()
}

// CallSQL returns the parameterized query invoking a deployed procedure.
// $1 is the JSON-encoded argument array.
func CallSQL(schema, function string) string {
	return fmt.Sprintf("select %s($1::json)::text as result", QualifiedName(schema, function))
}

// DropSQL returns the statement removing a deployed procedure.
func DropSQL(schema, function string) string {
	return fmt.Sprintf("drop function if exists %s(json)", QualifiedName(schema, function))
}

// CatalogSQL lists procedures of one schema whose name starts with a prefix.
// $1 is the schema, $2 the prefix.
const CatalogSQL = `select p.proname, p.prosrc
from pg_catalog.pg_proc p
join pg_catalog.pg_namespace n on n.oid = p.pronamespace
where n.nspname = $1 and left(p.proname, length($2)) = $2
order by p.proname`

// Compile renders one function into a create-or-replace statement.
//
// batch is the full list of function names in the current sync; every name
// other than fn.Name gets a call shim. Self-reference is excluded.
func Compile(fn ir.FunctionSpec, batch []string, opts Options) (ir.Procedure, error) {
	if errs := Validate(fn); len(errs) > 0 {
		return ir.Procedure{}, errs[0]
	}
	schema := opts.schema()
	if err := validateSchema(schema); err != nil {
		return ir.Procedure{}, err
	}

	siblings := sortedUnique(batch, fn.Name)
	for _, sibling := range siblings {
		if !identifierPattern.MatchString(sibling) {
			return ir.Procedure{}, &CompileError{
				Function: fn.Name,
				Field:    "batch",
				Code:     ErrInvalidIdentifier,
				Message:  fmt.Sprintf("sibling %q is not a valid identifier", sibling),
			}
		}
	}
	batchSet := make(map[string]bool, len(batch)+1)
	for _, name := range batch {
		batchSet[name] = true
	}
	batchSet[fn.Name] = true
	if err := validateExpose(opts.Expose, batchSet); err != nil {
		return ir.Procedure{}, err
	}

	qualified := QualifiedName(schema, fn.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "create or replace function %s(params json)\n", qualified)
	b.WriteString("returns json\n")
	b.WriteString("language plv8\n")
	b.WriteString("as\n")
	b.WriteString(ir.BodyDelimiter + "\n")
	for _, sibling := range siblings {
		writeSiblingShim(&b, schema, sibling)
	}
	for _, exposed := range sortedUnique(opts.Expose, "") {
		writeExposeShim(&b, exposed)
	}
	fmt.Fprintf(&b, "const %s = function(%s) {\n", fn.Name, strings.Join(fn.Params, ", "))
	if body := strings.TrimSpace(fn.Body); body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString("};\n")
	fmt.Fprintf(&b, "return JSON.stringify(%s.apply(plv8, params));\n", fn.Name)
	b.WriteString(ir.BodyDelimiter + "\n")

	return ir.Procedure{
		Spec:          fn,
		QualifiedName: qualified,
		Source:        b.String(),
	}, nil
}

// CompileBatch compiles every function against the same batch.
// Output order matches input order.
func CompileBatch(fns []ir.FunctionSpec, opts Options) ([]ir.Procedure, error) {
	names := make([]string, 0, len(fns))
	seen := make(map[string]bool, len(fns))
	for _, fn := range fns {
		if seen[fn.Name] {
			return nil, &CompileError{
				Function: fn.Name,
				Field:    "name",
				Code:     ErrDuplicateFunction,
				Message:  "function appears more than once in the batch",
			}
		}
		seen[fn.Name] = true
		names = append(names, fn.Name)
	}

	procs := make([]ir.Procedure, 0, len(fns))
	for _, fn := range fns {
		proc, err := Compile(fn, names, opts)
		if err != nil {
			return nil, err
		}
		procs = append(procs, proc)
	}
	return procs, nil
}

// ExtractBody returns the text strictly between the first and second body
// delimiter. Text with fewer than two delimiters is returned unchanged, which
// is the shape of pg_proc.prosrc.
func ExtractBody(source string) string {
	start := strings.Index(source, ir.BodyDelimiter)
	if start < 0 {
		return source
	}
	start += len(ir.BodyDelimiter)
	end := strings.Index(source[start:], ir.BodyDelimiter)
	if end < 0 {
		return source
	}
	return source[start : start+end]
}

func writeSiblingShim(b *strings.Builder, schema, name string) {
	fmt.Fprintf(b, "const %s = (...args) => {\n", name)
	fmt.Fprintf(b, "\tconst rows = plv8.execute('%s', [JSON.stringify(args)]);\n", CallSQL(schema, name))
	b.WriteString("\treturn rows.length ? JSON.parse(rows[0].result) : null;\n")
	b.WriteString("};\n")
}

func writeExposeShim(b *strings.Builder, name string) {
	fmt.Fprintf(b, "const %s = (...args) => {\n", name)
	fmt.Fprintf(b, "\tplv8.execute('select pg_notify($1, $2)', ['%s', JSON.stringify({fn: '%s', params: args, action: '%s'})]);\n",
		ir.Topic, name, ir.ActionCall)
	b.WriteString("};\n")
}

// sortedUnique returns names sorted, deduplicated, with skip removed.
func sortedUnique(names []string, skip string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != skip {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
