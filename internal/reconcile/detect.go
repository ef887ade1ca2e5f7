package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/pgproxy/internal/compiler"
	"github.com/roach88/pgproxy/internal/ir"
	"github.com/roach88/pgproxy/internal/remote"
)

// Detector reads the remote catalog for one schema.
type Detector struct {
	q      remote.Querier
	schema string
	logger *slog.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithDetectorLogger sets the logger for classification diagnostics.
func WithDetectorLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		d.logger = logger
	}
}

// NewDetector creates a Detector. An empty schema means ir.DefaultSchema.
func NewDetector(q remote.Querier, schema string, opts ...DetectorOption) *Detector {
	if schema == "" {
		schema = ir.DefaultSchema
	}
	d := &Detector{
		q:      q,
		schema: schema,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch returns every procedure in the schema carrying the naming prefix.
func (d *Detector) Fetch(ctx context.Context) ([]ir.RemoteProcedure, error) {
	rows, err := d.q.Query(ctx, compiler.CatalogSQL, d.schema, ir.Prefix)
	if err != nil {
		return nil, &ir.RemoteError{Op: "fetch", Err: err}
	}

	procs := make([]ir.RemoteProcedure, 0, len(rows))
	for _, row := range rows {
		name, err := textColumn(row, "proname")
		if err != nil {
			return nil, err
		}
		src, err := textColumn(row, "prosrc")
		if err != nil {
			return nil, err
		}
		procs = append(procs, ir.RemoteProcedure{Name: name, Source: src})
	}
	return procs, nil
}

// Detect fetches the catalog and classifies procs against it.
func (d *Detector) Detect(ctx context.Context, procs []ir.Procedure) (ir.ChangeSet, error) {
	existing, err := d.Fetch(ctx)
	if err != nil {
		return ir.ChangeSet{}, err
	}
	cs := Classify(procs, existing)
	for _, p := range cs.Changed {
		row, _ := findRemote(existing, ir.ProcedureName(p.Name()))
		if ir.NormalizationOnly(compiler.ExtractBody(p.Source), compiler.ExtractBody(row.Source)) {
			d.logger.Warn("function changed only in unicode normalization",
				"schema", d.schema, "function", p.Name())
		}
	}
	return cs, nil
}

// Classify partitions procs into new, changed and unchanged, and lists remote
// procedures that were not requested as orphaned.
//
// Only the body between the delimiters is compared; the surrounding
// create-or-replace scaffolding is regenerated on every compile. Requested
// groups keep request order; orphans keep catalog order.
func Classify(procs []ir.Procedure, existing []ir.RemoteProcedure) ir.ChangeSet {
	var cs ir.ChangeSet

	requested := make(map[string]bool, len(procs))
	for _, p := range procs {
		proname := ir.ProcedureName(p.Name())
		requested[proname] = true

		row, found := findRemote(existing, proname)
		if !found {
			cs.New = append(cs.New, p)
			continue
		}

		local := ir.Digest(compiler.ExtractBody(p.Source))
		stored := ir.Digest(compiler.ExtractBody(row.Source))
		if local == stored {
			cs.Unchanged = append(cs.Unchanged, p)
		} else {
			cs.Changed = append(cs.Changed, p)
		}
	}

	for _, row := range existing {
		if !requested[row.Name] {
			cs.Orphaned = append(cs.Orphaned, ir.Orphan{Name: row.FunctionName()})
		}
	}

	return cs
}

// findRemote is a linear scan; catalogs hold tens to low hundreds of rows.
func findRemote(existing []ir.RemoteProcedure, proname string) (ir.RemoteProcedure, bool) {
	for _, row := range existing {
		if row.Name == proname {
			return row, true
		}
	}
	return ir.RemoteProcedure{}, false
}

func textColumn(row remote.Row, column string) (string, error) {
	v, ok := row.Get(column)
	if !ok {
		return "", fmt.Errorf("catalog row missing column %q", column)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("catalog column %q: unexpected type %T", column, v)
	}
}
