package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	geomodeldb "github.com/i5heu/geomodel-db"
	"github.com/i5heu/geomodel-db/pkg/geo"
	"github.com/i5heu/geomodel-db/pkg/publish"
	"github.com/i5heu/geomodel-db/pkg/reader"
	"github.com/i5heu/geomodel-db/pkg/types"
	workerpool "github.com/i5heu/geomodel-db/pkg/workerPool"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTablesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the store with their row counts",
		Args:  cobra.NoArgs,
		RunE: withDB(o, func(cmd *cobra.Command, _ []string, db *geomodeldb.GeoModelDB) error {
			ctx := cmd.Context()
			names, err := db.Backend().Tables(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tCOLUMNS\tROWS")
			for _, name := range names {
				def, err := db.Backend().Schema(ctx, name)
				if err != nil {
					return err
				}
				rows, err := db.Backend().Scan(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", name, len(def.Columns), humanize.Comma(int64(len(rows))))
			}
			return tw.Flush()
		}),
	}
}

func newDumpCmd(o *options) *cobra.Command {
	var (
		asJSON bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "dump <table>",
		Short: "Print the rows of one table",
		Args:  cobra.ExactArgs(1),
		RunE: withDB(o, func(cmd *cobra.Command, args []string, db *geomodeldb.GeoModelDB) error {
			ctx := cmd.Context()
			def, err := db.Backend().Schema(ctx, args[0])
			if err != nil {
				return err
			}
			rows, err := db.Backend().Scan(ctx, args[0])
			if err != nil {
				return err
			}
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}
			if asJSON {
				return dumpJSON(cmd.OutOrStdout(), def, rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			header := make([]string, len(def.Columns))
			for i, c := range def.Columns {
				header[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
			}
			fmt.Fprintln(tw, strings.Join(header, "\t"))
			for _, row := range rows {
				cells := make([]string, len(row))
				for i, v := range row {
					cells[i] = v.String()
				}
				fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rows as a JSON array of objects")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "print at most n rows (0: all)")
	return cmd
}

// dumpJSON renders rows as protobuf Struct values keyed by column name.
func dumpJSON(w io.Writer, def types.TableDef, rows []types.Row) error {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(rows))}
	for _, row := range rows {
		fields := make(map[string]any, len(row))
		for i, v := range row {
			fields[def.Columns[i].Name] = v.Interface()
		}
		s, err := structpb.NewStruct(fields)
		if err != nil {
			return fmt.Errorf("row %d: %w", len(list.Values), err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(list)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// digest hashes the rows of a table so that two stores holding the same rows in the
// same order print the same value.
func digest(rows []types.Row) uint64 {
	d := xxhash.New()
	for _, row := range rows {
		for _, v := range row {
			d.WriteString(v.Type.String())
			d.Write([]byte{0})
			d.WriteString(v.String())
			d.Write([]byte{0})
		}
		d.Write([]byte{'\n'})
	}
	return d.Sum64()
}

type tableStat struct {
	name   string
	rows   int
	digest uint64
}

// tableStats scans and digests the tables on a worker pool; the result keeps the order
// of names.
func tableStats(cmd *cobra.Command, db *geomodeldb.GeoModelDB, names []string) ([]tableStat, error) {
	wp := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: 4})
	defer wp.Close()

	ctx := cmd.Context()
	room := workerpool.CreateRoom[tableStat](wp)
	for _, name := range names {
		name := name
		room.NewTaskWaitForFreeSlot(func() (tableStat, error) {
			rows, err := db.Backend().Scan(ctx, name)
			if err != nil {
				return tableStat{}, fmt.Errorf("scanning %s: %w", name, err)
			}
			return tableStat{name: name, rows: len(rows), digest: digest(rows)}, nil
		})
	}
	return room.Collect()
}

func newStatsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the stored graph with per-table digests",
		Args:  cobra.NoArgs,
		RunE: withDB(o, func(cmd *cobra.Command, _ []string, db *geomodeldb.GeoModelDB) error {
			ctx := cmd.Context()
			session, err := db.Read(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			v := session.Version()
			fmt.Fprintf(out, "graph %s, schema version %d, written %s\n", v.GraphID, v.Version, humanize.Time(v.CreatedAt))
			fmt.Fprintf(out, "root %s\n\n", session.Root())

			names, err := db.Backend().Tables(ctx)
			if err != nil {
				return err
			}
			stats, err := tableStats(cmd, db, names)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tROWS\tDIGEST")
			total := 0
			for _, st := range stats {
				total += st.rows
				fmt.Fprintf(tw, "%s\t%s\t%016x\n", st.name, humanize.Comma(int64(st.rows)), st.digest)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			g := session.Graph()
			kinds := map[types.Kind]int{}
			for _, id := range g.Nodes() {
				kinds[g.Kind(id)]++
			}
			fmt.Fprintf(out, "\n%s rows in %d tables, %s nodes\n", humanize.Comma(int64(total)), len(names), humanize.Comma(int64(g.Len())))
			for _, k := range types.AllKinds {
				if kinds[k] > 0 {
					fmt.Fprintf(out, "  %-20s %s\n", k, humanize.Comma(int64(kinds[k])))
				}
			}
			fmt.Fprintf(out, "auxiliary tables: %d\n", session.Aux().Len())
			return nil
		}),
	}
}

func newPublishedCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "published",
		Short: "List the published full physical volumes and alignable transforms",
		Args:  cobra.NoArgs,
		RunE: withDB(o, func(cmd *cobra.Command, _ []string, db *geomodeldb.GeoModelDB) error {
			ctx := cmd.Context()
			pubs, err := publish.Publishers(ctx, db.Backend())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(pubs) == 0 {
				fmt.Fprintln(out, "no published nodes")
				return nil
			}
			for _, p := range pubs {
				var lines []string
				switch p.KeyKind {
				case publish.StringKey:
					m, err := publish.Lookup[string](ctx, db.Backend(), p.Publisher, p.TargetKind, true)
					if err != nil {
						return err
					}
					for k, id := range m {
						lines = append(lines, fmt.Sprintf("  %q -> %s %s", k, p.TargetKind, id))
					}
				case publish.IntKey:
					m, err := publish.Lookup[int64](ctx, db.Backend(), p.Publisher, p.TargetKind, true)
					if err != nil {
						return err
					}
					for k, id := range m {
						lines = append(lines, fmt.Sprintf("  %d -> %s %s", k, p.TargetKind, id))
					}
				}
				sort.Strings(lines)
				fmt.Fprintf(out, "%s: %s keys, %s targets, %d entries\n", p.Publisher, p.KeyKind, p.TargetKind, len(lines))
				for _, l := range lines {
					fmt.Fprintln(out, l)
				}
			}
			return nil
		}),
	}
}

func newTreeCmd(o *options) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the volume tree below the root",
		Args:  cobra.NoArgs,
		RunE: withDB(o, func(cmd *cobra.Command, _ []string, db *geomodeldb.GeoModelDB) error {
			session, err := db.Read(cmd.Context())
			if err != nil {
				return err
			}
			p := &treePrinter{out: cmd.OutOrStdout(), s: session, g: session.Graph(), max: depth, seen: map[geo.NodeID]bool{}}
			p.volume(session.Graph().Root(), 0)
			return nil
		}),
	}
	cmd.Flags().IntVarP(&depth, "depth", "d", 0, "stop below this depth (0: no limit)")
	return cmd
}

// treePrinter expands each volume once; later placements of it are marked as repeats.
type treePrinter struct {
	out  io.Writer
	s    *reader.Session
	g    *geo.Graph
	max  int
	seen map[geo.NodeID]bool
}

func (p *treePrinter) label(id geo.NodeID) string {
	ref, _ := p.s.RefFor(id)
	switch d := p.g.Node(id).Data.(type) {
	case *geo.Volume:
		lv := p.g.LogVol(d.LogVol)
		return fmt.Sprintf("%s %q [%s, %s]", ref, lv.Name, p.g.Shape(lv.Shape).Type, p.g.Material(lv.Material).Name)
	case *geo.Placement:
		t := d.Transform.Translation()
		return fmt.Sprintf("%s (%g, %g, %g)", ref, t[0], t[1], t[2])
	case *geo.NameTag:
		return fmt.Sprintf("%s %q", ref, d.Name)
	case *geo.IdentifierTag:
		return fmt.Sprintf("%s %d", ref, d.Value)
	case *geo.SerialIdentifier:
		return fmt.Sprintf("%s base %d", ref, d.Base)
	case *geo.SerialDenominator:
		return fmt.Sprintf("%s base %q", ref, d.Base)
	case *geo.SerialTransformer:
		return fmt.Sprintf("%s x%d", ref, d.Copies)
	}
	return ref.String()
}

func (p *treePrinter) line(depth int, text string) {
	fmt.Fprintf(p.out, "%s%s\n", strings.Repeat("  ", depth), text)
}

// placedUnder lists the parents of a shared volume. Volumes reached only through a
// serial transformer have none.
func (p *treePrinter) placedUnder(id geo.NodeID) string {
	ref, _ := p.s.RefFor(id)
	parents := p.s.ParentsOf(ref)
	if len(parents) == 0 {
		return ""
	}
	names := make([]string, len(parents))
	for i, r := range parents {
		names[i] = r.String()
	}
	return ", under " + strings.Join(names, " ")
}

func (p *treePrinter) volume(id geo.NodeID, depth int) {
	if p.seen[id] {
		p.line(depth, p.label(id)+" (repeat"+p.placedUnder(id)+")")
		return
	}
	p.seen[id] = true
	p.line(depth, p.label(id))
	if p.max > 0 && depth+1 >= p.max {
		return
	}
	for _, c := range p.g.Children(id) {
		switch p.g.Kind(c) {
		case types.PhysVol, types.FullPhysVol:
			p.volume(c, depth+1)
		case types.SerialTransformer:
			p.line(depth+1, p.label(c))
			p.volume(p.g.SerialTransformer(c).Volume, depth+2)
		default:
			p.line(depth+1, p.label(c))
		}
	}
}
