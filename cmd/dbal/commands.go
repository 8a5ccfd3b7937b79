package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/coregx/dbal"
)

func (a *app) runPing(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Ping(ctx); err != nil {
		return err
	}
	version, err := conn.Schema().ServerVersion(ctx)
	if err != nil {
		if !errors.Is(err, dbal.ErrNotSupported) {
			return err
		}
		version = "unknown"
	}
	fmt.Fprintf(a.out, "ok: %s server %s\n", conn.DriverName(), version)
	return nil
}

func newTablesCmd(a *app) *cobra.Command {
	var schemaName string
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conn, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			names, err := conn.Schema().GetTableNames(ctx, schemaName, true)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(a.out, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", "", "Schema to list; the default schema when empty")
	return cmd
}

func (a *app) runDescribe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	ts, err := conn.Schema().GetTableSchema(ctx, args[0], true)
	if err != nil {
		return err
	}
	if ts == nil {
		return fmt.Errorf("table %q does not exist", args[0])
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tTYPE\tDB TYPE\tNULL\tKEY\tDEFAULT")
	for _, c := range ts.Columns {
		key := ""
		if c.IsPrimaryKey {
			key = "PRI"
		} else if c.IsUnique {
			key = "UNI"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Name, c.Type, c.DBType, yesNo(c.AllowNull), key, formatValue(c.DefaultValue))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, fk := range ts.ForeignKeys {
		fmt.Fprintf(a.out, "FOREIGN KEY %s (%s) REFERENCES %s (%s)\n",
			fk.Name, strings.Join(fk.Columns, ", "), fk.ForeignTable, strings.Join(fk.ForeignColumns, ", "))
	}
	return nil
}

func (a *app) runSQL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	command := conn.CreateCommand(args[0], nil)
	if !conn.Schema().IsReadQuery(command.SQL()) {
		n, err := command.Execute(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%d row(s) affected\n", n)
		return nil
	}

	rows, err := command.Query(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(columns, "\t"))

	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	count := 0
	cells := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		for i, v := range values {
			cells[i] = formatValue(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "(%d row(s))\n", count)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	}
	return fmt.Sprint(v)
}
