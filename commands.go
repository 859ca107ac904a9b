package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sixpeteunder/orientdb-odm/document"
	"github.com/sixpeteunder/orientdb-odm/mapper"
	"github.com/sixpeteunder/orientdb-odm/models"
)

func newFindCmd(c *cli) *cobra.Command {
	var fetchPlan string
	findCmd := &cobra.Command{
		Use:   "find <rid>",
		Short: "Load one record by its record id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := c.app.NewManager()
			var plans []string
			if fetchPlan != "" {
				plans = append(plans, fetchPlan)
			}
			doc, err := mgr.Find(cmd.Context(), args[0], plans...)
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("record %s not found", args[0])
			}
			out, err := render(cmd.Context(), mgr.Mapper(), doc)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), c.output, out)
		},
	}
	findCmd.Flags().StringVar(&fetchPlan, "fetch-plan", "", "fetch plan, e.g. *:-1")
	return findCmd
}

func newRecordsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "records <rid>...",
		Short: "Load several records in one request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := c.app.NewManager()
			docs, err := mgr.FindRecords(cmd.Context(), args)
			if err != nil {
				return err
			}
			return writeAll(cmd, c, mgr.Mapper(), docs)
		},
	}
}

func newQueryCmd(c *cli) *cobra.Command {
	var (
		where []string
		limit int
	)
	queryCmd := &cobra.Command{
		Use:   "query <class>",
		Short: "List documents of a mapped class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := parseCriteria(where)
			if err != nil {
				return err
			}

			mgr := c.app.NewManager()
			repo, err := mgr.GetRepository(args[0])
			if err != nil {
				return err
			}

			var docs []*document.Document
			if len(criteria) == 0 {
				docs, err = repo.FindAll(cmd.Context())
			} else {
				docs, err = repo.FindBy(cmd.Context(), criteria)
			}
			if err != nil {
				return err
			}
			if limit > 0 && len(docs) > limit {
				docs = docs[:limit]
			}
			return writeAll(cmd, c, mgr.Mapper(), docs)
		},
	}
	queryCmd.Flags().StringArrayVar(&where, "where", nil, "field=value equality filter, repeatable")
	queryCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of documents to print")
	return queryCmd
}

func newClassesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List mapped classes and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metas := c.app.Mapper.Classes()
			out := make([]map[string]any, 0, len(metas))
			for _, meta := range metas {
				fields := make([]string, 0, len(meta.Fields))
				for _, f := range meta.Fields {
					desc := f.Name + ":" + string(f.Type)
					if f.Target != "" {
						desc += "->" + f.Target
					}
					fields = append(fields, desc)
				}
				out = append(out, map[string]any{
					"class":  meta.Name,
					"schema": meta.Schema,
					"fields": fields,
				})
			}
			return write(cmd.OutOrStdout(), c.output, out)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func writeAll(cmd *cobra.Command, c *cli, m *mapper.Mapper, docs []*document.Document) error {
	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		r, err := render(cmd.Context(), m, doc)
		if err != nil {
			return err
		}
		out = append(out, r)
	}
	return write(cmd.OutOrStdout(), c.output, out)
}

// render flattens a document into its stored shape, relations as record ids.
func render(ctx context.Context, m *mapper.Mapper, doc *document.Document) (map[string]any, error) {
	fields, err := doc.Fields(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := m.Dehydrate(doc.Meta(), fields)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(stored)+3)
	for k, v := range stored {
		out[k] = printable(v)
	}
	out["@rid"] = doc.RID().String()
	out["@class"] = doc.Class()
	out["@version"] = doc.Version()
	return out, nil
}

func printable(v any) any {
	switch t := v.(type) {
	case models.RID:
		return t.String()
	case []models.RID:
		out := make([]string, len(t))
		for i, rid := range t {
			out[i] = rid.String()
		}
		return out
	}
	return v
}

func write(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// parseCriteria reads field=value pairs. Values that look like integers,
// floats or true/false are typed accordingly.
func parseCriteria(pairs []string) (map[string]any, error) {
	criteria := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter %q, want field=value", pair)
		}
		if _, dup := criteria[field]; dup {
			return nil, fmt.Errorf("duplicate filter on %s", field)
		}
		criteria[field] = typed(value)
	}
	return criteria, nil
}

func typed(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
