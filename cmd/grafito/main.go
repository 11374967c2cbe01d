// Package main provides the grafito CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orneryd/grafito/pkg/grafito"
)

var version = "0.1.0"

func main() {
	var (
		dbPath     string
		configPath string
		params     string
	)

	rootCmd := &cobra.Command{
		Use:   "grafito",
		Short: "Grafito - embeddable property graph database",
		Long: `Grafito is an embeddable property graph database backed by SQLite,
with a Cypher query dialect, full-text search and vector similarity search.`,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "graph.db", "Database file path (or :memory:)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("grafito v%s\n", version)
		},
	})

	queryCmd := &cobra.Command{
		Use:   "query <cypher>",
		Short: "Execute a Cypher statement and print the result rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dbPath, configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			var p map[string]any
			if params != "" {
				if err := json.Unmarshal([]byte(params), &p); err != nil {
					return fmt.Errorf("parse --params: %w", err)
				}
			}
			res, err := db.Execute(context.Background(), args[0], p)
			if err != nil {
				return err
			}
			printResult(cmd, res.Columns, res.Rows)
			return nil
		},
	}
	queryCmd.Flags().StringVar(&params, "params", "", "Query parameters as a JSON object")
	rootCmd.AddCommand(queryCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show node/relationship counts, labels and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(dbPath, configPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return printStats(cmd, db)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func openDB(path, configPath string) (*grafito.Database, error) {
	var cfg *grafito.Config
	if configPath != "" {
		var err error
		cfg, err = grafito.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	}
	return grafito.Open(path, cfg)
}

func printResult(cmd *cobra.Command, cols []string, rows [][]any) {
	if len(cols) > 0 {
		cmd.Println(strings.Join(cols, "\t"))
	}
	for _, r := range rows {
		parts := make([]string, len(r))
		for i, v := range r {
			parts[i] = formatValue(v)
		}
		cmd.Println(strings.Join(parts, "\t"))
	}
	cmd.Printf("(%d rows)\n", len(rows))
}

func formatValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}

func printStats(cmd *cobra.Command, db *grafito.Database) error {
	nodes, err := db.NodeCount()
	if err != nil {
		return err
	}
	rels, err := db.RelationshipCount()
	if err != nil {
		return err
	}
	labels, err := db.AllLabels()
	if err != nil {
		return err
	}
	types, err := db.AllRelationshipTypes()
	if err != nil {
		return err
	}
	idxs, err := db.ListIndexes()
	if err != nil {
		return err
	}
	vecs, err := db.ListVectorIndexes()
	if err != nil {
		return err
	}

	cmd.Printf("Path:               %s\n", db.Path())
	cmd.Printf("Nodes:              %d\n", nodes)
	cmd.Printf("Relationships:      %d\n", rels)
	cmd.Printf("Labels:             %s\n", strings.Join(labels, ", "))
	cmd.Printf("Relationship types: %s\n", strings.Join(types, ", "))
	cmd.Printf("FTS5:               %v\n", db.HasFTS5())
	for _, d := range idxs {
		cmd.Printf("Index:              %s (%s) on :%s(%s)\n", d.Name, d.Kind, d.Label, d.Property)
	}
	for _, d := range vecs {
		cmd.Printf("Vector index:       %s dim=%d metric=%s method=%s\n", d.Name, d.Dim, d.Metric, d.Method)
	}
	return nil
}
