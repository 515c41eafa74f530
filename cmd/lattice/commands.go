package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lattice/api/internal/config"
	"lattice/api/internal/index"
	"lattice/api/internal/markmap"
	"lattice/api/internal/model"
	"lattice/api/internal/nodetype"
	"lattice/api/internal/parser"
	"lattice/api/internal/render/html"
	"lattice/api/internal/render/markdown"
	"lattice/api/internal/store"
	"lattice/api/internal/tree"
)

var (
	renderFormat string
	expandLevel  int
	rollback     bool

	rootCmd = &cobra.Command{
		Use:           "lattice",
		Short:         "Offline tools for Lattice markdown documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	parseCmd = &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a markdown file and print its node records as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runParse,
	}

	renderCmd = &cobra.Command{
		Use:   "render [file]",
		Short: "Round-trip a markdown file through the node tree",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRender,
	}

	markmapCmd = &cobra.Command{
		Use:   "markmap [file]",
		Short: "Print the markmap JSON of a markdown file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMarkmap,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back) database migrations for the configured database",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
)

func init() {
	renderCmd.Flags().StringVarP(&renderFormat, "format", "f", "md", "output format: md or html")
	markmapCmd.Flags().IntVar(&expandLevel, "expand-level", -1, "fold nodes deeper than this level (-1 expands all)")
	migrateCmd.Flags().BoolVar(&rollback, "down", false, "roll back every migration")
	rootCmd.AddCommand(parseCmd, renderCmd, markmapCmd, migrateCmd)
}

// readInput reads the named file, or stdin when no file is given.
func readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(os.Stdin)
		return string(raw), err
	}
	raw, err := os.ReadFile(args[0])
	return string(raw), err
}

// buildTree parses markdown into an in-memory node tree.
func buildTree(markdown string) (*tree.NodeTree, model.NodeSnapshot, []string, error) {
	sink := index.NewCollectingSink()
	result, err := parser.New(nodetype.Default()).Parse(markdown, model.NewDocumentID(), sink)
	if err != nil {
		return nil, model.NodeSnapshot{}, nil, err
	}
	snap := sink.Snapshot()
	t, err := tree.Build(snap)
	if err != nil {
		return nil, model.NodeSnapshot{}, nil, err
	}
	return t, snap, result.Warnings, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runParse(cmd *cobra.Command, args []string) error {
	input, err := readInput(args)
	if err != nil {
		return err
	}
	_, snap, warnings, err := buildTree(input)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
	return printJSON(cmd, snap)
}

func runRender(cmd *cobra.Command, args []string) error {
	input, err := readInput(args)
	if err != nil {
		return err
	}
	t, _, _, err := buildTree(input)
	if err != nil {
		return err
	}
	md, err := markdown.NewSerializer(nodetype.Default()).Serialize(t)
	if err != nil {
		return err
	}
	switch renderFormat {
	case "md", "markdown":
		fmt.Fprintln(cmd.OutOrStdout(), md)
	case "html":
		out, err := html.New().Render(md)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
	default:
		return fmt.Errorf("unknown format %q", renderFormat)
	}
	return nil
}

// staticTree serves one pre-built tree to the markmap pipeline.
type staticTree struct{ t *tree.NodeTree }

func (s staticTree) LoadTree(context.Context, model.DocumentID) (*tree.NodeTree, error) {
	return s.t, nil
}

func runMarkmap(cmd *cobra.Command, args []string) error {
	input, err := readInput(args)
	if err != nil {
		return err
	}
	t, _, _, err := buildTree(input)
	if err != nil {
		return err
	}
	opts := markmap.DefaultOptions()
	opts.InitialExpandLevel = expandLevel
	svc := markmap.NewService(staticTree{t: t}, markmap.StaticOptions(opts), markmap.NewTransformer(nodetype.Default(), html.New()))
	node, err := svc.Execute(cmd.Context(), "", model.DocumentID{})
	if err != nil {
		return err
	}
	return printJSON(cmd, node)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if rollback {
		if err := store.RollbackMigrations(ctx, db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
		return nil
	}
	if err := store.ApplyMigrations(ctx, db); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
	return nil
}
