package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/starford/perthro/internal/docservice"
	"github.com/starford/perthro/internal/storage"
	"github.com/starford/perthro/internal/versioning"
)

// readNode reads a render node from disk. FILE may name a .json or a
// .json.zst file; a missing .json falls back to its compressed sibling.
func readNode(cmd *cli.Command) ([]byte, error) {
	file := cmd.Args().First()
	if file == "" {
		return nil, fmt.Errorf("%s: FILE is required", cmd.Name)
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	return store.Read(filepath.Base(abs))
}

func versionsCmd(_ context.Context, cmd *cli.Command) error {
	data, err := readNode(cmd)
	if err != nil {
		return err
	}
	versions := versioning.ListVersions(data)
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "unversioned")
		return nil
	}
	for _, v := range versions {
		fmt.Println(v)
	}
	return nil
}

func reconstructCmd(_ context.Context, cmd *cli.Command) error {
	data, err := readNode(cmd)
	if err != nil {
		return err
	}
	var opts []versioning.Option
	if cmd.Bool("strict") {
		opts = append(opts, versioning.WithStrictHistory())
	}
	res, err := versioning.New(opts...).Resolve(cmd.String("version"), data)
	if err != nil {
		return describeFailure(err)
	}
	fmt.Fprintf(os.Stderr, "outcome: %s\n", res.Outcome)

	var buf bytes.Buffer
	if err := json.Indent(&buf, res.Document, "", "  "); err != nil {
		return fmt.Errorf("reconstruct: %w", err)
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(os.Stdout)
	return err
}

func diffCmd(_ context.Context, cmd *cli.Command) error {
	data, err := readNode(cmd)
	if err != nil {
		return err
	}
	from, to := cmd.String("from"), cmd.String("to")
	a, err := versioning.New().Resolve(from, data)
	if err != nil {
		return describeFailure(err)
	}
	b, err := versioning.New().Resolve(to, data)
	if err != nil {
		return describeFailure(err)
	}
	hunks, _, err := docservice.DiffJSON(a.Document, b.Document)
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}

	colored := !cmd.Bool("no-color") &&
		(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	printDiff(os.Stdout, hunks, colored)
	return nil
}

// printDiff writes hunks in unified style, one prefixed line per line of text.
func printDiff(w io.Writer, hunks []docservice.DiffHunk, colored bool) {
	add := color.New(color.FgGreen)
	del := color.New(color.FgRed)
	if colored {
		add.EnableColor()
		del.EnableColor()
	} else {
		add.DisableColor()
		del.DisableColor()
	}

	for _, h := range hunks {
		for _, line := range strings.SplitAfter(h.Text, "\n") {
			if line == "" {
				continue
			}
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			switch h.Op {
			case docservice.DiffInsert:
				add.Fprint(w, "+ "+line)
			case docservice.DiffDelete:
				del.Fprint(w, "- "+line)
			default:
				fmt.Fprint(w, "  "+line)
			}
		}
	}
}

func describeFailure(err error) error {
	var pe *versioning.PatchError
	if errors.As(err, &pe) {
		return fmt.Errorf("version %q cannot be reconstructed: entry %d op %d (%s %s): %w",
			pe.Version, pe.Index, pe.Op, pe.Kind, pe.Path, err)
	}
	return err
}
