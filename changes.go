package main

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/phylomerge/internal/changes"
	"github.com/tonimelisma/phylomerge/internal/model"
)

func newChangesCmd() *cobra.Command {
	var since int64

	cmd := &cobra.Command{
		Use:   "changes ID",
		Short: "List entities changed since a baseline version",
		Long: `List every entity under a study, OTU set or matrix whose version is newer
than --since. The reported current version is the baseline for the next call.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			return withSession(cmd.Context(), cc, func(s *session) error {
				cs, err := s.engine.ChangedSince(cmd.Context(), args[0], since)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Out, cs)
				}

				printChanges(cc.Out, cs)

				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&since, "since", 0, "baseline version; 0 lists everything")

	return cmd
}

func printChanges(w io.Writer, cs *changes.ChangeSet) {
	fmt.Fprintf(w, "root %s: baseline %d, current %d\n", cs.Root, cs.Baseline, cs.Current)

	rows := changeRows(cs)
	if len(rows) == 0 {
		fmt.Fprintln(w, "no changes")
		return
	}

	printTable(w, []string{"KIND", "ID", "VERSION", "WHERE"}, rows)
}

// changeRows flattens a change set into table rows, parents before children.
func changeRows(cs *changes.ChangeSet) [][]string {
	var rows [][]string

	add := func(v changes.EntityVersion, where string) {
		rows = append(rows, []string{string(v.Kind), v.ExternalID, strconv.FormatInt(v.Version, 10), where})
	}

	if cs.Study != nil {
		add(*cs.Study, "")
	}

	for _, v := range cs.OtuSets {
		add(v, "")
	}

	for _, v := range cs.Otus {
		add(v, "")
	}

	for _, m := range cs.Matrices {
		add(m.EntityVersion, "")

		for _, c := range m.Characters {
			add(c, "")
		}

		for _, col := range m.Columns {
			rows = append(rows, []string{
				"column", col.CharacterExternalID, strconv.FormatInt(col.Version, 10),
				fmt.Sprintf("%s column %d", m.ExternalID, col.Index),
			})
		}

		for _, r := range m.Rows {
			add(r.EntityVersion, fmt.Sprintf("%s row %d (otu %s)", m.ExternalID, r.Index, r.OtuExternalID))
		}

		for _, k := range slices.SortedFunc(maps.Keys(m.Cells), compareCells) {
			rows = append(rows, []string{
				string(model.KindCell), "", strconv.FormatInt(m.Cells[k], 10),
				fmt.Sprintf("%s [%d,%d]", m.ExternalID, k.Row, k.Column),
			})
		}
	}

	for _, ss := range cs.SequenceSets {
		add(ss.EntityVersion, "")

		for _, otu := range slices.Sorted(maps.Keys(ss.Sequences)) {
			rows = append(rows, []string{
				string(model.KindSequence), "", strconv.FormatInt(ss.Sequences[otu], 10),
				fmt.Sprintf("%s otu %s", ss.ExternalID, otu),
			})
		}
	}

	for _, ts := range cs.TreeSets {
		add(ts.EntityVersion, "")

		for _, t := range ts.Trees {
			add(t, ts.ExternalID)
		}
	}

	for _, a := range cs.Attachments {
		add(a.EntityVersion, fmt.Sprintf("%s %s", a.OwnerKind, a.OwnerExternalID))
	}

	return rows
}

func compareCells(a, b changes.CellKey) int {
	if c := cmp.Compare(a.Row, b.Row); c != 0 {
		return c
	}

	return cmp.Compare(a.Column, b.Column)
}
