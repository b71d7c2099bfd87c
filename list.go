package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/phylomerge/internal/store"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored studies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return withSession(cmd.Context(), cc, func(s *session) error {
				studies, err := s.engine.Studies(cmd.Context())
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					if studies == nil {
						studies = []store.StudySummary{}
					}

					return printJSON(cc.Out, studies)
				}

				printStudies(cc.Out, studies)

				return nil
			})
		},
	}
}

func printStudies(w io.Writer, studies []store.StudySummary) {
	if len(studies) == 0 {
		fmt.Fprintln(w, "No studies stored.")
		return
	}

	rows := make([][]string, len(studies))
	for i, s := range studies {
		rows[i] = []string{
			s.ExternalID,
			s.Label,
			strconv.FormatInt(s.Version, 10),
			strconv.Itoa(s.OtuSets),
			strconv.Itoa(s.Otus),
			strconv.Itoa(s.Matrices),
		}
	}

	printTable(w, []string{"ID", "LABEL", "VERSION", "OTU SETS", "OTUS", "MATRICES"}, rows)
}
