package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/phylomerge/internal/document"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show STUDY_ID",
		Short: "Print a stored study as a document",
		Long: `Print a stored study as a JSON document carrying every identifier and
version. The output can be edited and merged back with "merge".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			return withSession(cmd.Context(), cc, func(s *session) error {
				study, err := s.engine.Study(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				return document.Encode(cc.Out, study)
			})
		},
	}
}
