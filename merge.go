package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/phylomerge/internal/document"
	"github.com/tonimelisma/phylomerge/internal/engine"
	"github.com/tonimelisma/phylomerge/internal/merge"
	"github.com/tonimelisma/phylomerge/internal/model"
)

// stdinPath names standard input as a document source.
const stdinPath = "-"

func newMergeCmd() *cobra.Command {
	var otuSet bool

	cmd := &cobra.Command{
		Use:   "merge FILE...",
		Short: "Merge study documents into the store",
		Long: `Merge one or more JSON study documents into the store.

A document without an id creates a new study; a document with the id of a
stored study is merged into it. Several documents are merged concurrently
across distinct studies and in the given order within one study. Use "-" to
read a single document from standard input.

With --otu-set each document is a single OTU set, merged into the stored OTU
set with the same id wherever it lives.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			return withSession(cmd.Context(), cc, func(s *session) error {
				if otuSet {
					return mergeOtuSets(cmd.Context(), cc, s.engine, args)
				}

				return mergeStudies(cmd.Context(), cc, s.engine, args)
			})
		},
	}

	cmd.Flags().BoolVar(&otuSet, "otu-set", false, "documents are single OTU sets")

	return cmd
}

// readDocument reads path (or stdin for "-") and enforces the configured
// document size limit. A limit of 0 disables the check.
func readDocument(path string, limit int64) ([]byte, error) {
	var r io.Reader

	if path == stdinPath {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening document: %w", err)
		}
		defer f.Close()

		r = f
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", path, err)
	}

	if limit > 0 && int64(len(data)) > limit {
		return nil, model.Validationf("", "", "document %s exceeds max_document_size of %d bytes", path, limit)
	}

	return data, nil
}

func loadStudyDocument(path string, limit int64) (*model.Study, error) {
	data, err := readDocument(path, limit)
	if err != nil {
		return nil, err
	}

	study, err := document.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return study, nil
}

func mergeStudies(ctx context.Context, cc *CLIContext, eng *engine.Engine, paths []string) error {
	limit := cc.Cfg.MaxDocumentBytes()

	docs := make([]*model.Study, len(paths))
	for i, path := range paths {
		study, err := loadStudyDocument(path, limit)
		if err != nil {
			return err
		}

		docs[i] = study
	}

	if len(docs) == 1 {
		rep, err := eng.ReconcileStudy(ctx, docs[0])
		if err != nil {
			return err
		}

		return emitReports(cc, []batchOutcome{{source: paths[0], report: rep}})
	}

	results, err := eng.ReconcileAll(ctx, docs)
	if err != nil {
		return err
	}

	outcomes := make([]batchOutcome, len(results))
	for i, r := range results {
		outcomes[i] = batchOutcome{source: paths[r.Index], report: r.Report, err: r.Err}
	}

	return emitReports(cc, outcomes)
}

func mergeOtuSets(ctx context.Context, cc *CLIContext, eng *engine.Engine, paths []string) error {
	limit := cc.Cfg.MaxDocumentBytes()
	outcomes := make([]batchOutcome, 0, len(paths))

	for _, path := range paths {
		data, err := readDocument(path, limit)
		if err != nil {
			return err
		}

		set, err := document.DecodeOtuSet(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		rep, err := eng.ReconcileOtuSet(ctx, set)
		if err != nil {
			return err
		}

		outcomes = append(outcomes, batchOutcome{source: path, report: rep})
	}

	return emitReports(cc, outcomes)
}

// batchOutcome is the result of merging one document.
type batchOutcome struct {
	source string
	report *merge.Report
	err    error
}

// emitReports prints every outcome and returns the first rejection, if any,
// wrapped with a count so the exit status reflects it.
func emitReports(cc *CLIContext, outcomes []batchOutcome) error {
	var (
		first    error
		rejected int
	)

	for _, o := range outcomes {
		if o.err != nil {
			rejected++

			if first == nil {
				first = fmt.Errorf("%s: %w", o.source, o.err)
			}
		}
	}

	if cc.Flags.JSON {
		out := make([]reportJSON, len(outcomes))
		for i, o := range outcomes {
			out[i] = newReportJSON(o.source, o.report, o.err)
		}

		if err := printJSON(cc.Out, out); err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			if o.err != nil {
				cc.Statusf("%s: rejected: %v\n", o.source, o.err)
				continue
			}

			printReport(cc.Out, o.report)
		}
	}

	if first != nil {
		return fmt.Errorf("%d of %d documents rejected: %w", rejected, len(outcomes), first)
	}

	return nil
}
