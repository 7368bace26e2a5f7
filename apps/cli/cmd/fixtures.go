package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/abdul-hamid-achik/httpvcr/packages/fixture"
	"github.com/abdul-hamid-achik/httpvcr/packages/journal"
	"github.com/abdul-hamid-achik/httpvcr/packages/match"
	"github.com/abdul-hamid-achik/httpvcr/packages/report"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var matchCmd = &cobra.Command{
	Use:   "match <file.missing>",
	Short: "Find the recorded request closest to a missing one",
	Long: `Compare a .missing request descriptor with the .request files recorded
next to it and print the closest one for the same host.

Requests are only kept as .request files when the debug option is on.

Examples:
  httpvcr match fixtures/en-US/3f2a....missing`,
	Args: cobra.ExactArgs(1),
	RunE: matchCommand,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [directory]",
	Short: "Validate fixture metadata",
	Long: `Validate every fixture's metadata against its JSON schema and check that
response fixtures have a body.

Examples:
  httpvcr verify
  httpvcr verify ./fixtures`,
	Args: cobra.MaximumNArgs(1),
	RunE: verifyCommand,
}

var statsCmd = &cobra.Command{
	Use:   "stats [directory]",
	Short: "Summarize a fixture tree",
	Long: `Count responses, timeouts and errors and print the distribution of the
recorded latencies.

Examples:
  httpvcr stats
  httpvcr stats ./fixtures --no-color`,
	Args: cobra.MaximumNArgs(1),
	RunE: statsCommand,
}

var (
	pruneOlderThanFlag time.Duration
	pruneDryRunFlag    bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune [directory]",
	Short: "Remove fixtures that were not used recently",
	Long: `Remove fixtures whose metadata has not been touched within the given
duration. Hits touch the metadata unless touchHits is off.

Examples:
  httpvcr prune --older-than 720h --dry-run
  httpvcr prune --older-than 168h ./fixtures`,
	Args: cobra.MaximumNArgs(1),
	RunE: pruneCommand,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <fixture> [gjson-path]",
	Short: "Print fixture metadata",
	Long: `Print a fixture's metadata, or the result of a gjson query over it.

Examples:
  httpvcr inspect fixtures/en-US/3f2a...
  httpvcr inspect fixtures/en-US/3f2a... statusCode
  httpvcr inspect fixtures/en-US/3f2a....headers 'headers.Content-Type.0'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: inspectCommand,
}

var journalDBFlag string

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show fixture usage recorded by the proxy",
	Long: `Print per-fixture hits, misses and recordings from a journal written by
"httpvcr proxy --journal".

Examples:
  httpvcr journal --db usage.db`,
	Args: cobra.NoArgs,
	RunE: journalCommand,
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThanFlag, "older-than", 0, "Remove fixtures not touched within this duration (required)")
	pruneCmd.Flags().BoolVar(&pruneDryRunFlag, "dry-run", false, "List fixtures without removing them")
	_ = pruneCmd.MarkFlagRequired("older-than")

	journalCmd.Flags().StringVar(&journalDBFlag, "db", "", "Journal database file (required)")
	_ = journalCmd.MarkFlagRequired("db")
}

func matchCommand(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings()
	if err != nil {
		return err
	}
	best, found, err := match.NewMatcher(settings).BestMatch(args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no recorded request for the same host next to %s", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), best)
	return nil
}

func verifyCommand(cmd *cobra.Command, args []string) error {
	root, err := fixtureRoot(args)
	if err != nil {
		return err
	}
	rep, err := fixture.Verify(root)
	if err != nil {
		return err
	}

	red := color.New(color.FgRed)
	for _, p := range rep.Problems {
		red.Fprintf(cmd.OutOrStderr(), "Invalid: %s\n", p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Checked %d fixtures, %d invalid\n", rep.Checked, len(rep.Problems))

	if !rep.OK() {
		return fmt.Errorf("verification failed")
	}
	return nil
}

func statsCommand(cmd *cobra.Command, args []string) error {
	root, err := fixtureRoot(args)
	if err != nil {
		return err
	}
	stats, err := report.Collect(root)
	if err != nil {
		return err
	}
	report.NewReporter(
		report.WithWriter(cmd.OutOrStdout()),
		report.WithNoColor(color.NoColor),
	).Print(root, stats)
	return nil
}

func pruneCommand(cmd *cobra.Command, args []string) error {
	if pruneOlderThanFlag <= 0 {
		return usageError(fmt.Errorf("--older-than must be positive"))
	}
	root, err := fixtureRoot(args)
	if err != nil {
		return err
	}

	pruned, err := fixture.Prune(root, time.Now().Add(-pruneOlderThanFlag), pruneDryRunFlag)
	verb := "Removed"
	if pruneDryRunFlag {
		verb = "Would remove"
	}
	for _, p := range pruned {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", verb, p)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d fixtures\n", verb, len(pruned))
	return nil
}

func inspectCommand(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !strings.HasSuffix(path, fixture.HeadersExt) {
		path += fixture.HeadersExt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%w: %s", fixture.ErrMalformedFixture, path)
	}

	if len(args) == 1 {
		fmt.Fprintln(cmd.OutOrStdout(), gjson.GetBytes(data, "@pretty").String())
		return nil
	}
	result := gjson.GetBytes(data, args[1])
	if !result.Exists() {
		return fmt.Errorf("no value at %q in %s", args[1], path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.String())
	return nil
}

func journalCommand(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(journalDBFlag); err != nil {
		return err
	}
	j, err := journal.Open(journalDBFlag)
	if err != nil {
		return err
	}
	defer j.Close()

	usage, err := j.Summary(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIXTURE\tHITS\tMISSES\tRECORDS\tERRORS\tLAST USED")
	for _, u := range usage {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			u.Fixture, u.Hits, u.Misses, u.Records, u.Errors, u.LastUsed.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
