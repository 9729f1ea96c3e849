package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deusflow/tickerfeed/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score [text]",
	Short: "Score text against the keyword table",
	Long: `Score prints the keyword matches, points and trend for a piece of text.
The text is read from the arguments, or from stdin when none are given.`,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().String("keywords", os.Getenv("KEYWORDS_PATH"), "Keyword table YAML (defaults to the built-in table)")
	scoreCmd.Flags().Bool("page", false, "Apply the scraped-page thresholds instead of the feed ones")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("keywords")
	page, _ := cmd.Flags().GetBool("page")

	table, err := scoring.LoadTable(path)
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	if text == "" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text to score")
	}

	st := scoring.SourceFeed
	if page {
		st = scoring.SourcePage
	}
	v := table.Evaluate(text, st)

	out := cmd.OutOrStdout()
	for _, m := range v.Matches {
		fmt.Fprintf(out, "%-24s x%d  %3d pts  %s\n", m.Keyword, m.Count, m.Points, m.Category)
	}
	th := table.Threshold(st)
	fmt.Fprintf(out, "points: %d (min %d)  keywords: %d (min %d)  relevance: %d\n",
		v.TotalPoints, th.MinimumScore, v.UniqueKeywordCount, th.RequiredKeywords, v.Relevance())
	verdict := "rejected"
	if v.Admitted {
		verdict = "admitted"
	}
	fmt.Fprintf(out, "verdict: %s  trend: %s\n", verdict, table.Trend(text))
	return nil
}
