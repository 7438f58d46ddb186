package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lukeborglin-coder/mr-broker/internal/rag"
)

var (
	queryStructured bool
	queryTopK       int
	queryMaxSources int
)

var queryCmd = &cobra.Command{
	Use:   "query <tenant> <question>",
	Short: "Ask a question against a tenant's documents",
	Long: `Retrieves the tenant's most relevant passages, one per document and newest
first, and synthesizes a cited answer. With --structured the answer has a
headline, supporting findings and quotes.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVarP(&queryStructured, "structured", "s", false, "return a structured answer")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "index matches to consider (0 uses the server default)")
	queryCmd.Flags().IntVarP(&queryMaxSources, "max-sources", "n", 0, "sources to cite (0 uses the server default)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	req := rag.QueryRequest{
		TenantID:   args[0],
		UserQuery:  strings.Join(args[1:], " "),
		TopK:       queryTopK,
		MaxSources: queryMaxSources,
		Structured: queryStructured,
	}
	if err := req.Validate(); err != nil {
		return err
	}
	return withServices(cmd, func(ctx context.Context, svc *Services) error {
		resp, err := svc.Pipeline.Query(ctx, req)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd, resp)
		}
		printAnswer(cmd, resp)
		return nil
	})
}

func printAnswer(cmd *cobra.Command, resp *rag.QueryResponse) {
	w := cmd.OutOrStdout()
	if len(resp.References) == 0 {
		fmt.Fprintln(w, "No matching documents.")
		return
	}

	if s := resp.Structured; s != nil {
		if resp.Fallback {
			fmt.Fprintln(w, "(the model's answer could not be read)")
		}
		fmt.Fprintln(w, s.Headline.Paragraph)
		for _, b := range s.Headline.Bullets {
			fmt.Fprintf(w, "  • %s\n", b)
		}
		if len(s.Supporting) > 0 {
			fmt.Fprintln(w, "\nSupporting:")
			for _, b := range s.Supporting {
				fmt.Fprintf(w, "  • %s\n", b)
			}
		}
		if len(s.Quotes) > 0 {
			fmt.Fprintln(w, "\nQuotes:")
			for _, q := range s.Quotes {
				fmt.Fprintf(w, "  %q [%d]\n", q.Text, q.Ref)
			}
		}
	} else {
		fmt.Fprintln(w, resp.Answer)
	}

	fmt.Fprintln(w, "\nSources:")
	for _, ref := range resp.References {
		fmt.Fprintf(w, "  [%d] %s, page %d\n", ref.Ref, ref.FileName, ref.Page)
	}
}
