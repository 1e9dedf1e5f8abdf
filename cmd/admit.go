package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
)

// newAdmitCmd runs URLs through admission and prints one line per outcome.
func newAdmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admit [url ...|-]",
		Short: "Admits URLs into the crawl queue",
		Long: `Runs each URL through admission using the configured worker pool and
prints "<outcome>\t<reason>\t<url>" per URL, followed by a summary. Pass "-"
to read newline separated URLs from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			urls := args
			if len(args) == 1 && args[0] == "-" {
				urls, err = readURLs(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			var mu sync.Mutex
			counters, err := appInstance.AdmitAll(cmd.Context(), urls, func(d crawler.Discovery, o crawler.Outcome) {
				mu.Lock()
				defer mu.Unlock()
				_, _ = fmt.Fprintln(out, formatOutcome(d, o))
			})
			if err != nil {
				return fmt.Errorf("admit: %w", err)
			}
			_, err = fmt.Fprintf(out, "added=%d duplicate=%d denied=%d error=%d\n",
				counters.Added, counters.Duplicate, counters.Denied, counters.Errored)
			return err
		},
	}
}

// readURLs returns the non-blank, non-comment lines of r.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	return urls, nil
}

func formatOutcome(d crawler.Discovery, o crawler.Outcome) string {
	reason := string(o.Reason)
	if reason == "" {
		reason = "-"
	}
	target := d.URL
	if o.Candidate.Host != "" {
		target = o.Candidate.Key()
	}
	return fmt.Sprintf("%s\t%s\t%s", o.Kind, reason, target)
}
