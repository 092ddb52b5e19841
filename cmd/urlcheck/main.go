// Command urlcheck checks URLs from the command line or a file and prints
// a verdict for each.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/scheott/safe/check"
	"github.com/scheott/safe/config"
	"github.com/scheott/safe/fetcher"
	"github.com/scheott/safe/reputation"
	"github.com/scheott/safe/tier1"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	file := flag.String("file", "", "File with one URL per line")
	dataDir := flag.String("data", "", "Reputation data directory (default $DATA_DIR or ./data)")
	concurrency := flag.Int("concurrency", 4, "Number of URLs checked at once")
	asJSON := flag.Bool("json", false, "Print results as JSON")
	offline := flag.Bool("offline", false, "Skip fetching pages, judge domains only")
	verbose := flag.Bool("v", false, "Log pipeline details to stderr")
	flag.Parse()

	cfg, cfgErr := config.Load()
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if cfgErr != nil {
		logger.WithError(cfgErr).Warn("Some settings were invalid, using defaults")
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	urls, err := readURLs(*file, flag.Args())
	if err != nil {
		color.Red("[-] %v", err)
		os.Exit(1)
	}
	if len(urls) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := reputation.Load(ctx, reputation.DirSource{Dir: cfg.DataDir}, logger)
	if err != nil {
		color.Red("[-] %v", err)
		os.Exit(1)
	}

	var f check.Fetcher
	if !*offline {
		f = fetcher.New(cfg.Fetch, logger)
	}
	var reviewer tier1.Reviewer
	if cfg.Tier1Enabled() {
		reviewer = tier1.NewGeminiReviewer(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.Tier1Timeout, logger)
	}
	svc := check.NewService(store, f, reviewer, check.Config{Tier1Timeout: cfg.Tier1Timeout}, logger)

	results := run(ctx, svc, urls, *concurrency, !*asJSON && len(urls) > 1)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			color.Red("[-] %v", err)
			os.Exit(1)
		}
		return
	}
	for _, r := range results {
		printResult(os.Stdout, r)
	}
}

func readURLs(path string, args []string) ([]string, error) {
	urls := append([]string{}, args...)
	if path == "" {
		return urls, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read URL file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

func run(ctx context.Context, svc *check.Service, urls []string, concurrency int, showProgress bool) []check.Response {
	if concurrency <= 0 {
		concurrency = 1
	}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(urls),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("checking"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	results := make([]check.Response, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = svc.Check(ctx, u)
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if bar != nil {
		bar.Finish()
	}
	return results
}

func printResult(w io.Writer, r check.Response) {
	label := fmt.Sprintf("%-7s", strings.ToUpper(string(r.Verdict)))
	switch r.Verdict {
	case reputation.VerdictOK:
		label = color.GreenString(label)
	case reputation.VerdictWarning:
		label = color.YellowString(label)
	default:
		label = color.RedString(label)
	}

	target := r.NormalizedURL
	if target == "" {
		target = r.URL
	}
	fmt.Fprintf(w, "%s %3d  %s\n", label, r.Score, target)
	fmt.Fprintf(w, "        %s\n", r.Summary)
	if len(r.Reasons) > 0 {
		fmt.Fprintf(w, "        %s\n", color.HiBlackString(strings.Join(r.Reasons, ", ")))
	}
	if r.Tier1 != nil {
		if r.Tier1.Review != nil {
			fmt.Fprintf(w, "        tier-1: %s, %s\n", r.Tier1.Review.Verdict, r.Tier1.Review.Explanation)
		} else {
			fmt.Fprintf(w, "        tier-1 unavailable: %s\n", r.Tier1.Error)
		}
	}
}
