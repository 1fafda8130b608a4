package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/habedi/tokenguard/auth"
	"github.com/habedi/tokenguard/client"
	"github.com/habedi/tokenguard/pkg/clierr"
	"github.com/habedi/tokenguard/pkg/pool"
	"github.com/habedi/tokenguard/pkg/validation"
	"github.com/habedi/tokenguard/store"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type callOptions struct {
	method      string
	data        string
	count       int
	concurrency int
	watch       bool
}

// callCmd sends one or more requests to the API, sharing one executor so that a burst of
// rejected requests renews the session once.
func callCmd(cfg *config) *cobra.Command {
	opts := callOptions{}

	cmd := &cobra.Command{
		Use:   "call <path>",
		Short: "Call an API endpoint with the stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, cfg, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "JSON request body")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "Number of requests to send")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 1, "Number of requests in flight at once")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Print session refresh and store events while running")

	return cmd
}

func runCall(cmd *cobra.Command, cfg *config, path string, opts callOptions) error {
	if err := validation.ValidateCount(opts.count); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	if err := validation.ValidateConcurrency(opts.concurrency); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	if err := validation.ValidateBaseURL("--api-url", cfg.apiURL); err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}

	ctx := cmd.Context()
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	stderr := &lockedWriter{w: cmd.ErrOrStderr()}
	var execOpts []auth.Option
	if opts.watch {
		stopWatch := watchStore(st, stderr)
		defer stopWatch()
		execOpts = append(execOpts, auth.WithObserver(&printObserver{out: stderr}))
	}
	exec := auth.NewExecutor(st, newRefresher(cfg), execOpts...)
	c := client.New(cfg.apiURL, st, exec)

	var body []byte
	if opts.data != "" {
		body = []byte(opts.data)
	}
	method := strings.ToUpper(opts.method)

	if opts.count == 1 {
		resp, err := c.Do(ctx, method, path, body)
		if err != nil {
			return err
		}
		cmd.Println(strings.TrimSpace(string(resp)))
		return nil
	}

	bar := progressbar.NewOptions(opts.count,
		progressbar.OptionSetWriter(stderr),
		progressbar.OptionSetDescription("Calling "+path+"..."),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)

	requests := make([]int, opts.count)
	for i := range requests {
		requests[i] = i + 1
	}
	results := pool.Map(ctx, requests, opts.concurrency, func(ctx context.Context, n int) (int, error) {
		defer func() { _ = bar.Add(1) }()
		resp, err := c.Do(ctx, method, path, body)
		if err != nil {
			log.Debug().Err(err).Int("request", n).Msg("Request failed")
			return 0, err
		}
		return len(resp), nil
	})
	_ = bar.Finish()

	failed := renderResults(cmd.OutOrStdout(), results)
	renderStats(cmd.OutOrStdout(), exec.Stats())

	if failed > 0 {
		// Surface the first failure so the exit code reflects its kind.
		for _, r := range results {
			if r.Err != nil {
				return fmt.Errorf("%d of %d requests failed: %w", failed, len(results), r.Err)
			}
		}
	}
	return nil
}

func renderResults(w io.Writer, results []pool.Result[int]) int {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Outcome", "Detail"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	failed := 0
	for _, r := range results {
		row := []string{fmt.Sprintf("%d", r.Index+1), "ok", fmt.Sprintf("%d bytes", r.Value)}
		if r.Err != nil {
			failed++
			ce := clierr.FromError(r.Err)
			row[1], row[2] = string(ce.Type), ce.Message
		}
		table.Append(row)
	}
	table.Render()
	return failed
}

func renderStats(w io.Writer, stats auth.Stats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Refreshes", "Joined", "Failed", "Retries"})
	table.Append([]string{
		fmt.Sprintf("%d", stats.Started),
		fmt.Sprintf("%d", stats.Joined),
		fmt.Sprintf("%d", stats.Failed),
		fmt.Sprintf("%d", stats.Retries),
	})
	table.Render()
}

// watchStore prints credential store events to out until the returned function is called.
func watchStore(st *store.Store, out io.Writer) func() {
	events, unsubscribe := st.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			fmt.Fprintf(out, "[%s] credentials %s\n", ev.At.Format("15:04:05.000"), ev.Kind)
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

// printObserver reports refresh lifecycle events as they happen.
type printObserver struct {
	out io.Writer
}

func (p *printObserver) RefreshStarted() {
	fmt.Fprintln(p.out, "session expired, refreshing")
}

func (p *printObserver) RefreshJoined() {
	fmt.Fprintln(p.out, "waiting for the refresh in progress")
}

func (p *printObserver) RefreshSucceeded() {
	fmt.Fprintln(p.out, "session refreshed")
}

func (p *printObserver) RefreshFailed(reason string) {
	fmt.Fprintf(p.out, "session refresh failed: %s\n", reason)
}

// lockedWriter serializes writes to the shared error stream.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
