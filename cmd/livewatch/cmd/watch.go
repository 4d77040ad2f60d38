package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/livesync/core/query"
)

var errMissingTable = errors.New("--table is required")

var watchFlags struct {
	table     string
	sel       string
	filters   []string
	order     string
	limit     int
	offset    int
	transport string
	fetcher   string
	once      bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Mount a query and print each state change",
	Example: `  livewatch watch --table shipments --filter status=eq.open --order eta.desc --limit 20
  livewatch watch --table shipments --transport pgnotify --fetcher postgres --once`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := buildKey(watchFlags.table, watchFlags.sel, watchFlags.filters, watchFlags.order, watchFlags.limit, watchFlags.offset)
		if err != nil {
			return err
		}
		return runWatch(cmd.Context(), cmd.OutOrStdout(), key)
	},
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchFlags.table, "table", "", "Table to query (required)")
	f.StringVar(&watchFlags.sel, "select", "*", "Comma separated columns")
	f.StringArrayVar(&watchFlags.filters, "filter", nil, "Filter as column=op.value, repeatable")
	f.StringVar(&watchFlags.order, "order", "", "Sort as column.asc or column.desc, comma separated")
	f.IntVar(&watchFlags.limit, "limit", 0, "Maximum number of rows")
	f.IntVar(&watchFlags.offset, "offset", 0, "Rows to skip")
	f.StringVar(&watchFlags.transport, "transport", "websocket", "Change transport: websocket, pgnotify, redis or memory")
	f.StringVar(&watchFlags.fetcher, "fetcher", "postgrest", "Data fetcher: postgrest or postgres")
	f.BoolVar(&watchFlags.once, "once", false, "Exit after the first settled state")
}

func runWatch(ctx context.Context, out io.Writer, key query.Key) error {
	log := newLogger()
	a, err := setup(ctx, watchFlags.transport, watchFlags.fetcher, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.provider.Run(ctx) })

	if err := a.client.Start(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	p := &printer{out: out}
	settled := make(chan struct{})
	var once sync.Once
	view := a.client.Watch(key, func(e query.Entry) {
		p.print(e)
		if e.Status == query.StatusFresh || e.Status == query.StatusError {
			once.Do(func() { close(settled) })
		}
	})
	defer view.Close()

	g.Go(func() error {
		if !watchFlags.once {
			<-ctx.Done()
			return nil
		}
		select {
		case <-ctx.Done():
		case <-settled:
			if err := view.Entry().Err; err != nil {
				cancel()
				return err
			}
		}
		cancel()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildKey turns the watch flags into a query key.
func buildKey(table, sel string, filters []string, order string, limit, offset int) (query.Key, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return query.Key{}, errMissingTable
	}

	opts := []query.KeyOption{query.Limit(limit), query.Offset(offset)}
	if sel != "" {
		opts = append(opts, query.Columns(strings.Split(sel, ",")...))
	}
	for _, raw := range filters {
		f, err := query.ParseFilter(raw)
		if err != nil {
			return query.Key{}, err
		}
		opts = append(opts, query.Filters(f))
	}
	for _, part := range strings.Split(order, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		col, dir, _ := strings.Cut(part, ".")
		switch dir {
		case "", "asc":
			opts = append(opts, query.OrderBy(col, false))
		case "desc":
			opts = append(opts, query.OrderBy(col, true))
		default:
			return query.Key{}, fmt.Errorf("invalid order %q: direction must be asc or desc", part)
		}
	}
	return query.NewKey(table, opts...), nil
}

// printer writes one line per entry state and the rows once they are fresh.
type printer struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func (p *printer) print(e query.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now
	if p.now != nil {
		now = p.now
	}

	line := fmt.Sprintf("%s %-7s rows=%d", now().Format(time.TimeOnly), e.Status, len(e.Rows))
	if e.Err != nil {
		line += " error=" + e.Err.Error()
	}
	fmt.Fprintln(p.out, line)

	if e.Status != query.StatusFresh {
		return
	}
	body, err := json.MarshalIndent(e.Rows, "", "  ")
	if err != nil {
		fmt.Fprintln(p.out, "  (rows not printable:", err.Error()+")")
		return
	}
	fmt.Fprintln(p.out, string(body))
}
