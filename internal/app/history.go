package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
}

// History prints recent broadcast audit rows.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentBroadcasts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no broadcasts recorded")
		return nil
	}

	total, err := store.CountBroadcasts(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tKind\tBuy\tSell\tDelta\tSent\tSkipped\tFailed")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			rec.SentAt.UTC().Format(time.RFC3339),
			rec.Kind,
			rec.Buy.String(),
			rec.Sell.String(),
			rec.DeltaBuy.String(),
			rec.Sent,
			rec.Skipped,
			rec.Failed,
		)
	}

	writer.Flush()
	fmt.Fprintf(os.Stdout, "%d of %d broadcasts\n", len(records), total)
	return nil
}
