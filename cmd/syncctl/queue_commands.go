package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ricirt/plinko-sync/internal/config"
	"github.com/ricirt/plinko-sync/internal/domain"
	"github.com/ricirt/plinko-sync/internal/queue"
)

func newPeekCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "peek",
		Short: "List pending mutations without removing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(false, func(_ *config.Config, q *queue.Queue) error {
				items := q.PeekAll()
				if limit > 0 && len(items) > limit {
					items = items[:limit]
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Op", "Row", "Attempts", "Age"},
					buildPeekRows(items, time.Now()),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most n items (0 = all)")
	return cmd
}

func buildPeekRows(items []domain.QueueItem, now time.Time) [][]string {
	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = []string{
			it.ID,
			string(it.Op),
			it.RowKey(),
			strconv.Itoa(it.Attempts),
			it.Age(now).Truncate(time.Second).String(),
		}
	}
	return rows
}

type queueStats struct {
	Depth    int            `json:"depth"`
	ByTable  map[string]int `json:"by_table"`
	ByOp     map[string]int `json:"by_op"`
	Retrying int            `json:"retrying"`
	Oldest   string         `json:"oldest_age"`
}

func computeStats(items []domain.QueueItem, now time.Time) queueStats {
	st := queueStats{Depth: len(items), ByTable: map[string]int{}, ByOp: map[string]int{}}
	var oldest time.Duration
	for _, it := range items {
		st.ByTable[string(it.Table)]++
		st.ByOp[string(it.Op)]++
		if it.Attempts > 0 {
			st.Retrying++
		}
		if age := it.Age(now); age > oldest {
			oldest = age
		}
	}
	st.Oldest = oldest.Truncate(time.Second).String()
	return st
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the pending queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(false, func(cfg *config.Config, q *queue.Queue) error {
				st := computeStats(q.PeekAll(), time.Now())
				if ctx.jsonOutput() {
					return writeJSON(cmd, st)
				}

				rows := [][]string{
					{"backend", cfg.SlotBackend},
					{"key", cfg.QueueKey},
					{"depth", strconv.Itoa(st.Depth)},
					{"retrying", strconv.Itoa(st.Retrying)},
					{"oldest", st.Oldest},
				}
				rows = append(rows, countRows("table", st.ByTable)...)
				rows = append(rows, countRows("op", st.ByOp)...)
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func countRows(prefix string, counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{prefix + ":" + k, strconv.Itoa(counts[k])}
	}
	return rows
}

func newDrainCommand(ctx *commandContext) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Move every pending mutation into a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			return ctx.withQueue(true, func(_ *config.Config, q *queue.Queue) error {
				items := q.DequeueAll()
				raw, err := json.MarshalIndent(items, "", "  ")
				if err == nil {
					err = os.WriteFile(out, raw, 0o600)
				}
				if err != nil {
					if rerr := q.Requeue(items); rerr != nil {
						return fmt.Errorf("write %s: %w (requeue also failed: %v)", out, err, rerr)
					}
					return fmt.Errorf("write %s: %w", out, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Drained %d item(s) to %s\n", len(items), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination file")
	return cmd
}

func newReplaceCommand(ctx *commandContext) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Overwrite the pending queue with the items in a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" {
				return fmt.Errorf("--in is required")
			}
			items, err := readItems(in)
			if err != nil {
				return err
			}
			return ctx.withQueue(true, func(_ *config.Config, q *queue.Queue) error {
				if err := q.ReplaceAll(items); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queue replaced with %d item(s)\n", len(items))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "Source file (JSON array of queue items)")
	return cmd
}

func readItems(path string) ([]domain.QueueItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var items []domain.QueueItem
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("item %d: %w", i, domain.ErrDuplicateItem)
		}
		seen[it.ID] = struct{}{}
	}
	return items, nil
}
