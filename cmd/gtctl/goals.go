package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/tracker"
)

func newGenerateCmd(opts *options) *cobra.Command {
	var guest bool
	cmd := &cobra.Command{
		Use:   "generate <thought>",
		Short: "Turn a free-text thought into goals",
		Long: `Send a thought to the goal generator and print the goals it returns.
Authenticated calls store the goals; --guest only previews them.

Examples:
  gtctl generate --guest "I want to run a 10k and stop ordering takeaway"
  GOALTRACK_TOKEN=... gtctl generate "learn to play piano"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"thoughtInput": strings.Join(args, " "),
				"isGuest":      guest,
			}
			var resp struct {
				Goals []*goal.Goal `json:"goals"`
			}
			if err := opts.client().post(cmd.Context(), "/functions/v1/generate-goal", req, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Goals)
		},
	}
	cmd.Flags().BoolVar(&guest, "guest", false, "preview without storing")
	return cmd
}

func newCompleteCmd(opts *options) *cobra.Command {
	var category, userID string
	cmd := &cobra.Command{
		Use:   "complete <goal-id>",
		Short: "Record today's progress on a goal, as a notification action does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := goal.ParseCategory(category); err != nil {
				return err
			}
			req := map[string]string{"goalId": args[0], "userId": userID, "category": category}
			var resp map[string]any
			if err := opts.client().post(cmd.Context(), "/functions/v1/complete-goal-action", req, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "goal category (habit, project, learn, save)")
	cmd.Flags().StringVar(&userID, "user", "", "user id, checked against the token")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

type toggleFlags struct {
	days    []string
	items   []string
	amounts []float64
	settle  time.Duration
}

func newToggleCmd(opts *options) *cobra.Command {
	f := &toggleFlags{}
	cmd := &cobra.Command{
		Use:   "toggle <goal-id>",
		Short: "Apply rapid optimistic toggles to a goal and print the settled value",
		Long: `Apply every --day, --item and --amount change in order without waiting
for the server, then wait for the writes to settle. This exercises the same
optimistic update path as the app.

Examples:
  gtctl toggle g-1 --day 2026-06-09 --day 2026-06-10
  gtctl toggle g-2 --item t1 --item t1 --item t2
  gtctl toggle g-3 --amount 25 --amount -5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := runToggle(cmd.Context(), opts.client(), args[0], f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), g)
		},
	}
	cmd.Flags().StringArrayVar(&f.days, "day", nil, "calendar day to toggle (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&f.items, "item", nil, "task or curriculum item id to toggle")
	cmd.Flags().Float64SliceVar(&f.amounts, "amount", nil, "savings adjustment")
	cmd.Flags().DurationVar(&f.settle, "settle", 10*time.Second, "how long to wait for writes")
	return cmd
}

func goalPath(id string) string {
	return "/api/v1/goals/" + url.PathEscape(id)
}

// runToggle drives a tracker.Controller against the API and returns the
// value left once every write resolved.
func runToggle(ctx context.Context, c *apiClient, goalID string, f *toggleFlags) (*goal.Goal, error) {
	if len(f.days)+len(f.items)+len(f.amounts) == 0 {
		return nil, errors.New("nothing to toggle: pass --day, --item or --amount")
	}

	var current goal.Goal
	if err := c.get(ctx, goalPath(goalID), &current); err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		writeErrs []error
	)
	changed := make(chan struct{}, 1)
	ctl, err := tracker.New(
		tracker.WriterFunc(func(ctx context.Context, g *goal.Goal) (*goal.Goal, error) {
			var res struct {
				Goal *goal.Goal `json:"goal"`
			}
			if err := c.put(ctx, goalPath(g.ID), g, &res); err != nil {
				return nil, err
			}
			return res.Goal, nil
		}),
		tracker.WithErrorHandler(func(_ string, err error) {
			mu.Lock()
			writeErrs = append(writeErrs, err)
			mu.Unlock()
		}),
		tracker.WithChangeHandler(func(string) {
			select {
			case changed <- struct{}{}:
			default:
			}
		}),
		tracker.WithWriteTimeout(c.hc.Timeout),
	)
	if err != nil {
		return nil, err
	}
	ctl.SetServer(&current)

	for _, d := range f.days {
		if _, err := ctl.ToggleDay(goalID, d); err != nil {
			return nil, fmt.Errorf("toggle day %s: %w", d, err)
		}
	}
	for _, id := range f.items {
		if _, err := ctl.ToggleItem(goalID, id); err != nil {
			return nil, fmt.Errorf("toggle item %s: %w", id, err)
		}
	}
	for _, a := range f.amounts {
		if _, err := ctl.AdjustSavings(goalID, a); err != nil {
			return nil, fmt.Errorf("adjust savings %v: %w", a, err)
		}
	}

	deadline := time.NewTimer(f.settle)
	defer deadline.Stop()
	for {
		st := ctl.Status(goalID)
		if st.InFlight == 0 && !st.Pending {
			break
		}
		select {
		case <-changed:
		case <-deadline.C:
			_ = ctl.Close(context.Background())
			return nil, fmt.Errorf("writes did not settle within %s", f.settle)
		case <-ctx.Done():
			_ = ctl.Close(context.Background())
			return nil, ctx.Err()
		}
	}

	g, _ := ctl.View(goalID)
	if err := ctl.Close(ctx); err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	if len(writeErrs) > 0 {
		return g, fmt.Errorf("some writes failed and were reverted: %w", errors.Join(writeErrs...))
	}
	return g, nil
}
