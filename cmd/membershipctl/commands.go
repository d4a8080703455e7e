package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/membership-reconciler/internal/models"
	"github.com/magabrotheeeer/membership-reconciler/internal/services/entitlement"
)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUserID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid user id %q: %w", raw, err)
	}
	return id.String(), nil
}

func parseTime(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: want RFC3339", raw)
	}
	t = t.UTC()
	return &t, nil
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var nowFlag string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Downgrade lapsed subscriptions to free once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			if nowFlag != "" {
				t, err := parseTime(nowFlag)
				if err != nil {
					return err
				}
				now = *t
			}

			return ctx.withBackend(cmd.Context(), func(b backend) error {
				report := b.Sweep(cmd.Context(), now)
				if asJSON {
					if err := writeJSON(cmd, report); err != nil {
						return err
					}
				} else {
					rows := make([][]string, 0, len(report.Results))
					for _, r := range report.Results {
						rows = append(rows, []string{r.UserID, string(r.Status), string(r.FailedStore), r.Reason})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "now=%s candidates=%d applied=%d partial=%d refused=%d failed=%d\n",
						report.Now.Format(time.RFC3339), report.Candidates, report.Applied, report.Partial, report.Refused, report.Failed)
					if len(rows) > 0 {
						fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"User", "Status", "Failed store", "Reason"}, rows))
					}
				}
				if res := report.Result(); res.Status == entitlement.StatusFailed {
					return fmt.Errorf("sweep failed: %s", res.Reason)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&nowFlag, "now", "", "Sweep as of this RFC3339 time instead of the current time")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

type storeView struct {
	Membership *models.Membership `json:"membership,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type showView struct {
	UserID     string    `json:"user_id"`
	Identity   storeView `json:"identity"`
	Relational storeView `json:"relational"`
	Consistent bool      `json:"consistent"`
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's membership in both stores side by side",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			return ctx.withBackend(cmd.Context(), func(b backend) error {
				view := showView{UserID: userID}
				idUser, idErr := b.IdentityUser(cmd.Context(), userID)
				relUser, relErr := b.RelationalUser(cmd.Context(), userID)
				view.Identity = toStoreView(idUser, idErr)
				view.Relational = toStoreView(relUser, relErr)
				if idErr == nil && relErr == nil {
					view.Consistent = idUser.Membership.Normalize().Equal(relUser.Membership.Normalize())
				}

				if asJSON {
					return writeJSON(cmd, view)
				}
				rows := [][]string{
					storeRow("identity", view.Identity),
					storeRow("relational", view.Relational),
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Store", "Tier", "Expires at", "Error"}, rows))
				fmt.Fprintf(cmd.OutOrStdout(), "consistent: %t\n", view.Consistent)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func toStoreView(u *models.User, err error) storeView {
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return storeView{Error: "not found"}
		}
		return storeView{Error: err.Error()}
	}
	m := u.Membership.Normalize()
	return storeView{Membership: &m}
}

func storeRow(name string, v storeView) []string {
	if v.Membership == nil {
		return []string{name, "-", "-", v.Error}
	}
	return []string{name, formatTier(*v.Membership), formatExpiry(v.Membership.ExpiresAt), ""}
}

func newOverrideCommand(ctx *commandContext) *cobra.Command {
	var expiresFlag string
	var proof string

	cmd := &cobra.Command{
		Use:   "override <user-id> <tier>",
		Short: "Set a user's membership directly (free, subscription or lifetime)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			tier, err := models.ParseTier(args[1])
			if err != nil {
				return err
			}
			expiresAt, err := parseTime(expiresFlag)
			if err != nil {
				return err
			}

			return ctx.withBackend(cmd.Context(), func(b backend) error {
				res := b.Reconcile(cmd.Context(), entitlement.ManualOverride{
					UserID:    userID,
					Tier:      tier,
					ExpiresAt: expiresAt,
					Proof:     proof,
				})
				if err := writeJSON(cmd, res); err != nil {
					return err
				}
				if !res.OK() {
					if res.Reason != "" {
						return fmt.Errorf("override %s: %s", res.Status, res.Reason)
					}
					return fmt.Errorf("override %s", res.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&expiresFlag, "expires-at", "", "Subscription expiry (RFC3339); defaults to one month from now")
	cmd.Flags().StringVar(&proof, "proof", "", "Payment reference recorded with the override")
	return cmd
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent Stripe events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 || limit > 100 {
				return fmt.Errorf("limit must be between 1 and 100")
			}
			return ctx.withBackend(cmd.Context(), func(b backend) error {
				evs, err := b.RecentEvents(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, evs)
				}
				rows := make([][]string, 0, len(evs))
				for _, ev := range evs {
					rows = append(rows, []string{ev.ID, ev.Type, ev.Created.Format(time.RFC3339), strconv.FormatBool(ev.Livemode)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Type", "Created", "Live"}, rows))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
