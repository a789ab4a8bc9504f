package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
	"github.com/vsc-eco/vsc-farm/schemas"
	vscfarm "github.com/vsc-eco/vsc-farm/sdk/go"
)

type globalFlags struct {
	endpoint string
	user     string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "farmctl",
		Short:         "CLI for the VSC farm ledger",
		Long:          `Create and fund farms, stake, claim rewards and manage storage against a farm ledger`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.endpoint, "endpoint", envOr("FARM_ENDPOINT", "http://localhost:8082"), "Ledger HTTP endpoint")
	rootCmd.PersistentFlags().StringVar(&g.user, "user", os.Getenv("FARM_USER"), "Account acting as caller")

	rootCmd.AddCommand(
		newFarmsCmd(g),
		newStakeCmd(g),
		newFundCmd(g),
		newClaimCmd(g),
		newWithdrawCmd(g),
		newStakesCmd(g),
		newStorageCmd(g),
		newOwedCmd(g),
		newTransfersCmd(g),
	)
	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (g *globalFlags) client() *vscfarm.Client {
	return vscfarm.NewClient(vscfarm.Config{Endpoint: g.endpoint, Username: g.user})
}

func (g *globalFlags) requireUser() error {
	if g.user == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFarmID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid farm id %q", s)
	}
	return id, nil
}

func newFarmsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "farms",
		Short: "Inspect and create farms",
	}

	var from, limit uint64
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List farms",
		RunE: func(cmd *cobra.Command, args []string) error {
			farms, err := g.client().ListFarms(cmd.Context(), from, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, farms)
		},
	}
	listCmd.Flags().Uint64Var(&from, "from", 0, "First farm id")
	listCmd.Flags().Uint64Var(&limit, "limit", 50, "Maximum farms to return")

	getCmd := &cobra.Command{
		Use:   "get <farm-id>",
		Short: "Show a farm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFarmID(args[0])
			if err != nil {
				return err
			}
			view, err := g.client().GetFarm(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}

	cmd.AddCommand(listCmd, getCmd, newCreateFarmCmd(g))
	return cmd
}

func newCreateFarmCmd(g *globalFlags) *cobra.Command {
	var (
		file          string
		stakingToken  string
		rewardTokens  []string
		rewardPerSess []string
		interval      uint64
		lockup        uint64
		startAt       uint64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a farm paid for by --user",
		Long:  `Create a farm from flags, or from a JSON document with --file`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireUser(); err != nil {
				return err
			}

			var data []byte
			if file != "" {
				var err error
				if data, err = os.ReadFile(file); err != nil {
					return err
				}
			} else {
				var err error
				data, err = json.Marshal(map[string]interface{}{
					"staking_token":        stakingToken,
					"reward_tokens":        rewardTokens,
					"reward_per_session":   rewardPerSess,
					"session_interval_sec": interval,
					"lockup_period_sec":    lockup,
					"start_at_sec":         startAt,
				})
				if err != nil {
					return err
				}
			}

			if err := schemas.ValidateFarmInput(data); err != nil {
				return err
			}
			var in farm.FarmInput
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("invalid farm input: %w", err)
			}

			id, err := g.client().CreateFarm(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created farm %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON farm definition")
	cmd.Flags().StringVar(&stakingToken, "staking-token", "", "Token accepted for staking")
	cmd.Flags().StringSliceVar(&rewardTokens, "reward-token", nil, "Reward token (repeatable)")
	cmd.Flags().StringSliceVar(&rewardPerSess, "reward-per-session", nil, "Reward per session, one per reward token")
	cmd.Flags().Uint64Var(&interval, "interval", 0, "Session interval in seconds")
	cmd.Flags().Uint64Var(&lockup, "lockup", 0, "Lockup period in seconds")
	cmd.Flags().Uint64Var(&startAt, "start-at", 0, "Distribution start, unix seconds")
	return cmd
}

// transferCmd builds stake and fund, which both move tokens into a farm.
func transferCmd(g *globalFlags, use, short string, send func(c *vscfarm.Client, cmd *cobra.Command, token string, id uint64, amount farm.Amount) (*farm.Receipt, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <farm-id> <token> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireUser(); err != nil {
				return err
			}
			id, err := parseFarmID(args[0])
			if err != nil {
				return err
			}
			amount, err := farm.ParseAmount(args[2])
			if err != nil {
				return err
			}
			receipt, err := send(g.client(), cmd, args[1], id, amount)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}
}

func newStakeCmd(g *globalFlags) *cobra.Command {
	return transferCmd(g, "stake", "Stake tokens into a farm",
		func(c *vscfarm.Client, cmd *cobra.Command, token string, id uint64, amount farm.Amount) (*farm.Receipt, error) {
			return c.Stake(cmd.Context(), token, id, amount)
		})
}

func newFundCmd(g *globalFlags) *cobra.Command {
	return transferCmd(g, "fund", "Add reward tokens to a farm's pool",
		func(c *vscfarm.Client, cmd *cobra.Command, token string, id uint64, amount farm.Amount) (*farm.Receipt, error) {
			return c.Fund(cmd.Context(), token, id, amount)
		})
}

func newClaimCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <farm-id>",
		Short: "Claim accrued rewards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireUser(); err != nil {
				return err
			}
			id, err := parseFarmID(args[0])
			if err != nil {
				return err
			}
			receipt, err := g.client().Claim(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}
}

func newWithdrawCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <farm-id> <amount>",
		Short: "Withdraw staked tokens after the lockup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireUser(); err != nil {
				return err
			}
			id, err := parseFarmID(args[0])
			if err != nil {
				return err
			}
			amount, err := farm.ParseAmount(args[1])
			if err != nil {
				return err
			}
			receipt, err := g.client().Withdraw(cmd.Context(), id, amount)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}
}

func newStakesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stakes",
		Short: "Inspect stakes",
	}

	var from, limit uint64
	listCmd := &cobra.Command{
		Use:   "list <account>",
		Short: "List an account's stakes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stakes, err := g.client().ListStakes(cmd.Context(), args[0], from, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, stakes)
		},
	}
	listCmd.Flags().Uint64Var(&from, "from", 0, "Stakes to skip")
	listCmd.Flags().Uint64Var(&limit, "limit", 50, "Maximum stakes to return")

	getCmd := &cobra.Command{
		Use:   "get <account> <farm-id>",
		Short: "Show one stake",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFarmID(args[1])
			if err != nil {
				return err
			}
			view, err := g.client().GetStake(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}

	cmd.AddCommand(listCmd, getCmd)
	return cmd
}

func newStorageCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Manage prepaid storage",
	}

	depositCmd := &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Prepay storage for --user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireUser(); err != nil {
				return err
			}
			amount, err := farm.ParseAmount(args[0])
			if err != nil {
				return err
			}
			receipt, err := g.client().StorageDeposit(cmd.Context(), amount)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}

	withdrawCmd := &cobra.Command{
		Use:   "withdraw [amount]",
		Short: "Withdraw unlocked storage, everything available when amount is omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireUser(); err != nil {
				return err
			}
			var amount *farm.Amount
			if len(args) == 1 {
				a, err := farm.ParseAmount(args[0])
				if err != nil {
					return err
				}
				amount = &a
			}
			receipt, err := g.client().StorageWithdraw(cmd.Context(), amount)
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}

	balanceCmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account's storage balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bal, err := g.client().StorageBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, bal)
		},
	}

	cmd.AddCommand(depositCmd, withdrawCmd, balanceCmd)
	return cmd
}

func newOwedCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owed",
		Short: "Inspect and redeem failed transfers",
	}

	listCmd := &cobra.Command{
		Use:   "list <account>",
		Short: "List owed balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owed, err := g.client().Owed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, owed)
		},
	}

	redeemCmd := &cobra.Command{
		Use:   "redeem <token>",
		Short: "Send --user everything owed in token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.requireUser(); err != nil {
				return err
			}
			receipt, err := g.client().RedeemOwed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, receipt)
		},
	}

	cmd.AddCommand(listCmd, redeemCmd)
	return cmd
}

func newTransfersCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfers",
		Short: "Inspect and resolve outbound transfers",
	}

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List transfers waiting for an outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := g.client().PendingTransfers(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, pending)
		},
	}

	var failed bool
	resolveCmd := &cobra.Command{
		Use:   "resolve <transfer-id>",
		Short: "Record a transfer outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.client().ResolveTransfer(cmd.Context(), args[0], !failed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resolved transfer %s\n", args[0])
			return nil
		},
	}
	resolveCmd.Flags().BoolVar(&failed, "failed", false, "Record the transfer as failed")

	cmd.AddCommand(pendingCmd, resolveCmd)
	return cmd
}
