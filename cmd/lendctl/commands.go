package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"isolend/core/genesis"
	"isolend/rpc"
	"isolend/rpc/client"
)

func parseMarket(raw string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if len(trimmed) != 2*common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid market id %q", raw)
	}
	return common.HexToHash(trimmed), nil
}

func newTokenCmd() *cobra.Command {
	var secret, issuer string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <caller>",
		Short: "Sign a bearer token for caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := genesis.ParseAccount(args[0])
			if err != nil {
				return err
			}
			if secret == "" {
				secret = os.Getenv("LENDINGD_JWT_SECRET")
			}
			tok, err := rpc.IssueToken(secret, issuer, caller, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (defaults to LENDINGD_JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", "lendingd", "token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account <address>",
		Short: "Show an account in hex and bech32 form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := genesis.ParseAccount(args[0])
			if err != nil {
				return err
			}
			b32, err := genesis.FormatBech32Account(addr)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"hex": addr.Hex(), "bech32": b32})
		},
	}
}

func newProtocolCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "protocol",
		Short: "Show the protocol registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := opts.client().Protocol(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newMarketCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "market [id]",
		Aliases: []string{"markets"},
		Short:   "List markets or show one",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			if len(args) == 0 {
				views, err := c.Markets(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), views)
			}
			id, err := parseMarket(args[0])
			if err != nil {
				return err
			}
			view, err := c.Market(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newPositionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "position <market> <owner>",
		Short: "Show a position with its health",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMarket(args[0])
			if err != nil {
				return err
			}
			owner, err := genesis.ParseAccount(args[1])
			if err != nil {
				return err
			}
			view, err := opts.client().Position(cmd.Context(), id, owner)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newAuthorizationCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "authorization <authorizer> <authorized>",
		Short: "Show a delegation grant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			authorizer, err := genesis.ParseAccount(args[0])
			if err != nil {
				return err
			}
			authorized, err := genesis.ParseAccount(args[1])
			if err != nil {
				return err
			}
			view, err := opts.client().Authorization(cmd.Context(), authorizer, authorized)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newBalanceCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <mint> <owner>",
		Short: "Show a token balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := genesis.ParseAccount(args[0])
			if err != nil {
				return err
			}
			owner, err := genesis.ParseAccount(args[1])
			if err != nil {
				return err
			}
			view, err := opts.client().Balance(cmd.Context(), mint, owner)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newEventsCmd(opts *globalOptions) *cobra.Command {
	var q client.EventQuery
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List archived events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := opts.client().Events(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&q.Market, "market", "", "market id")
	cmd.Flags().StringVar(&q.Type, "type", "", "event type, e.g. lending.supply")
	cmd.Flags().StringVar(&q.Batch, "batch", "", "batch id")
	cmd.Flags().UintVar(&q.After, "after", 0, "return rows after this id")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum rows")
	return cmd
}

// readOps accepts either a bare op array or a {"ops": [...]} document.
func readOps(raw []byte) ([]rpc.Op, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var ops []rpc.Op
		if err := json.Unmarshal([]byte(trimmed), &ops); err != nil {
			return nil, err
		}
		return ops, nil
	}
	var req rpc.BatchRequest
	if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
		return nil, err
	}
	return req.Ops, nil
}

func newBatchCmd(opts *globalOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Submit a JSON batch of operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var raw []byte
			var err error
			if file == "" || file == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return err
			}
			ops, err := readOps(raw)
			if err != nil {
				return fmt.Errorf("decode batch: %w", err)
			}
			resp, err := opts.client().Batch(cmd.Context(), ops...)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "batch file, - for stdin")
	return cmd
}

// newOpCmds builds one shortcut command per position operation.
func newOpCmds(opts *globalOptions) []*cobra.Command {
	specs := []struct {
		name   string
		short  string
		amount bool
	}{
		{"supply", "Supply loan assets", false},
		{"withdraw", "Withdraw supplied assets", false},
		{"borrow", "Borrow loan assets", false},
		{"repay", "Repay borrowed assets", false},
		{"supply_collateral", "Deposit collateral", true},
		{"withdraw_collateral", "Withdraw collateral", true},
	}
	cmds := make([]*cobra.Command, 0, len(specs))
	for _, spec := range specs {
		spec := spec
		var op rpc.Op
		cmd := &cobra.Command{
			Use:   strings.ReplaceAll(spec.name, "_", "-") + " <market>",
			Short: spec.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := parseMarket(args[0]); err != nil {
					return err
				}
				req := op
				req.Op = spec.name
				req.Market = args[0]
				resp, err := opts.client().Batch(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			},
		}
		if spec.amount {
			cmd.Flags().StringVar(&op.Amount, "amount", "", "collateral amount")
		} else {
			cmd.Flags().StringVar(&op.Assets, "assets", "", "amount in assets")
			cmd.Flags().StringVar(&op.Shares, "shares", "", "amount in shares")
			cmd.Flags().StringVar(&op.Bound, "bound", "", "slippage bound")
		}
		cmd.Flags().StringVar(&op.OnBehalf, "on-behalf", "", "position owner (defaults to caller)")
		cmd.Flags().StringVar(&op.Receiver, "receiver", "", "receiver of withdrawn or borrowed assets")
		cmds = append(cmds, cmd)
	}
	return cmds
}
