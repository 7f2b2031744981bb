package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"isolend/rpc/client"
)

const (
	rpcEnv   = "LENDCTL_RPC"
	tokenEnv = "LENDCTL_TOKEN"
)

type globalOptions struct {
	endpoint string
	token    string
}

func (o *globalOptions) client() *client.Client {
	return client.New(o.endpoint, o.token)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "lendctl",
		Short:         "Operate an isolated-market lending node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.endpoint, "rpc", envOr(rpcEnv, "http://127.0.0.1:8080"), "lendingd base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv(tokenEnv), "bearer token for batch submission")

	root.AddCommand(
		newTokenCmd(),
		newAccountCmd(),
		newProtocolCmd(opts),
		newMarketCmd(opts),
		newPositionCmd(opts),
		newAuthorizationCmd(opts),
		newBalanceCmd(opts),
		newEventsCmd(opts),
		newBatchCmd(opts),
	)
	for _, cmd := range newOpCmds(opts) {
		root.AddCommand(cmd)
	}
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
