package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"contractaudit/internal/chain"
	"contractaudit/internal/logging"
	"contractaudit/internal/shutdown"
	"contractaudit/internal/verifier"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <code_id>",
		Short: "下载链上代码并核对内容哈希",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logging.Close(logger)

			gs := shutdown.NewGracefulShutdown(0, logger)
			gs.ListenSignals()
			defer gs.Shutdown()

			client := chain.NewClient(cfg.Chain, logger)
			res, err := verifier.New(cfg, logger, client).Inspect(gs.Context(), client, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("🔍 Code ID %s\n", res.CodeID)
			fmt.Printf("  Computed hash: %s (%s)\n", res.ComputedHash, res.Branch)
			fmt.Printf("  Chain hash:    %s %s\n", res.ChainHash, mark(res.MatchesChain()))
			if res.InRegistry {
				fmt.Printf("  Registry hash: %s %s (%s)\n", res.RegistryHash, mark(res.MatchesRegistry()), res.RegistryName)
			} else {
				fmt.Println("  Registry:      not registered ❌")
			}
			if res.HashOwner != "" && res.HashOwner != res.CodeID {
				fmt.Printf("  Content is registered under code ID %s\n", res.HashOwner)
			}

			if !res.MatchesChain() || !res.MatchesRegistry() {
				return errReported
			}
			return nil
		},
	}
}

func mark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}
