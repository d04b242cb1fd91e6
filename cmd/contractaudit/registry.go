package main

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"contractaudit/internal/logging"
	"contractaudit/internal/readme"
	"contractaudit/internal/registry"
	"contractaudit/internal/validation"
	"contractaudit/internal/verifier"
)

var (
	strict     bool
	readmePath string
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "校验注册表结构",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logging.Close(logger)

			if cmd.Flags().Changed("strict") {
				cfg.Registry.Strict = strict
			}

			_, result, err := verifier.New(cfg, logger, nil).LoadRegistry()
			if err != nil {
				var ve *verifier.ValidationError
				if stderrors.As(err, &ve) {
					printValidation(ve.Result)
					return errReported
				}
				return err
			}

			printValidation(result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "lint警告视为失败")
	return cmd
}

func newLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "检查注册表中的可疑条目",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logging.Close(logger)

			ds, err := registry.LoadFile(cfg.Registry.Path)
			if err != nil {
				return err
			}
			if ds.Records == nil {
				return fmt.Errorf("%s 的结构无法解析，请先运行 validate", cfg.Registry.Path)
			}

			warnings := validation.Lint(ds.Records)
			for _, w := range warnings {
				fmt.Printf("⚠️  %s\n", w)
			}
			if len(warnings) == 0 {
				fmt.Println("✅ No lint warnings")
			} else {
				fmt.Printf("\n%d warning(s)\n", len(warnings))
			}
			return nil
		},
	}
}

func newReadmeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readme",
		Short: "刷新README合约表中的测试网代码编号列",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logging.Close(logger)

			path := cfg.Registry.ReadmePath
			if readmePath != "" {
				path = readmePath
			}

			ds, err := registry.LoadFile(cfg.Registry.Path)
			if err != nil {
				return err
			}
			if ds.Records == nil {
				return fmt.Errorf("%s 的结构无法解析，请先运行 validate", cfg.Registry.Path)
			}

			result, err := readme.NewRewriter(logger).UpdateFile(path, ds.Records)
			if err != nil {
				return err
			}

			action := "Updated"
			if result.Inserted {
				action = "Added"
			}
			fmt.Printf("✅ %s %q column in %s (%d rows)\n", action, readme.TestnetColumn, path, result.Rows)
			for _, name := range result.Unknown {
				fmt.Printf("⚠️  %s is not in the registry\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&readmePath, "readme", "", "README文件路径，覆盖配置文件")
	return cmd
}

func printValidation(result *validation.ValidationResult) {
	if result == nil {
		return
	}
	for _, w := range result.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	if result.Valid {
		fmt.Printf("✅ Registry is valid (%d entries)\n", result.Entries)
		return
	}
	fmt.Println("❌ Registry validation failed:")
	for _, e := range result.Errors {
		fmt.Printf("  - %s\n", e.Error())
	}
}
