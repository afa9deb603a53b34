package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koopa0/aegis/internal/config"
	"github.com/koopa0/aegis/internal/security"
)

var (
	checkOp      string
	checkContext string
	checkStrict  bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a path, string, URL, or email ad hoc",
	Long: `Run a single input through the security boundary and report the verdict.
Useful for debugging policy configuration and for shell scripting; the exit
code is non-zero when the input is rejected.`,
}

var checkPathCmd = &cobra.Command{
	Use:   "path <path>",
	Short: "Validate a filesystem path against the configured policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		validator, err := security.NewPathValidator(cfg.PathPolicy())
		if err != nil {
			return fmt.Errorf("creating path validator: %w", err)
		}

		op, err := parseOperation(checkOp)
		if err != nil {
			return err
		}
		safePath, err := validator.Validate(args[0], op)
		if err != nil {
			return fmt.Errorf("rejected: %w", err)
		}
		fmt.Println(safePath)
		return nil
	},
}

var checkInputCmd = &cobra.Command{
	Use:   "input <string>",
	Short: "Sanitize a string for the given interpreter context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		san, err := security.NewSanitizer(cfg.SanitizerPolicy())
		if err != nil {
			return fmt.Errorf("creating sanitizer: %w", err)
		}

		out, err := san.SanitizeString(args[0], security.Context(checkContext), checkStrict)
		if err != nil {
			return fmt.Errorf("rejected: %w", err)
		}
		fmt.Println(out)
		return nil
	},
}

var checkURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Sanitize a URL, rejecting dangerous schemes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		san, err := security.NewSanitizer(security.SanitizerConfig{})
		if err != nil {
			return fmt.Errorf("creating sanitizer: %w", err)
		}
		out, err := san.SanitizeURL(args[0])
		if err != nil {
			return fmt.Errorf("rejected: %w", err)
		}
		fmt.Println(out)
		return nil
	},
}

var checkEmailCmd = &cobra.Command{
	Use:   "email <address>",
	Short: "Validate and normalize an email address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		san, err := security.NewSanitizer(security.SanitizerConfig{})
		if err != nil {
			return fmt.Errorf("creating sanitizer: %w", err)
		}
		out, err := san.ValidateEmail(args[0])
		if err != nil {
			return fmt.Errorf("rejected: %w", err)
		}
		fmt.Println(out)
		return nil
	},
}

func parseOperation(s string) (security.Operation, error) {
	switch s {
	case "read":
		return security.OpRead, nil
	case "write":
		return security.OpWrite, nil
	case "delete":
		return security.OpDelete, nil
	case "list":
		return security.OpList, nil
	default:
		return "", fmt.Errorf("unknown operation %q (want read, write, delete, or list)", s)
	}
}

func init() {
	checkPathCmd.Flags().StringVar(&checkOp, "op", "read",
		"operation to authorize: read, write, delete, or list")
	checkInputCmd.Flags().StringVar(&checkContext, "context", string(security.ContextGeneral),
		"interpreter context: sql, shell, path, html, or general")
	checkInputCmd.Flags().BoolVar(&checkStrict, "strict", false,
		"reject on any known injection pattern regardless of context")

	checkCmd.AddCommand(checkPathCmd, checkInputCmd, checkURLCmd, checkEmailCmd)
	rootCmd.AddCommand(checkCmd)
}
