package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"timetabler/internal/auth"
	"timetabler/internal/taxonomy"
	"timetabler/internal/timetable"
	"timetabler/pkg/models"
)

const defaultBaseURL = "http://localhost:8080"

var (
	serverURL string
	tokenPath string
	timeout   time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "timetabler",
		Short:        "Operate a timetabler API server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("TIMETABLER_SERVER", defaultBaseURL), "API base URL")
	root.PersistentFlags().StringVar(&tokenPath, "token-file", defaultTokenPath(), "where the bearer token is kept")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "HTTP request timeout")

	root.AddCommand(
		newUploadCmd(),
		newGetCmd(),
		newListCmd(),
		newWatchCmd(),
		newTaxonomyCmd(),
		newTokenCmd(),
		newHashPasswordCmd(),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func httpClient() *http.Client {
	return &http.Client{Timeout: timeout}
}

func endpoint(path string) string {
	return strings.TrimRight(serverURL, "/") + path
}

func newUploadCmd() *cobra.Command {
	var grade, level string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Extract a timetable from an image or Excel file",
		Long: `Upload a timetable image or .xlsx workbook and print the normalized result.

Examples:
  timetabler upload week.png --grade 小学1年
  timetabler upload schedule.xlsx --level junior_high --grade 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(tokenPath)
			if err != nil {
				return err
			}
			var tt models.Timetable
			err = uploadFile(cmd.Context(), httpClient(), endpoint("/upload"), token, args[0],
				map[string]string{"grade": grade, "level": level}, &tt)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tt)
		},
	}
	cmd.Flags().StringVar(&grade, "grade", "", "grade label (小学1年) or number when --level is set")
	cmd.Flags().StringVar(&level, "level", "", "school level: elementary, junior_high or high_school")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a stored timetable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc models.Document
			if err := doJSON(cmd.Context(), httpClient(), http.MethodGet, endpoint("/timetable/"+url.PathEscape(args[0])), "", nil, &doc); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored timetables in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Timetables []models.TimetableSummary `json:"timetables"`
			}
			if err := doJSON(cmd.Context(), httpClient(), http.MethodGet, endpoint("/timetables"), "", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range resp.Timetables {
				fmt.Fprintf(out, "%s\t%s\n", s.ID, s.Title)
			}
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	var tcpAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream timetable.created events",
		Long: `Stream feed events until interrupted. By default the websocket feed of
--server is used; --tcp reads the newline-delimited TCP feed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if tcpAddr != "" {
				return watchTCP(ctx, cmd.OutOrStdout(), tcpAddr)
			}
			wsURL, err := websocketURL(serverURL, "/ws")
			if err != nil {
				return err
			}
			return watchWebSocket(ctx, cmd.OutOrStdout(), wsURL)
		},
	}
	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "TCP feed address, e.g. localhost:9090")
	return cmd
}

func newTaxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Inspect subject taxonomies",
	}

	var variant string
	check := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a taxonomy file, or the built-in data without one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := taxonomy.Options{Variant: variant, Strict: true}
			if len(args) == 1 {
				opts.Path = args[0]
			}
			t, err := taxonomy.NewStore(opts, nil).Load()
			if err != nil {
				var amb *taxonomy.AmbiguityError
				if errors.As(err, &amb) {
					return fmt.Errorf("ambiguous alias: %w", err)
				}
				return err
			}
			return printTaxonomy(cmd, t)
		},
	}
	check.Flags().StringVar(&variant, "variant", taxonomy.VariantKanji, "kanji or hiragana")
	cmd.AddCommand(check)
	return cmd
}

func printTaxonomy(cmd *cobra.Command, t *taxonomy.Taxonomy) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "source: %s\n", t.Source)
	for _, b := range t.Buckets() {
		fmt.Fprintf(out, "%s\t%d subjects\t%s\n", timetable.GradeLabel(b.Level, b.Grade), len(b.Subjects), strings.Join(b.Names(), ", "))
	}
	return nil
}

func newTokenCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain a bearer token for uploads and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("TIMETABLER_PASSWORD")
			}
			if password == "" {
				return errors.New("--password or TIMETABLER_PASSWORD is required")
			}
			var resp struct {
				Token     string `json:"token"`
				ExpiresAt string `json:"expires_at"`
			}
			if err := doJSON(cmd.Context(), httpClient(), http.MethodPost, endpoint("/auth/token"), "", map[string]string{"password": password}, &resp); err != nil {
				return err
			}
			if err := saveToken(tokenPath, resp.Token); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s (expires %s)\n", tokenPath, resp.ExpiresAt)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "operator password")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash for auth.admin_password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}
