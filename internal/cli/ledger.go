package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/pointsledger/pointsledger/internal/client"
	"github.com/pointsledger/pointsledger/internal/domain"
)

// ─── Client Commands ────────────────────────────────────────────────────────
// These talk to a running 'pointsledger serve' over HTTP.

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(spendCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(versionCmd)

	addCmd.Flags().StringP("file", "f", "", `JSON file with a list of {"payer","amount","timestamp"} ("-" for stdin)`)
}

// ─── add ────────────────────────────────────────────────────────────────────

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Credit a batch of point transactions",
	Long: `Credit a batch of point transactions read from a JSON file.
The batch is all-or-nothing: if any payer would end up with a negative
balance, nothing is recorded.`,
	Args: cobra.NoArgs,
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return fmt.Errorf("transactions file required: pointsledger add -f <file>")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read transactions: %w", err)
	}

	records, err := parseTransactions(data)
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.AddPoints(cmd.Context(), records); err != nil {
		return serverError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d transaction(s).\n", len(records))
	return nil
}

// ─── balance ────────────────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show points per payer",
	Args:  cobra.NoArgs,
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	balances, ok, err := c.Balances(cmd.Context())
	if err != nil {
		return serverError(err)
	}

	out := cmd.OutOrStdout()
	if !ok {
		fmt.Fprintln(out, "No points recorded.")
		return nil
	}

	payers := make([]string, 0, len(balances))
	for p := range balances {
		payers = append(payers, p)
	}
	sort.Strings(payers)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAYER\tPOINTS")
	for _, p := range payers {
		fmt.Fprintf(tw, "%s\t%d\n", p, balances[p])
	}
	fmt.Fprintf(tw, "TOTAL\t%d\n", balances.Total())
	return tw.Flush()
}

// ─── spend ──────────────────────────────────────────────────────────────────

var spendCmd = &cobra.Command{
	Use:   "spend POINTS",
	Short: "Spend points, oldest first across all payers",
	Args:  cobra.ExactArgs(1),
	RunE:  runSpend,
}

func runSpend(cmd *cobra.Command, args []string) error {
	points, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("points must be an integer: %w", err)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	results, err := c.Spend(cmd.Context(), points)
	if err != nil {
		return serverError(err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAYER\tPOINTS")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\n", r.Payer, r.Points)
	}
	return tw.Flush()
}

// ─── records ────────────────────────────────────────────────────────────────

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored ledger records",
	Args:  cobra.NoArgs,
	RunE:  runRecords,
}

func runRecords(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	records, err := c.Records(cmd.Context())
	if err != nil {
		return serverError(err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPAYER\tAMOUNT\tTIMESTAMP")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.Payer, r.Amount, r.Timestamp.Format(time.RFC3339))
	}
	return tw.Flush()
}

// ─── version ────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pointsledger %s\n", Version)
	},
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// transaction is one entry of an add file. Amount is a pointer so a missing
// amount is rejected instead of being sent as zero.
type transaction struct {
	Payer     string    `json:"payer" validate:"required"`
	Amount    *int64    `json:"amount" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// parseTransactions decodes and validates an add file.
func parseTransactions(data []byte) ([]domain.PointRecord, error) {
	var txs []transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("parse transactions: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	records := make([]domain.PointRecord, 0, len(txs))
	for i, tx := range txs {
		if err := validate.Struct(tx); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		records = append(records, domain.PointRecord{
			Payer:     tx.Payer,
			Amount:    *tx.Amount,
			Timestamp: tx.Timestamp,
		})
	}
	return records, nil
}

// serverError reduces an API error to the server's detail message.
func serverError(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return errors.New(apiErr.Detail)
	}
	return err
}

// newClient builds an API client from --server or the config file.
func newClient() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	server := cfg.Client.Server
	if flagServer != "" {
		server = flagServer
	}
	return client.New(server, cfg.Client.HTTPTimeout()), nil
}
