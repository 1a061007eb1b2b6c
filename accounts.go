package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ypsync/ypsync/internal/drive"
	"github.com/ypsync/ypsync/internal/sched"
	"github.com/ypsync/ypsync/internal/store"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage provider accounts",
	}

	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsAddCmd())
	cmd.AddCommand(newAccountsRefreshCmd())

	return cmd
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			accounts, err := st.ListAccounts(cmd.Context(), false)
			if err != nil {
				return err
			}

			if flagJSON {
				return printAccountsJSON(accounts)
			}

			printAccountsTable(accounts)

			return nil
		},
	}
}

// accountView is the JSON shape for accounts list. Cookies never leave the
// database through this command.
type accountView struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Username string `json:"username"`
	Quota    int64  `json:"quota"`
	Used     int64  `json:"used"`
	VIP      bool   `json:"vip"`
	Valid    bool   `json:"valid"`
}

func printAccountsJSON(accounts []*store.Account) error {
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			ID: a.ID, Type: a.Type, Username: a.Username,
			Quota: a.Quota, Used: a.Used,
			VIP: a.IsVIP || a.IsSuperVIP, Valid: a.IsValid,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(views)
}

func printAccountsTable(accounts []*store.Account) {
	rows := make([][]string, 0, len(accounts))

	for _, a := range accounts {
		state := "valid"
		if !a.IsValid {
			state = "invalid"
		}

		vip := "-"

		switch {
		case a.IsSuperVIP:
			vip = "svip"
		case a.IsVIP:
			vip = "vip"
		}

		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10), a.Type, a.Username,
			formatSize(a.Used) + " / " + formatSize(a.Quota), vip, state,
		})
	}

	printTable(os.Stdout, []string{"ID", "TYPE", "USER", "USAGE", "VIP", "STATE"}, rows)
}

func newAccountsAddCmd() *cobra.Command {
	var (
		providerType string
		cookies      string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account from browser cookies",
		Long: `Store a provider account. Cookies are read from --cookies or, when the
flag is omitted, from the first line of stdin. The cookies are verified
against the provider before the account is saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cookies == "" {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading cookies from stdin: %w", err)
				}

				cookies = strings.TrimSpace(line)
			}

			if cookies == "" {
				return fmt.Errorf("no cookies provided")
			}

			client, err := drive.New(providerType, cookies, rootLogger)
			if err != nil {
				return err
			}

			info, err := client.GetUserInfo(cmd.Context())
			if err != nil {
				return fmt.Errorf("verifying cookies with %s: %w", providerType, err)
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := st.CreateAccount(cmd.Context(), &store.Account{
				Type:       providerType,
				UserID:     info.UserID,
				Username:   info.Username,
				Cookies:    cookies,
				AvatarURL:  info.AvatarURL,
				Quota:      info.Quota,
				Used:       info.Used,
				IsVIP:      info.IsVIP,
				IsSuperVIP: info.IsSuperVIP,
				IsValid:    true,
			})
			if err != nil {
				return err
			}

			statusf(flagQuiet, "Added %s account %q (id %d).\n", providerType, info.Username, id)

			return nil
		},
	}

	cmd.Flags().StringVar(&providerType, "type", "", "provider type: "+strings.Join(drive.Providers(), ", "))
	cmd.Flags().StringVar(&cookies, "cookies", "", "provider session cookies")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newAccountsRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch every account's profile and quota",
		Long: `Refresh all stored accounts against their providers. Accounts whose
cookies no longer authenticate are marked invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sched.NewMaintenance(st, nil, rootLogger).RefreshAccounts(cmd.Context())

			return nil
		},
	}
}
