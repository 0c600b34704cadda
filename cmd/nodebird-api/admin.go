package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alphabot-ai/nodebird/internal/auth"
	"github.com/alphabot-ai/nodebird/internal/clock"
	"github.com/alphabot-ai/nodebird/internal/config"
	"github.com/alphabot-ai/nodebird/internal/model"
	"github.com/alphabot-ai/nodebird/internal/registry"
	"github.com/alphabot-ai/nodebird/internal/store/sqlite"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add --email EMAIL --nick NICK --password PASSWORD",
	Short: "Create a local user",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		nick, _ := cmd.Flags().GetString("nick")
		password, _ := cmd.Flags().GetString("password")
		if email == "" || nick == "" || password == "" {
			return fmt.Errorf("--email, --nick and --password are required")
		}
		return withStore(func(ctx context.Context, st *sqlite.Store) error {
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			user := model.User{
				Email:        auth.NormalizeEmail(email),
				Nick:         nick,
				PasswordHash: hash,
				Provider:     model.ProviderLocal,
				CreatedAt:    clock.Real().Now(),
			}
			id, err := st.CreateUser(ctx, &user)
			if err != nil {
				return err
			}
			fmt.Printf("user %d created (%s)\n", id, user.Email)
			return nil
		})
	},
}

var userImportCmd = &cobra.Command{
	Use:   "import --provider NAME --sns-id ID [--nick NICK] [--email EMAIL]",
	Short: "Find or create a user from an external provider profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := auth.Credentials{}
		creds.Provider, _ = cmd.Flags().GetString("provider")
		creds.SNSID, _ = cmd.Flags().GetString("sns-id")
		creds.Nick, _ = cmd.Flags().GetString("nick")
		creds.Email, _ = cmd.Flags().GetString("email")
		return withStore(func(ctx context.Context, st *sqlite.Store) error {
			user, err := auth.NewExternalProfileStrategy(st, clock.Real()).Authenticate(ctx, creds)
			if err != nil {
				return err
			}
			fmt.Printf("user %d (%s %s, nick %s)\n", user.ID, user.Provider, user.SNSID, user.Nick)
			return nil
		})
	},
}

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage registered caller domains",
}

var domainRegisterCmd = &cobra.Command{
	Use:   "register --user ID --host HOST [--type free|premium]",
	Short: "Register a domain and print its client secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		host, _ := cmd.Flags().GetString("host")
		tier, _ := cmd.Flags().GetString("type")
		return withStore(func(ctx context.Context, st *sqlite.Store) error {
			if _, err := st.GetUser(ctx, userID); err != nil {
				return fmt.Errorf("user %d: %w", userID, err)
			}
			d, err := registry.New(st, clock.Real()).Register(ctx, userID, host, model.Tier(tier))
			if err != nil {
				return err
			}
			fmt.Printf("domain %d registered for %s (%s)\n", d.ID, d.Host, d.Tier)
			fmt.Printf("client secret: %s\n", d.Secret)
			return nil
		})
	},
}

var domainListCmd = &cobra.Command{
	Use:   "list --user ID",
	Short: "List a user's live domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		return withStore(func(ctx context.Context, st *sqlite.Store) error {
			domains, err := registry.New(st, clock.Real()).ListByOwner(ctx, userID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tHOST\tTYPE\tCREATED")
			for _, d := range domains {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.ID, d.Host, d.Tier, d.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		})
	},
}

var domainRemoveCmd = &cobra.Command{
	Use:   "remove --user ID DOMAIN_ID",
	Short: "Soft-delete a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		domainID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid domain id %q", args[0])
		}
		return withStore(func(ctx context.Context, st *sqlite.Store) error {
			if err := registry.New(st, clock.Real()).Remove(ctx, userID, domainID); err != nil {
				return err
			}
			fmt.Printf("domain %d removed\n", domainID)
			return nil
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with API tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue --secret CLIENT_SECRET [--version v1|v2] [--ttl DURATION]",
	Short: "Exchange a client secret for a token without going through HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		version, _ := cmd.Flags().GetString("version")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		cfg := config.Load()
		if ttl == 0 {
			switch version {
			case "v1":
				ttl = cfg.V1.TokenTTL
			case "v2":
				ttl = cfg.V2.TokenTTL
			default:
				return fmt.Errorf("unknown version %q", version)
			}
		}
		return withStore(func(ctx context.Context, st *sqlite.Store) error {
			verifier := auth.NewCredentialVerifier(registry.New(st, clock.Real()), st)
			user, _, err := verifier.VerifySecret(ctx, secret)
			if err != nil {
				return err
			}
			token, claims, err := auth.NewIssuer(cfg.JWTSecret, clock.Real()).Issue(user, ttl, cfg.Issuer)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Fprintf(os.Stderr, "expires %s\n", claims.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		})
	},
}

func init() {
	userAddCmd.Flags().String("email", "", "login email")
	userAddCmd.Flags().String("nick", "", "display name")
	userAddCmd.Flags().String("password", "", "password")
	userImportCmd.Flags().String("provider", model.ProviderKakao, "identity provider")
	userImportCmd.Flags().String("sns-id", "", "provider account id")
	userImportCmd.Flags().String("nick", "", "display name")
	userImportCmd.Flags().String("email", "", "email from the profile")
	_ = userImportCmd.MarkFlagRequired("sns-id")
	userCmd.AddCommand(userAddCmd, userImportCmd)

	domainRegisterCmd.Flags().Int64("user", 0, "owner user id")
	domainRegisterCmd.Flags().String("host", "", "allowed origin, e.g. https://example.com")
	domainRegisterCmd.Flags().String("type", string(model.TierFree), "free or premium")
	domainListCmd.Flags().Int64("user", 0, "owner user id")
	domainRemoveCmd.Flags().Int64("user", 0, "owner user id")
	for _, c := range []*cobra.Command{domainRegisterCmd, domainListCmd, domainRemoveCmd} {
		_ = c.MarkFlagRequired("user")
	}
	_ = domainRegisterCmd.MarkFlagRequired("host")
	domainCmd.AddCommand(domainRegisterCmd, domainListCmd, domainRemoveCmd)

	tokenIssueCmd.Flags().String("secret", "", "domain client secret")
	tokenIssueCmd.Flags().String("version", "v2", "API generation whose TTL to use")
	tokenIssueCmd.Flags().Duration("ttl", 0, "override the generation TTL")
	_ = tokenIssueCmd.MarkFlagRequired("secret")
	tokenCmd.AddCommand(tokenIssueCmd)
}

func withStore(fn func(ctx context.Context, st *sqlite.Store) error) error {
	st, err := sqlite.Open(config.Load().DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()
	return fn(context.Background(), st)
}
