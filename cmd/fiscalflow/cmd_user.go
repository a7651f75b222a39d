package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gosuda/fiscalflow/internal/auth"
	"github.com/gosuda/fiscalflow/internal/config"
	"github.com/gosuda/fiscalflow/internal/domain"
	"github.com/gosuda/fiscalflow/internal/store/postgres"
)

type userCreator interface {
	CreateUser(ctx context.Context, username, password, role string) (*domain.User, error)
}

type userLister interface {
	List(ctx context.Context) ([]*domain.User, error)
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the operators allowed to log in",
	}
	cmd.AddCommand(newUserAddCommand())
	cmd.AddCommand(newUserListCommand())
	return cmd
}

func newUserAddCommand() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create a user; the password is read from stdin",
		Long: `Create a user. The password is the first line read from stdin, so it never
shows up in the shell history:

  printf '%s\n' "$PASSWORD" | fiscalflow user add maria --role Contable

Without --role the profile is derived from the username (admin, contable),
falling back to Usuario.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openUserStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			svc := auth.NewService(store.Users(), nil, "", 0, 0)
			return addUser(cmd.Context(), svc, cmd.InOrStdin(), cmd.OutOrStdout(), args[0], role)
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Role override (Administrador, Contable, Usuario)")
	return cmd
}

func newUserListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openUserStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			return listUsers(cmd.Context(), store.Users(), cmd.OutOrStdout())
		},
	}
}

func openUserStore(ctx context.Context) (*postgres.Store, error) {
	db, err := config.LoadDatabase()
	if err != nil {
		return nil, err
	}
	return openStore(ctx, db, postgres.Options{})
}

func addUser(ctx context.Context, svc userCreator, in io.Reader, out io.Writer, username, role string) error {
	password, err := readLine(in)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	u, err := svc.CreateUser(ctx, username, password, role)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "created %s (%s, %s)\n", u.Username, u.DisplayName, u.Role)
	return nil
}

func listUsers(ctx context.Context, repo userLister, out io.Writer) error {
	users, err := repo.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tNAME\tROLE\tSTYLE\tCREATED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			u.Username, u.DisplayName, u.Role, u.ResponseStyle, u.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

var errEmptyInput = errors.New("no input") //nolint:gochecknoglobals // sentinel error

// readLine returns the first line of r without its line ending.
func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errEmptyInput
	}
	return strings.TrimRight(sc.Text(), "\r"), nil
}
