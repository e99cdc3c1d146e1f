package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/princinho/eldercarebackend/client"
	"github.com/spf13/cobra"
)

// usersCmd groups the admin account management commands.
func usersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts (admin only)",
	}
	cmd.AddCommand(usersListCmd(a), usersGetCmd(a), usersCreateCmd(a), usersUpdateCmd(a), usersDeleteCmd(a))
	return cmd
}

func usersListCmd(a *app) *cobra.Command {
	var opts client.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts, newest first",
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			page, err := a.api.ListUsers(ctx, opts)
			if err != nil {
				return err
			}
			return a.printUsers(page)
		}),
	}
	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "Case-insensitive match on name or email")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Page size (server default when 0)")
	return cmd
}

func usersGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			u, err := a.api.GetUser(ctx, args[0])
			if err != nil {
				return err
			}
			return a.printUser(u)
		}),
	}
}

func usersCreateCmd(a *app) *cobra.Command {
	var in client.CreateUserRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			if in.Email == "" || in.Name == "" {
				return errors.New("--email and --name are required")
			}
			var err error
			if in.Password, err = a.readSecret("Password for new account: "); err != nil {
				return err
			}
			u, err := a.api.CreateUser(ctx, in)
			if err != nil {
				return err
			}
			return a.printUser(u)
		}),
	}
	cmd.Flags().StringVarP(&in.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&in.Name, "name", "n", "", "Display name")
	cmd.Flags().StringVar(&in.Role, "role", "", "USER or ADMIN (default USER)")
	cmd.Flags().StringVar(&in.Avatar, "avatar-url", "", "Avatar URL")
	return cmd
}

func usersUpdateCmd(a *app) *cobra.Command {
	var email, name, role, avatar string
	var setPassword bool
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of an account",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			var in client.UpdateUserRequest
			flags := cmd.Flags()
			if flags.Changed("email") {
				in.Email = &email
			}
			if flags.Changed("name") {
				in.Name = &name
			}
			if flags.Changed("role") {
				in.Role = &role
			}
			if flags.Changed("avatar-url") {
				in.Avatar = &avatar
			}
			if setPassword {
				pw, err := a.readSecret("New password: ")
				if err != nil {
					return err
				}
				in.Password = &pw
			}

			u, err := a.api.UpdateUser(ctx, args[0], in)
			if err != nil {
				return err
			}
			return a.printUser(u)
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "New email")
	cmd.Flags().StringVar(&name, "name", "", "New display name")
	cmd.Flags().StringVar(&role, "role", "", "New role, USER or ADMIN")
	cmd.Flags().StringVar(&avatar, "avatar-url", "", "New avatar URL")
	cmd.Flags().BoolVar(&setPassword, "password", false, "Prompt for a new password")
	return cmd
}

func usersDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an account permanently",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			u, err := a.api.DeleteUser(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %s (%s)\n", u.Email, u.ID)
			return nil
		}),
	}
}
