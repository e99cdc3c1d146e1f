package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/princinho/eldercarebackend/client"
	"github.com/princinho/eldercarebackend/session"
	"github.com/spf13/cobra"
)

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{rawIn: in, in: bufio.NewReader(in), out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Command line client for the eldercare API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.server, "server", defaultServer(), "API base URL (env ELDERCARE_URL)")
	flags.StringVar(&a.sessionDB, "session-db", defaultSessionDB(), "Path of the local session database")
	flags.StringVar(&a.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.BoolVar(&a.jsonOut, "json", false, "Print JSON instead of tables")

	cmd.AddCommand(
		loginCmd(a),
		registerCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		profileCmd(a),
		passwdCmd(a),
		avatarCmd(a),
		usersCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(out, "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

// withSession opens the session for the duration of fn.
func withSession(a *app, fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := a.open(ctx); err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, cmd, args)
	}
}

// requireLogin fails early instead of sending a request that cannot succeed.
func requireLogin(a *app) error {
	if a.sess.State() != session.LoggedIn {
		return fmt.Errorf("not logged in, run `%s login`", appName)
	}
	return nil
}

func loginCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session locally",
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			var err error
			if email == "" {
				if email, err = a.readLine("Email: "); err != nil {
					return err
				}
			}
			password, err := a.readSecret("Password: ")
			if err != nil {
				return err
			}

			if a.sess.State() == session.LoggedIn {
				if err := a.sess.Logout(ctx); err != nil {
					return err
				}
			}
			u, err := a.sess.Login(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s (%s)\n", u.Email, u.Role)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	return cmd
}

func registerCmd(a *app) *cobra.Command {
	var in client.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			var err error
			if in.Email == "" {
				if in.Email, err = a.readLine("Email: "); err != nil {
					return err
				}
			}
			if in.Name == "" {
				if in.Name, err = a.readLine("Name: "); err != nil {
					return err
				}
			}
			if in.Password, err = a.readSecret("Password: "); err != nil {
				return err
			}

			if a.sess.State() == session.LoggedIn {
				if err := a.sess.Logout(ctx); err != nil {
					return err
				}
			}
			u, err := a.sess.Register(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Registered and logged in as %s (%s)\n", u.Email, u.Role)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&in.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&in.Name, "name", "n", "", "Display name")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := a.sess.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		}),
	}
}

func whoamiCmd(a *app) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in account",
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			if local {
				u, _ := a.sess.User()
				return a.printUser(&u)
			}
			u, err := a.api.Me(ctx)
			if err != nil {
				return err
			}
			if err := a.sess.UpdateProfile(ctx, *u); err != nil {
				return err
			}
			return a.printUser(u)
		}),
	}
	cmd.Flags().BoolVar(&local, "local", false, "Print the cached profile without contacting the server")
	return cmd
}

func profileCmd(a *app) *cobra.Command {
	var name, avatar string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update your name or avatar URL",
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			var in client.UpdateProfileRequest
			if cmd.Flags().Changed("name") {
				in.Name = &name
			}
			if cmd.Flags().Changed("avatar-url") {
				in.Avatar = &avatar
			}
			if in.Name == nil && in.Avatar == nil {
				return errors.New("nothing to update, pass --name or --avatar-url")
			}
			u, err := a.api.UpdateMe(ctx, in)
			if err != nil {
				return err
			}
			if err := a.sess.UpdateProfile(ctx, *u); err != nil {
				return err
			}
			return a.printUser(u)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "New display name")
	cmd.Flags().StringVar(&avatar, "avatar-url", "", "New avatar URL")
	return cmd
}

func passwdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			current, err := a.readSecret("Current password: ")
			if err != nil {
				return err
			}
			next, err := a.readSecret("New password: ")
			if err != nil {
				return err
			}
			if err := a.api.ChangePassword(ctx, current, next); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Password changed")
			return nil
		}),
	}
}

func avatarCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "avatar FILE",
		Short: "Upload a profile picture",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			u, err := a.api.UploadAvatar(ctx, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			if err := a.sess.SetAvatar(ctx, u.Avatar); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Avatar updated: %s\n", u.Avatar)
			return nil
		}),
	}
}
