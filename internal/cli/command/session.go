package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/keymesh-go/internal/cli/output"
	"github.com/yndnr/keymesh-go/internal/core/service"
)

// LoginCommand returns the login command.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with username and password",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "account username (prompted when omitted)",
			},
			&cli.BoolFlag{
				Name:  "password-stdin",
				Usage: "read the password from stdin",
			},
		},
		Action: clientAction(false, login),
	}
}

func login(c *cli.Context, e *env, cl *Client) error {
	username := c.String("username")
	if username == "" {
		var err error
		if username, err = e.prompt("Username: "); err != nil {
			return err
		}
	}
	password, err := readPassword(c, e, "Password: ")
	if err != nil {
		return err
	}

	user, err := cl.Session.Login(c.Context, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if e.format != output.FormatTable {
		return e.print(userView{user})
	}
	e.printf("Logged in as %s (%s).\n", user.Username, user.Email)
	return nil
}

// RegisterCommand returns the register command.
func RegisterCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account and sign in",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "account username (prompted when omitted)",
			},
			&cli.StringFlag{
				Name:    "email",
				Aliases: []string{"e"},
				Usage:   "account email (prompted when omitted)",
			},
			&cli.BoolFlag{
				Name:  "password-stdin",
				Usage: "read the password from stdin",
			},
		},
		Action: clientAction(false, register),
	}
}

func register(c *cli.Context, e *env, cl *Client) error {
	in := service.RegisterInput{
		Username: c.String("username"),
		Email:    c.String("email"),
	}
	var err error
	if in.Username == "" {
		if in.Username, err = e.prompt("Username: "); err != nil {
			return err
		}
	}
	if in.Email == "" {
		if in.Email, err = e.prompt("Email: "); err != nil {
			return err
		}
	}
	if in.Password, err = readPassword(c, e, "Password: "); err != nil {
		return err
	}
	if e.tty != nil && !c.Bool("password-stdin") {
		if in.ConfirmPassword, err = e.promptPassword("Confirm password: "); err != nil {
			return err
		}
	}

	user, err := cl.Session.Register(c.Context, in)
	var stageErr *service.StageError
	if errors.As(err, &stageErr) && stageErr.Stage == service.StageLogin {
		return fmt.Errorf("account created, but signing in failed: %w", stageErr.Err)
	}
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	if e.format != output.FormatTable {
		return e.print(userView{user})
	}
	e.printf("Account %s created. Logged in as %s.\n", user.Username, user.Username)
	return nil
}

// readPassword reads the password from stdin when --password-stdin is set
// and prompts for it otherwise.
func readPassword(c *cli.Context, e *env, label string) (string, error) {
	if c.Bool("password-stdin") {
		return e.readLine()
	}
	return e.promptPassword(label)
}

// LogoutCommand returns the logout command.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Sign out and remove stored credentials",
		Action: clientAction(false, logout),
	}
}

func logout(c *cli.Context, e *env, cl *Client) error {
	if cl.Store.Get().Empty() {
		e.printf("Not logged in.\n")
		return nil
	}
	cl.Session.Logout(c.Context)
	e.printf("Logged out.\n")
	return nil
}

// WhoamiCommand returns the whoami command.
func WhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "re-fetch the profile from the server",
			},
		},
		Action: clientAction(true, whoami),
	}
}

func whoami(c *cli.Context, e *env, cl *Client) error {
	user, err := requireSession(cl)
	if err != nil {
		return err
	}
	if c.Bool("refresh") {
		if user, err = cl.Session.RefreshUser(c.Context); err != nil {
			return fmt.Errorf("refresh profile: %w", err)
		}
	}
	return e.print(userView{user})
}

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the local session state",
		Action: clientAction(true, status),
	}
}

func status(c *cli.Context, e *env, cl *Client) error {
	s := cl.Session.Current()
	view := statusView{
		Server: cl.Server,
		Status: s.Status,
		User:   s.User,
	}
	if tok, err := cl.Session.TokenSource().Token(); err == nil && !tok.Expiry.IsZero() {
		exp := tok.Expiry
		view.TokenExpiresAt = &exp
	}
	return e.print(view)
}
