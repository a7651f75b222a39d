package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gosuda/fiscalflow/internal/chat"
	"github.com/gosuda/fiscalflow/internal/client"
	"github.com/gosuda/fiscalflow/internal/config"
)

// Commands understood by the interactive prompt.
const (
	cmdQuit = "/salir"
	cmdNew  = "/nueva"
)

type clientFlags struct {
	url      string
	username string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "Server URL (overrides FISCALFLOW_URL)")
	cmd.Flags().StringVarP(&f.username, "user", "u", "", "Username (overrides FISCALFLOW_USERNAME)")
}

func (f *clientFlags) load() (*config.ClientConfig, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if f.url != "" {
		cfg.ServerURL = strings.TrimRight(f.url, "/")
	}
	if f.username != "" {
		cfg.Username = f.username
	}
	return cfg, nil
}

func newChatCommand() *cobra.Command {
	var (
		flags   clientFlags
		resume  string
		message string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the fiscal agent from the terminal",
		Long: `Open an interactive conversation with the fiscal agent. Answers are printed
as they stream in; report ids are shown when the agent produced one.

Type ` + cmdNew + ` to start a new conversation and ` + cmdQuit + ` to leave. With
--message a single turn is sent and the command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			in := bufio.NewScanner(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			c, err := login(ctx, cfg, cmd.InOrStdin(), in, out)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Logout(context.WithoutCancel(ctx)); err != nil {
					log.Debug().Err(err).Msg("logout failed")
				}
			}()

			conv := chat.NewConversation("")
			if resume != "" {
				turns, err := c.Transcript(ctx, resume)
				if err != nil {
					return err
				}
				if err := conv.Load(resume, turns); err != nil {
					return err
				}
				renderTranscript(out, turns)
			}

			if message != "" {
				sendTurn(ctx, c, conv, message, out)
				return nil
			}
			return chatLoop(ctx, c, conv, in, out)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&resume, "resume", "", "Continue the conversation with this session id")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Send one message and exit")
	return cmd
}

// login authenticates with the configured credentials, asking for whatever
// is missing. Terminals get a form with the password hidden; piped input is
// read from lines.
func login(ctx context.Context, cfg *config.ClientConfig, in io.Reader, lines *bufio.Scanner, out io.Writer) (*client.Client, error) {
	username, password := cfg.Username, cfg.Password
	if username == "" || password == "" {
		var err error
		if isTerminal(in) {
			err = credentialsForm(&username, &password).WithInput(in).WithOutput(out).Run()
		} else {
			err = scanCredentials(lines, out, &username, &password)
		}
		if err != nil {
			return nil, err
		}
	}

	c := client.New(cfg.ServerURL)
	p, err := c.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("Sesión iniciada como %s (%s)", p.DisplayName, p.Role)))
	return c, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// credentialsForm asks only for the fields that are still empty.
func credentialsForm(username, password *string) *huh.Form {
	var fields []huh.Field
	if *username == "" {
		fields = append(fields, huh.NewInput().
			Title("Usuario").
			Value(username).
			Validate(notBlank("el usuario")))
	}
	if *password == "" {
		fields = append(fields, huh.NewInput().
			Title("Contraseña").
			EchoMode(huh.EchoModePassword).
			Value(password).
			Validate(notBlank("la contraseña")))
	}
	return huh.NewForm(huh.NewGroup(fields...))
}

func notBlank(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s es obligatorio", what)
		}
		return nil
	}
}

func scanCredentials(lines *bufio.Scanner, out io.Writer, username, password *string) error {
	if *username == "" {
		fmt.Fprint(out, "Usuario: ")
		if !lines.Scan() {
			return errEmptyInput
		}
		*username = strings.TrimSpace(lines.Text())
	}
	if *password == "" {
		fmt.Fprint(out, "Contraseña: ")
		if !lines.Scan() {
			return errEmptyInput
		}
		*password = strings.TrimRight(lines.Text(), "\r")
	}
	return nil
}

func chatLoop(ctx context.Context, c *client.Client, conv *chat.Conversation, in *bufio.Scanner, out io.Writer) error {
	for {
		fmt.Fprint(out, styles.User.Render("tú> "))
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}

		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case cmdQuit:
			return nil
		case cmdNew:
			conv = chat.NewConversation("")
			fmt.Fprintln(out, styles.Muted.Render("Nueva conversación."))
			continue
		}

		sendTurn(ctx, c, conv, line, out)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// sendTurn relays one line and renders the outcome.
func sendTurn(ctx context.Context, c *client.Client, conv *chat.Conversation, text string, out io.Writer) {
	var streamed strings.Builder
	turn, err := c.Send(ctx, conv, text, io.MultiWriter(out, &streamed))
	if err != nil {
		fmt.Fprintln(out, styles.Error.Render(err.Error()))
		return
	}
	renderOutcome(out, turn, streamed.String())
	log.Debug().Str("session_id", conv.SessionID()).Str("error", turn.Error).Msg("turn finished")
}
