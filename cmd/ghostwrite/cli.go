package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/ghostwrite/internal/capability"
	"github.com/hpungsan/ghostwrite/internal/errors"
	"github.com/hpungsan/ghostwrite/internal/grammar"
	"github.com/hpungsan/ghostwrite/internal/ledger"
	"github.com/hpungsan/ghostwrite/internal/prompts"
	"github.com/hpungsan/ghostwrite/internal/router"
	"github.com/hpungsan/ghostwrite/internal/web"
)

// maxStdinBytes bounds text read from stdin.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "ghostwrite",
		Usage:   "Humanize and rewrite text, then grammar-check the result",
		Version: Version,
		Commands: []*cli.Command{
			statusCmd(rt),
			checkCmd(rt),
			transformCmd(rt, "humanize", "Humanize text (1 credit)"),
			transformCmd(rt, "rewrite", "Rewrite text for clarity (1 credit)"),
			saveKeyCmd(rt),
			recheckCmd(rt),
			promptsCmd(),
			uiCmd(rt),
			serveCmd(rt),
			usersCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// statusCmd creates the status command.
func statusCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show capability mode, features and credits",
		Action: func(c *cli.Context) error {
			m, err := rt.openManager(c.Context, surface{})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, m.Status())
		},
	}
}

// checkCmd creates the check command.
func checkCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Grammar-check text (argument or stdin); free and offline",
		ArgsUsage: "[text]",
		Action: func(c *cli.Context) error {
			text, err := inputText(c)
			if err != nil {
				return outputError(err)
			}
			m, err := rt.openManager(c.Context, surface{})
			if err != nil {
				return outputError(err)
			}
			findings, err := m.CheckGrammarOnly(c.Context, text)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, struct {
				Findings []grammar.Finding `json:"findings"`
			}{findings})
		},
	}
}

// transformCmd creates the humanize and rewrite commands.
func transformCmd(rt *runtime, action, usage string) *cli.Command {
	cmd := &cli.Command{
		Name:      action,
		Usage:     usage,
		ArgsUsage: "[text]",
		Action: func(c *cli.Context) error {
			text, err := inputText(c)
			if err != nil {
				return outputError(err)
			}
			act := action
			if c.Bool("improve") {
				act = prompts.Improve
			}
			m, err := rt.openManager(c.Context, surface{})
			if err != nil {
				return outputError(err)
			}
			res, err := m.RunPipeline(c.Context, text, act)
			if err != nil {
				return outputError(err)
			}
			if c.Bool("text-only") {
				_, err := fmt.Fprintln(c.App.Writer, res.TransformedText)
				return err
			}
			return outputJSON(c, res)
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "text-only", Aliases: []string{"t"}, Usage: "Print only the transformed text"},
		},
	}
	if action == prompts.Rewrite {
		cmd.Flags = append(cmd.Flags, &cli.BoolFlag{Name: "improve", Usage: "Use the improve prompt instead of rewrite"})
	}
	return cmd
}

// saveKeyCmd creates the save-key command.
func saveKeyCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "save-key",
		Usage:     "Save the GhostWrite API key and re-check the account",
		ArgsUsage: "<api-key>",
		Action: func(c *cli.Context) error {
			key, err := inputText(c)
			if err != nil {
				return outputError(err)
			}
			m, err := rt.openManager(c.Context, surface{})
			if err != nil {
				return outputError(err)
			}
			if err := m.SaveCredential(c.Context, key); err != nil {
				return outputError(err)
			}
			return outputJSON(c, m.Status())
		},
	}
}

// recheckCmd creates the recheck command.
func recheckCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "recheck",
		Usage: "Query the service again and show the resulting status",
		Action: func(c *cli.Context) error {
			m, err := rt.openManager(c.Context, surface{})
			if err != nil {
				return outputError(err)
			}
			m.RecheckRemoteService(c.Context)
			return outputJSON(c, m.Status())
		},
	}
}

// promptsCmd creates the prompts command.
func promptsCmd() *cli.Command {
	return &cli.Command{
		Name:      "prompts",
		Usage:     "List transform actions, or print one action's system prompt",
		ArgsUsage: "[action]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tone", Usage: "Tone prefix to apply when printing a prompt"},
			&cli.StringFlag{Name: "context", Usage: "Context suffix to apply when printing a prompt"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				type entry struct {
					Action      string `json:"action"`
					Version     string `json:"version"`
					Description string `json:"description"`
				}
				out := make([]entry, 0)
				for _, a := range prompts.Actions() {
					p, _ := prompts.Info(a)
					out = append(out, entry{Action: a, Version: p.Version, Description: p.Description})
				}
				return outputJSON(c, out)
			}

			action := c.Args().First()
			if !prompts.IsValidAction(action) {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown action: %s", action)))
			}
			_, err := fmt.Fprintln(c.App.Writer, prompts.SystemPrompt(action, prompts.Options{
				Tone:    c.String("tone"),
				Context: c.String("context"),
			}))
			return err
		},
	}
}

// uiCmd creates the ui command: the local bridge for the browser extension.
func uiCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Start the local extension bridge and status page",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (overrides ui_bind)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (overrides ui_port)"},
		},
		Action: func(c *cli.Context) error {
			if bind := c.String("bind"); bind != "" {
				rt.cfg.UIBind = bind
			}
			if port := c.Int("port"); port > 0 {
				rt.cfg.UIPort = port
			}
			rt.startTracing(c.Context, "ghostwrite-ui")

			m, err := rt.openManager(c.Context, surface{})
			if err != nil {
				return outputError(err)
			}
			go capability.NewPoller(m, rt.recheckInterval()).Run(c.Context)

			rtr := router.New(m, rt.cfg.SignupURL, router.WithLogger(rt.logger))
			srv, err := web.NewServer(rtr, m, rt.cfg, Version, rt.logger)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return web.Run(c.Context, srv, "GhostWrite UI", rt.logger)
		},
	}
}

// serveCmd creates the serve command: the credit-metered transform service.
func serveCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the credit-metered transform service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (overrides serve_bind)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (overrides serve_port)"},
		},
		Action: func(c *cli.Context) error {
			bind, port := rt.cfg.ServeBind, rt.cfg.ServePort
			if b := c.String("bind"); b != "" {
				bind = b
			}
			if p := c.Int("port"); p > 0 {
				port = p
			}
			rt.startTracing(c.Context, "ghostwrite-service")

			svc, err := rt.openLedger()
			if err != nil {
				return outputError(err)
			}
			chain := rt.providerChain()
			if rt.cfg.GeminiAPIKey == "" && rt.cfg.OpenAIAPIKey == "" {
				rt.logger.Warn("serve.no_provider_keys", "hint", "set GEMINI_API_KEY or OPENAI_API_KEY")
			}

			h := ledger.NewHandlers(svc, chain, rt.logger)
			h.ShouldCheckGrammar = !rt.cfg.SkipServerGrammarCheck
			return web.Run(c.Context, ledger.NewServer(h, bind, port), "GhostWrite service", rt.logger)
		},
	}
}

// usersCmd creates the users command group for ledger administration.
func usersCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage ledger accounts",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a trial account and print its API key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Required: true, Usage: "Account email"},
					&cli.IntFlag{Name: "credits", Aliases: []string{"c"}, Value: -1, Usage: "Initial credits (default from config)"},
				},
				Action: func(c *cli.Context) error {
					credits := c.Int("credits")
					if credits < 0 {
						credits = rt.cfg.InitialCredits
					}
					svc, err := rt.openLedger()
					if err != nil {
						return outputError(err)
					}
					u, err := svc.CreateUser(c.Context, c.String("email"), credits)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, struct {
						ID      string `json:"id"`
						Email   string `json:"email"`
						APIKey  string `json:"api_key"`
						Tier    string `json:"tier"`
						Credits int    `json:"credits_remaining"`
					}{u.ID, u.Email, u.APIKey, u.Tier, u.CreditsRemaining})
				},
			},
			{
				Name:      "tier",
				Usage:     "Set an account's tier and optionally add credits",
				ArgsUsage: "<user-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tier", Required: true, Usage: "free|trial|paid"},
					&cli.IntFlag{Name: "add", Usage: "Credits to add"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return outputError(errors.NewInvalidRequest("user id is required"))
					}
					svc, err := rt.openLedger()
					if err != nil {
						return outputError(err)
					}
					u, err := svc.UpdateTier(c.Context, c.Args().First(), c.String("tier"), c.Int("add"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, u)
				},
			},
			{
				Name:      "usage",
				Usage:     "Show an account's most recent charges",
				ArgsUsage: "<user-id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum entries"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return outputError(errors.NewInvalidRequest("user id is required"))
					}
					svc, err := rt.openLedger()
					if err != nil {
						return outputError(err)
					}
					logs, err := svc.Usage(c.Context, c.Args().First(), c.Int("limit"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, logs)
				},
			},
		},
	}
}

// Helper functions

// outputJSON writes v to the app's writer as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats err for the CLI.
func outputError(err error) error {
	gErr := errors.As(err)
	return cli.Exit(fmt.Sprintf("[%s] %s", gErr.Code, gErr.Message), 1)
}

// inputText returns the joined positional args, or stdin when none were given.
func inputText(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if !stdinHasData() {
		return "", errors.NewInvalidRequest("text must be passed as an argument or piped via stdin")
	}
	text, err := readStdinWithLimit(os.Stdin, maxStdinBytes)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errors.NewInvalidRequest("text is required")
	}
	return text, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdinWithLimit reads r up to limit bytes, rejecting anything larger.
func readStdinWithLimit(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("input exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}
