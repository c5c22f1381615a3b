// Command portal-auth signs the employee in from a terminal. Tokens are kept
// in the encrypted file store so later invocations reuse the session.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bobmcallan/employee-portal/internal/app"
	"github.com/bobmcallan/employee-portal/internal/autherr"
	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/storage"
)

const usage = `Usage: portal-auth [-config path] [-v] [-version] <command> [flags]

Commands:
  login    sign in through the browser
  status   show the stored session
  token    print a valid access token
  whoami   show the signed-in user
  logout   end the session and print the end-session URL
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("portal-auth", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "config file (default $PORTAL_CONFIG or portal.toml)")
	verbose := fs.Bool("v", false, "log at debug level")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		common.LoadVersionFromFile()
		fmt.Fprintln(stdout, common.CurrentBuild())
		return 0
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	handler, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := useFileStore(config); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *verbose {
		config.Logging.Level = "debug"
	} else if config.Logging.Level == "" || strings.EqualFold(config.Logging.Level, "info") {
		config.Logging.Level = "warn"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config, common.NewLoggerFromConfig(config.Logging))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer a.Close()

	if err := handler(ctx, a, cmdArgs, stdout); err != nil {
		if autherr.IsReauthenticationRequired(err) {
			fmt.Fprintln(stderr, "not signed in, run: portal-auth login")
			return 3
		}
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// useFileStore switches an in-memory configuration to the file store.
func useFileStore(config *common.Config) error {
	if config.Storage.Backend == storage.BackendMemory {
		config.Storage.Backend = storage.BackendFile
	}
	if config.Storage.Backend == storage.BackendFile && config.Storage.File.Secret == "" {
		return errors.New("token file secret not set: configure storage.file.secret or PORTAL_STORAGE_SECRET")
	}
	return nil
}

type command func(ctx context.Context, a *app.App, args []string, stdout io.Writer) error

var commands = map[string]command{
	"login":  runLogin,
	"status": runStatus,
	"token":  runToken,
	"whoami": runWhoAmI,
	"logout": runLogout,
}

func runStatus(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	status, err := a.AccountService.Status(ctx)
	if err != nil {
		return err
	}
	return printJSON(stdout, status)
}

func runToken(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	token, err := a.AccountService.AccessToken(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func runWhoAmI(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	user, err := a.AccountService.CurrentUser(ctx)
	if err != nil {
		return err
	}
	return printJSON(stdout, user)
}

func runLogout(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	redirect := fs.String("redirect", "", "post-logout redirect URI")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logoutURL, err := a.AccountService.Logout(ctx, *redirect)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Signed out. To end the browser session visit:")
	fmt.Fprintln(stdout, logoutURL)
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
