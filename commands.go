package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"

	"github.com/raine/landadmin/config"
	"github.com/raine/landadmin/internal/api"
	"github.com/raine/landadmin/internal/credentials"
	"github.com/raine/landadmin/internal/records"
)

type app struct {
	cfg     config.Config
	client  *api.Client
	records *records.Service
	creds   *credentials.Store
	out     io.Writer
	in      io.Reader

	// promptLogin asks for credentials; nil means no interactive prompt.
	promptLogin func(username string) (string, string, error)
}

type command struct {
	args    string
	summary string
	minArgs int
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":     {"", "sign in and store the session", 0, cmdLogin},
	"logout":    {"", "forget the stored session", 0, cmdLogout},
	"whoami":    {"", "show the signed in role", 0, cmdWhoami},
	"entities":  {"", "list the entities the console manages", 0, cmdEntities},
	"list":      {"<entity> [key=value...]", "list records", 1, cmdList},
	"page":      {"<entity> [key=value...]", "list one page with paging metadata", 1, cmdPage},
	"get":       {"<entity> <id>", "show one record", 2, cmdGet},
	"create":    {"<entity> <json|@file|->", "create a record", 2, cmdCreate},
	"update":    {"<entity> <id> <json|@file|->", "update a record", 3, cmdUpdate},
	"delete":    {"<entity> <id>", "delete a record", 2, cmdDelete},
	"dump":      {"<entity>...", "list several entities at once", 1, cmdDump},
	"upload":    {"<id> <table> <file>...", "attach files to a record", 3, cmdUpload},
	"uploads":   {"<id> <formName>", "list files attached to a record", 2, cmdUploads},
	"rm-upload": {"<fileId>", "delete an attached file", 1, cmdRemoveUpload},
}

func usageText() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(&b, "  %-42s %s\n", strings.TrimSpace(name+" "+cmd.args), cmd.summary)
	}

	return strings.TrimLeft(dedent.Dedent(`
		landadmin - land administration console

		Usage:
		  landadmin [-v] <command> [arguments]

		Commands:
		`), "\n") + b.String() + strings.TrimRight(dedent.Dedent(`

		Configuration is read from LANDADMIN_* environment variables and
		from config.env in the user config directory.
		`), " \t")
}

func (a *app) run(ctx context.Context, args []string) error {
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, run landadmin -h for help", name)
	}
	if len(args)-1 < cmd.minArgs {
		return fmt.Errorf("usage: landadmin %s %s", name, cmd.args)
	}
	log.Debug().Str("command", name).Strs("args", args[1:]).Msg("running command")
	return cmd.run(ctx, a, args[1:])
}

func cmdLogin(ctx context.Context, a *app, _ []string) error {
	username, password := a.cfg.Username, a.cfg.Password
	if username == "" || password == "" {
		if a.promptLogin == nil {
			if !isInteractiveTerminal() {
				return fmt.Errorf("set LANDADMIN_USERNAME and LANDADMIN_PASSWORD or run in a terminal")
			}
			a.promptLogin = promptCredentials
		}
		var err error
		username, password, err = a.promptLogin(username)
		if err != nil {
			return err
		}
	}

	if _, err := a.client.SignIn(ctx, username, password); err != nil {
		return err
	}
	role := a.creds.Role()
	if role == "" {
		role = "unknown role"
	}
	fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("✓ Signed in as %s (%s)", username, role)))
	return nil
}

func cmdLogout(_ context.Context, a *app, _ []string) error {
	a.client.SignOut()
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func cmdWhoami(_ context.Context, a *app, _ []string) error {
	if a.creds.AccessToken() == "" {
		fmt.Fprintln(a.out, "Not signed in.")
		return nil
	}
	role := a.creds.Role()
	if role == "" {
		role = "unknown"
	}
	fmt.Fprintf(a.out, "Signed in to %s\nRole: %s\n", a.client.BaseURL(), role)
	if a.creds.IsOperator() {
		fmt.Fprintln(a.out, pathStyle.Render("Read-only: operators cannot update or delete records."))
	}
	return nil
}

func cmdEntities(_ context.Context, a *app, _ []string) error {
	for _, e := range records.Entities() {
		line := fmt.Sprintf("%-16s %s", e.Name, e.Title)
		if e.Paged {
			line += pathStyle.Render(" (paged)")
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}
	rows, err := a.records.List(ctx, args[0], params)
	if err != nil {
		return err
	}
	return printJSON(a.out, rows)
}

func cmdPage(ctx context.Context, a *app, args []string) error {
	params, err := parseParams(args[1:])
	if err != nil {
		return err
	}
	page, err := a.records.Page(ctx, args[0], params)
	if err != nil {
		return err
	}
	return printJSON(a.out, page)
}

func cmdGet(ctx context.Context, a *app, args []string) error {
	rec, err := a.records.Get(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return printJSON(a.out, rec)
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	data, err := readRecord(args[1], a.in)
	if err != nil {
		return err
	}
	rec, err := a.records.Create(ctx, args[0], data)
	if err != nil {
		return err
	}
	return printJSON(a.out, rec)
}

func cmdUpdate(ctx context.Context, a *app, args []string) error {
	data, err := readRecord(args[2], a.in)
	if err != nil {
		return err
	}
	rec, err := a.records.Update(ctx, args[0], args[1], data)
	if err != nil {
		return err
	}
	return printJSON(a.out, rec)
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	if err := a.records.Remove(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s %s\n", args[0], args[1])
	return nil
}

func cmdDump(ctx context.Context, a *app, args []string) error {
	out, err := a.records.Dump(ctx, args)
	if err != nil {
		return err
	}
	return printJSON(a.out, out)
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	files := make([]api.UploadFile, 0, len(args)-2)
	for _, path := range args[2:] {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		files = append(files, api.UploadFile{Name: filepath.Base(path), Content: content})
	}
	payload, err := a.client.Upload(ctx, args[0], args[1], files)
	if err != nil {
		return err
	}
	return printPayload(a.out, payload)
}

func cmdUploads(ctx context.Context, a *app, args []string) error {
	payload, err := a.client.ListUploads(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return printPayload(a.out, payload)
}

func cmdRemoveUpload(ctx context.Context, a *app, args []string) error {
	if _, err := a.client.DeleteUpload(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted file %s\n", args[0])
	return nil
}
