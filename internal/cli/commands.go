package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sakif/app-builder/internal/client"
	"github.com/sakif/app-builder/internal/gitpush"
	"github.com/sakif/app-builder/internal/model"
	"github.com/sakif/app-builder/internal/preview"
)

func cmdHealth(ctx context.Context, a *App, _ []string) error {
	h, err := a.client.Health(ctx)
	if err != nil {
		return err
	}
	llm := h.LLM
	if llm == "" {
		llm = "none"
	}
	a.printf("status:    %s\ndatabase:  %s\nllm:       %s\nplatforms: %s\n",
		h.Status, h.Database, llm, strings.Join(h.Platforms, ", "))
	return nil
}

func cmdRegister(ctx context.Context, a *App, args []string) error {
	fs := a.flags("register")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	if *email == "" {
		v, err := prompt(a.in, a.out, "Email")
		if err != nil {
			return err
		}
		*email = v
	}
	password, err := promptPassword(a.in, a.out)
	if err != nil {
		return err
	}

	s, err := a.client.Register(ctx, *email, password, *name)
	if err != nil {
		return err
	}
	a.printf("Registered %s\n", s.User.Email)
	return nil
}

func cmdLogin(ctx context.Context, a *App, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "account email")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	if *email == "" {
		v, err := prompt(a.in, a.out, "Email")
		if err != nil {
			return err
		}
		*email = v
	}
	password, err := promptPassword(a.in, a.out)
	if err != nil {
		return err
	}

	s, err := a.client.Login(ctx, *email, password)
	if err != nil {
		return err
	}
	a.printf("Signed in as %s\n", s.User.Email)
	return nil
}

func cmdDevLogin(_ context.Context, a *App, args []string) error {
	fs := a.flags("dev-login")
	email := fs.String("email", "", "dev email")
	name := fs.String("name", "", "dev name")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}
	s, err := a.client.DevSignIn(*email, *name)
	if err != nil {
		return err
	}
	a.printf("Dev session for %s (%s)\n", s.User.Email, s.User.ID)
	return nil
}

func cmdLogout(ctx context.Context, a *App, _ []string) error {
	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	a.printf("Signed out\n")
	return nil
}

func cmdWhoami(ctx context.Context, a *App, _ []string) error {
	u, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	a.printf("%s <%s> %s\n", u.Name, u.Email, u.ID)
	return nil
}

func cmdProjects(ctx context.Context, a *App, _ []string) error {
	projects, err := a.client.ListProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		a.printf("No projects yet. Try: builder generate a todo app\n")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFILES\tUPDATED")
	for _, p := range projects {
		name := p.Name
		if client.IsOffline(&p) {
			name += " (offline)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.ID, name, len(p.Files), p.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func cmdShow(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("show"), args, 1)
	if err != nil {
		return err
	}
	p, err := a.client.GetProject(ctx, rest[0])
	if err != nil {
		return err
	}
	a.printProject(p)
	return nil
}

func (a *App) printProject(p *model.Project) {
	a.printf("%s  %s\n", p.ID, p.Name)
	if p.Description != "" && p.Description != p.Name {
		a.printf("  %s\n", p.Description)
	}
	a.printf("  stack: %s / %s / %s\n", p.TechStack.Frontend, p.TechStack.Backend, p.TechStack.Database)
	if len(p.RequiredServices) > 0 {
		a.printf("  services: %s\n", strings.Join(p.RequiredServices, ", "))
	}
	for _, f := range p.Files {
		a.printf("  %-32s %6d bytes  %s\n", f.Path, len(f.Content), f.Language)
	}
}

func cmdGenerate(ctx context.Context, a *App, args []string) error {
	fs := a.flags("generate")
	offline := fs.Bool("offline", false, "create the project locally without calling the server")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	promptText := joinArgs(rest)

	var (
		p        *model.Project
		isOnline = !*offline
	)
	if *offline {
		p, err = a.client.CreateOffline(promptText)
	} else {
		var fellBack bool
		p, fellBack, err = a.client.Generate(ctx, promptText, nil)
		isOnline = !fellBack
	}
	if err != nil {
		return err
	}

	if !isOnline {
		fmt.Fprintln(a.errOut, "server unavailable, created a local project")
	}
	a.printProject(p)
	return nil
}

func cmdDelete(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("delete"), args, 1)
	if err != nil {
		return err
	}
	if err := a.client.DeleteProject(ctx, rest[0]); err != nil {
		return err
	}
	a.printf("Project deleted\n")
	return nil
}

func cmdPut(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("put"), args, 3)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(rest[2])
	if err != nil {
		return err
	}
	p, err := a.client.PutFiles(ctx, rest[0], []model.File{{Path: rest[1], Content: string(data)}})
	if err != nil {
		return err
	}
	a.printf("Updated %s (%d files)\n", rest[1], len(p.Files))
	return nil
}

func cmdPreview(ctx context.Context, a *App, args []string) error {
	fs := a.flags("preview")
	editable := fs.Bool("editable", false, "inject the visual styler")
	out := fs.String("o", "preview.html", "output file")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	p, err := a.client.GetProject(ctx, rest[0])
	if err != nil {
		return err
	}
	if err := client.WritePreview(p, *editable, *out); err != nil {
		return err
	}
	a.printf("Preview written to %s\n", *out)
	return nil
}

// cmdStyles saves the first <style> block of an edited preview document, or
// a plain stylesheet, into the project's first CSS file.
func cmdStyles(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("styles"), args, 2)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(rest[1])
	if err != nil {
		return err
	}
	styles := string(data)
	if block, ok := preview.FirstStyleBlock(styles); ok {
		styles = block
	}

	_, saved, err := a.client.SaveStyles(ctx, rest[0], styles)
	if err != nil {
		return err
	}
	if !saved {
		a.printf("No CSS file found to save styles into\n")
		return nil
	}
	a.printf("Styles saved\n")
	return nil
}

func cmdPlan(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("plan"), args, 2)
	if err != nil {
		return err
	}
	reply, err := a.client.Plan(ctx, rest[0], joinArgs(rest[1:]), nil)
	if err != nil {
		return err
	}
	a.printf("%s\n", reply)
	return nil
}

func cmdBuild(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("build"), args, 2)
	if err != nil {
		return err
	}
	reply, err := a.client.Build(ctx, rest[0], joinArgs(rest[1:]), nil)
	if err != nil {
		return err
	}
	a.printf("%s\n", reply.Response)
	for _, u := range reply.FileUpdates {
		a.printf("  updated %s\n", u.Path)
	}
	return nil
}

func cmdSnapshots(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("snapshots"), args, 1)
	if err != nil {
		return err
	}
	snaps, err := a.client.ListSnapshots(ctx, rest[0])
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMESSAGE\tFILES\tSIZE\tAUTO")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\n", s.ID, s.Message, s.FileCount, s.TotalSize, s.AutoCreated)
	}
	return tw.Flush()
}

func cmdSnapshot(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("snapshot"), args, 1)
	if err != nil {
		return err
	}
	snap, created, err := a.client.CreateSnapshot(ctx, rest[0], joinArgs(rest[1:]))
	if err != nil {
		return err
	}
	if !created {
		a.printf("No changes since %s\n", snap.ID)
		return nil
	}
	a.printf("Created %s\n", snap.ID)
	return nil
}

func cmdRestore(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("restore"), args, 2)
	if err != nil {
		return err
	}
	p, err := a.client.RestoreSnapshot(ctx, rest[0], rest[1])
	if err != nil {
		return err
	}
	a.printf("Restored %s to %s (%d files)\n", p.ID, rest[1], len(p.Files))
	return nil
}

func cmdCompare(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("compare"), args, 3)
	if err != nil {
		return err
	}
	diff, err := a.client.CompareSnapshots(ctx, rest[0], rest[1], rest[2])
	if err != nil {
		return err
	}
	for _, p := range diff.Added {
		a.printf("+ %s\n", p)
	}
	for _, p := range diff.Removed {
		a.printf("- %s\n", p)
	}
	for _, p := range diff.Modified {
		a.printf("~ %s\n", p)
	}
	return nil
}

func cmdStatus(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("status"), args, 1)
	if err != nil {
		return err
	}
	st, err := a.client.DeploymentStatus(ctx, rest[0])
	if err != nil {
		return err
	}
	if d := st.Deployment; d != nil {
		a.printf("%s on %s: %s %s\n", d.ID, d.Platform, d.Status, d.URL)
	}
	if p := st.Provider; p != nil {
		a.printf("provider: %s", p.Status)
		if p.Error != "" {
			a.printf(" (%s)", p.Error)
		}
		a.printf("\n")
	}
	return nil
}

func cmdExport(ctx context.Context, a *App, args []string) error {
	rest, err := parse(a.flags("export"), args, 1)
	if err != nil {
		return err
	}
	res, err := a.client.Export(ctx, rest[0])
	if err != nil {
		return err
	}
	if res.DownloadURL != "" {
		if res.ExpiresAt != nil {
			a.printf("Download link expires at %s\n", res.ExpiresAt.Local().Format(time.Kitchen))
		}
		a.printf("%s\n", res.DownloadURL)
		return nil
	}
	for _, f := range res.Files {
		a.printf("%s\n", f.Path)
	}
	a.printf("%s\n", res.Instructions)
	return nil
}

func cmdPush(ctx context.Context, a *App, args []string) error {
	fs := a.flags("push")
	var req gitpush.Request
	fs.StringVar(&req.Token, "token", os.Getenv("GITHUB_TOKEN"), "GitHub token (default $GITHUB_TOKEN)")
	fs.StringVar(&req.Owner, "owner", "", "repository owner")
	fs.StringVar(&req.Repo, "repo", "", "repository name")
	fs.StringVar(&req.Branch, "branch", "", "branch (default main)")
	fs.StringVar(&req.CommitMessage, "m", "", "commit message")
	rest, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	if req.Token == "" {
		return errors.New("a GitHub token is required (-token or $GITHUB_TOKEN)")
	}

	res, err := a.client.PushGitHub(ctx, rest[0], req)
	if err != nil {
		return err
	}
	a.printf("Pushed %d files to %s (%s)\n", res.FilesPushed, res.URL, res.CommitSHA)
	return nil
}
