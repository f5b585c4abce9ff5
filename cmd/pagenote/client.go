package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xxxsen/pagenote/internal/client"
	"github.com/xxxsen/pagenote/internal/editor"
	"github.com/xxxsen/pagenote/internal/htmltext"
	"github.com/xxxsen/pagenote/internal/model"
	"github.com/xxxsen/pagenote/internal/pager"
	"github.com/xxxsen/pagenote/internal/state"
)

type clientOptions struct {
	server string
	token  string
}

func (o *clientOptions) api() *client.Client {
	return client.New(o.server, client.WithToken(o.token))
}

func (o *clientOptions) container() *state.Container {
	return state.New(o.api())
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClientCmd() *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "client",
		Short: "talk to a running pagenote server",
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("PAGENOTE_SERVER", "http://127.0.0.1:8080"), "server base url")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("PAGENOTE_TOKEN"), "bearer token from login")

	cmd.AddCommand(
		authCmd("login", opts),
		authCmd("register", opts),
		lsCmd(opts),
		createCmd(opts),
		showCmd(opts),
		catCmd(opts),
		writeCmd(opts),
		importCmd(opts),
		rmCmd(opts),
		favCmd(opts),
		tagCmd(opts),
		pageCmd(opts),
		outlineCmd(opts),
		assetCmd(opts),
		editCmd(opts),
	)
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func authCmd(name string, opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <email> <password>",
		Short: name + " and print a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := opts.api()
			var (
				res *client.AuthResult
				err error
			)
			if name == "register" {
				res, err = api.Register(cmd.Context(), args[0], args[1])
			} else {
				res, err = api.Login(cmd.Context(), args[0], args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Token)
			return nil
		},
	}
}

func lsCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "list notebooks, most recently edited first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.container().FetchAll(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, nb := range list {
				star := " "
				if nb.IsFavorite {
					star = "*"
				}
				fmt.Fprintf(out, "%s %s  %s  [%s]  %s\n", star, nb.ID, nb.Title, strings.Join(nb.Tags, ","), nb.Snippet)
			}
			return nil
		},
	}
}

func createCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create [title]",
		Short: "create a notebook",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := ""
			if len(args) == 1 {
				title = args[0]
			}
			id, err := opts.container().Create(cmd.Context(), title)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func showCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "print notebook metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nb, err := opts.container().GetOne(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), nb)
		},
	}
}

// resolvePage returns the requested page id or the first page in order.
func resolvePage(ctx context.Context, notes *state.Container, notebookID string, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	p := pager.New(notes, notebookID)
	if err := p.Load(ctx); err != nil {
		return "", err
	}
	page, _, _ := p.Active()
	return page.ID, nil
}

func catCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <id> [pageId]",
		Short: "print the html body of a page",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes := opts.container()
			pageID, err := resolvePage(cmd.Context(), notes, args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), notes.LoadContent(cmd.Context(), args[0], pageID))
			return nil
		},
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func writeCmd(opts *clientOptions) *cobra.Command {
	var pageID string
	cmd := &cobra.Command{
		Use:   "write <id> [file|-]",
		Short: "replace a page body with html from a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes := opts.container()
			pid, err := resolvePage(cmd.Context(), notes, args[0], []string{pageID})
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 2 {
				path = args[1]
			}
			body, err := readInput(cmd, path)
			if err != nil {
				return err
			}
			return notes.SaveContent(cmd.Context(), args[0], string(body), pid)
		},
	}
	cmd.Flags().StringVar(&pageID, "page", "", "page id, defaults to the first page")
	return cmd
}

func importCmd(opts *clientOptions) *cobra.Command {
	var pageID string
	cmd := &cobra.Command{
		Use:   "import <id> <file.md|->",
		Short: "render markdown to html and save it as a page body",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			html, err := htmltext.FromMarkdown(src)
			if err != nil {
				return err
			}
			notes := opts.container()
			pid, err := resolvePage(cmd.Context(), notes, args[0], []string{pageID})
			if err != nil {
				return err
			}
			return notes.SaveContent(cmd.Context(), args[0], html, pid)
		},
	}
	cmd.Flags().StringVar(&pageID, "page", "", "page id, defaults to the first page")
	return cmd
}

func rmCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "delete a notebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.container().Delete(cmd.Context(), args[0])
		},
	}
}

func favCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fav <id>",
		Short: "toggle the favorite flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes := opts.container()
			if _, err := notes.FetchAll(cmd.Context()); err != nil {
				return err
			}
			fav, err := notes.ToggleFavorite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), fav)
			return nil
		},
	}
}

func tagCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <id> add|rm <tag>",
		Short: "add or remove a tag",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := editor.NewSession(cmd.Context(), opts.container(), args[0])
			defer s.Close()
			switch args[1] {
			case "add":
				return s.AddTag(cmd.Context(), args[2])
			case "rm":
				return s.RemoveTag(cmd.Context(), args[2])
			}
			return fmt.Errorf("unknown tag action %q", args[1])
		},
	}
}

func pageCmd(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "page",
		Short: "manage the pages of a notebook",
	}
	load := func(ctx context.Context, id string) (*pager.Controller, error) {
		p := pager.New(opts.container(), id)
		return p, p.Load(ctx)
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls <id>",
			Short: "list pages in order",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, page := range p.Pages() {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", page.Order, page.ID, page.Title)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <id>",
			Short: "append a page",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				pageID, err := p.Add(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), pageID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <id> <pageId>",
			Short: "delete a page, the last page is kept",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := p.Goto(cmd.Context(), args[1]); err != nil {
					return err
				}
				return p.Delete(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "mv <id> <pageId> <title>",
			Short: "rename a page",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return p.Rename(cmd.Context(), args[1], args[2])
			},
		},
	)
	return cmd
}

func outlineCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "outline <id> [pageId]",
		Short: "print the headings of a page",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes := opts.container()
			pageID, err := resolvePage(cmd.Context(), notes, args[0], args[1:])
			if err != nil {
				return err
			}
			headings, err := htmltext.Outline(notes.LoadContent(cmd.Context(), args[0], pageID))
			if err != nil {
				return err
			}
			for _, h := range headings {
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", strings.Repeat("  ", h.Level-1), h.Text)
			}
			return nil
		},
	}
}

func assetCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "asset <file>",
		Short: "upload a file and print its public url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			name := filepath.Base(args[0])
			contentType := mime.TypeByExtension(filepath.Ext(name))
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			u, err := opts.container().UploadAsset(cmd.Context(), name, contentType, body)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
}

func editCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id>",
		Short: "line editor with autosave",
		Long: "Each input line is appended to the page as a paragraph and autosaved.\n" +
			"Commands: :next :prev :add :del :title <text> :tag <tag> :untag <tag> :show :save :quit",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEditor(cmd, opts.container(), args[0])
		},
	}
}

func runEditor(cmd *cobra.Command, notes *state.Container, notebookID string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	session := editor.NewSession(ctx, notes, notebookID, editor.WithStatusListener(func(st editor.Status) {
		fmt.Fprintf(errOut, "[%s]\n", st)
	}))
	defer session.Close()

	p := pager.New(notes, notebookID, pager.WithActivateHook(func(ctx context.Context, page model.Page) error {
		if err := session.Flush(ctx); err != nil {
			fmt.Fprintf(errOut, "save before switching failed: %v\n", err)
		}
		if err := session.Open(ctx, page.ID); err != nil {
			return err
		}
		fmt.Fprintf(out, "-- %s (%s)\n%s\n", page.Title, page.ID, htmltext.PlainText(session.HTML()))
		return nil
	}))
	if err := p.Load(ctx); err != nil {
		return err
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := scanner.Text()
		cmdName, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
		var err error
		switch cmdName {
		case ":quit", ":q":
			return session.Flush(ctx)
		case ":next":
			err = p.Next(ctx)
		case ":prev":
			err = p.Previous(ctx)
		case ":add":
			_, err = p.Add(ctx)
		case ":del":
			err = p.Delete(ctx)
		case ":title":
			err = session.SetTitle(ctx, rest)
		case ":tag":
			err = session.AddTag(ctx, rest)
		case ":untag":
			err = session.RemoveTag(ctx, rest)
		case ":save":
			err = session.Flush(ctx)
		case ":show":
			fmt.Fprintln(out, session.HTML())
		default:
			session.Edit(session.HTML() + "<p>" + htmlEscape(line) + "</p>")
		}
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return session.Flush(ctx)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
