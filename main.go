// i18ncms is a translation editor for locale files stored in GitHub, GitLab and
// Bitbucket repositories.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/minios-linux/i18ncms/config"
	"github.com/minios-linux/i18ncms/editor"
	"github.com/minios-linux/i18ncms/gitprovider"
	"github.com/minios-linux/i18ncms/i18n"
	"github.com/minios-linux/i18ncms/langmeta"
	"github.com/minios-linux/i18ncms/localefile"
	"github.com/minios-linux/i18ncms/logging"
	"github.com/minios-linux/i18ncms/reconcile"
	"github.com/minios-linux/i18ncms/repostore"
	"github.com/minios-linux/i18ncms/session"
	"github.com/minios-linux/i18ncms/settings"
	"github.com/minios-linux/i18ncms/workspace"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

var useColor = true

func paint(color, s string) string {
	if !useColor {
		return s
	}
	return color + s + colorReset
}

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, paint(colorBlue, "[INFO]")+" "+i18n.T(format)+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, paint(colorGreen, "[OK]")+" "+i18n.T(format)+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, paint(colorYellow, "[WARN]")+" "+i18n.T(format)+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, paint(colorRed, "[ERROR]")+" "+i18n.T(format)+"\n", args...)
}

// ---------------------------------------------------------------------------
// Application context
// ---------------------------------------------------------------------------

// app holds what every command needs: process settings, the logger, the
// credential store and the repository registry.
type app struct {
	cfg      settings.Config
	log      *slog.Logger
	creds    *settings.FileStore
	registry *repostore.Store
}

func newApp() (*app, error) {
	cfg, err := settings.LoadConfig()
	if err != nil {
		return nil, err
	}
	useColor = cfg.Colored()

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		logWarning("Invalid log level %q, using info", cfg.LogLevel)
		level = slog.LevelInfo
	}
	log := logging.New(os.Stderr, level, cfg.Colored())
	slog.SetDefault(log)

	dir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, err
	}
	path, err := cfg.SessionPath()
	if err != nil {
		return nil, err
	}
	reg, err := repostore.Load(dir)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, creds: settings.NewFileStore(path), registry: reg}, nil
}

func (a *app) client() (*session.Client, error) {
	c, err := session.New(session.Options{Config: a.cfg, Store: a.creds, Log: a.log})
	if errors.Is(err, settings.ErrNoSession) {
		return nil, fmt.Errorf("%w (run 'i18ncms auth login')", err)
	}
	return c, err
}

func (a *app) workspace(p gitprovider.Provider) (*workspace.Workspace, error) {
	return workspace.New(workspace.Options{
		Provider: p,
		Registry: a.registry,
		Log:      a.log,
		Notifier: editor.NotifierFunc(func(h editor.ScrollHint) {
			a.log.Debug("scroll to row", "namespace", h.Namespace, "index", h.Index, "align", string(h.Align))
		}),
		CacheSize:      a.cfg.ContentCacheSize,
		RecentBranches: a.cfg.RecentBranches,
	})
}

// branchFlags select the branch a command works on.
type branchFlags struct {
	branch string
	from   string
}

func (f *branchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.branch, "branch", "b", "", "Branch to edit (default: the repository default branch)")
	cmd.Flags().StringVar(&f.from, "from", "", "Create the branch from this base branch")
}

// open opens repo and selects the branch given by flags.
func (a *app) open(ctx context.Context, repoArg string, f branchFlags) (*workspace.Workspace, *config.Resolved, error) {
	ref, err := parseRepoArg(repoArg)
	if err != nil {
		return nil, nil, err
	}
	c, err := a.client()
	if err != nil {
		return nil, nil, err
	}
	w, err := a.workspace(c)
	if err != nil {
		return nil, nil, err
	}
	repo, err := w.OpenRepo(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if f.from != "" && f.branch == "" {
		return nil, nil, errors.New("--from needs --branch to name the new branch")
	}
	name := f.branch
	if name == "" {
		name = repo.DefaultBranch
		if recent := w.RecentBranches(); len(recent) > 0 {
			name = recent[0]
		}
	}
	resolved, err := w.UseBranch(ctx, workspace.BranchRequest{Name: name, Base: f.from})
	if errors.Is(err, gitprovider.ErrConfigNotFound) {
		return nil, nil, fmt.Errorf("%w (run 'i18ncms config init %s')", err, ref.FullName())
	}
	if err != nil {
		return nil, nil, err
	}
	return w, resolved, nil
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "i18ncms",
		Short: "Edit translation files stored in git repositories",
		Long: `i18ncms edits locale files (JSON, YAML, .properties) kept in a GitHub,
GitLab or Bitbucket repository and saves every change as a single commit.

The repository describes its layout in .i18n-cms/config.json.

Commands:
  auth        Manage git provider credentials
  whoami      Show the logged in user and organizations
  repo        Open, create and list repositories
  config      Create the repository configuration
  namespaces  List namespaces and languages of a branch
  show        Print the translations of a namespace
  find        Search a namespace, optionally replacing matches
  set         Set translations of a key
  check       Report duplicated keys
  languages   Show language names and flags`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newAuthCmd(),
		newWhoamiCmd(),
		newRepoCmd(),
		newConfigCmd(),
		newNamespacesCmd(),
		newShowCmd(),
		newFindCmd(),
		newSetCmd(),
		newCheckCmd(),
		newLanguagesCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	i18n.Init("")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logError("%v", err)
		if hint := errorHint(err); hint != "" {
			logInfo("%s", hint)
		}
		os.Exit(1)
	}
}

// errorHint suggests what to do about a provider error.
func errorHint(err error) string {
	var dup *reconcile.DuplicateKeysError
	if errors.As(err, &dup) {
		return i18n.T("Rename or remove the duplicated keys, then save again")
	}
	switch gitprovider.CodeOf(err) {
	case gitprovider.CodeCredentialInvalid:
		return i18n.T("Your credentials were rejected; run 'i18ncms auth login' again")
	case gitprovider.CodeBranchPermissionViolated:
		return i18n.T("The branch is protected; use --from to create a new branch")
	case gitprovider.CodeBranchNotFound:
		return i18n.T("Use --from to create the branch")
	}
	return ""
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("i18ncms version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage git provider credentials",
	}
	cmd.AddCommand(newAuthLoginCmd(), newAuthLogoutCmd(), newAuthStatusCmd())
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		provider  string
		token     string
		refresh   string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store credentials for a git provider",
		Long: `Store an access token for GitHub, GitLab or Bitbucket.

Personal access tokens are used as is. OAuth tokens obtained elsewhere can be
stored with their refresh token and lifetime; they are then renewed
automatically when they expire (GitLab and Bitbucket).

Examples:
  i18ncms auth login --provider github --token ghp_xxx
  i18ncms auth login --provider gitlab --token xxx --refresh-token yyy --expires-in 2h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := gitprovider.ParseKind(provider)
			if !ok {
				return fmt.Errorf("unknown provider %q (github, gitlab, bitbucket)", provider)
			}
			if token == "" {
				return errors.New("--token is required")
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			sess := settings.Session{Provider: string(kind), AccessToken: token, RefreshToken: refresh}
			if expiresIn > 0 {
				sess.ExpiresAt = time.Now().Add(expiresIn)
			}
			if err := settings.SaveSession(a.creds, sess); err != nil {
				return err
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			user, err := c.GetCurrentUser(cmd.Context())
			if err != nil {
				_ = settings.ClearSession(a.creds)
				return err
			}
			logSuccess("Logged in to %s as %s", kind, user.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Git provider: github, gitlab or bitbucket")
	cmd.Flags().StringVar(&token, "token", "", "Access token")
	cmd.Flags().StringVar(&refresh, "refresh-token", "", "OAuth refresh token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Access token lifetime")
	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"github", "gitlab", "bitbucket"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := settings.ClearSession(a.creds); err != nil {
				return fmt.Errorf("removing credentials: %w", err)
			}
			logSuccess("Stored credentials removed")
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			sess, err := settings.LoadSession(a.creds)
			if errors.Is(err, settings.ErrNoSession) {
				logWarning("Not logged in")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "\n%s\n", paint(colorBlue, i18n.T("Stored Credentials")))
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
			fmt.Fprintf(os.Stderr, "  %-14s %s\n", i18n.T("provider"), sess.Provider)
			fmt.Fprintf(os.Stderr, "  %-14s %s\n", i18n.T("token"), settings.MaskToken(sess.AccessToken))
			if sess.Rotating() {
				state := paint(colorGreen, i18n.T("valid"))
				if time.Now().After(sess.ExpiresAt) {
					state = paint(colorYellow, i18n.T("expired, renewed on next use"))
				}
				fmt.Fprintf(os.Stderr, "  %-14s %s (%s)\n", i18n.T("expires"), sess.ExpiresAt.Format(time.RFC3339), state)
			}
			fmt.Fprintf(os.Stderr, "  %-14s %s\n\n", i18n.T("file"), a.creds.Path())
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// whoami
// ---------------------------------------------------------------------------

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user and organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			user, err := c.GetCurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			orgs, err := c.GetOrganizations(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s (%s)\n", user.Name, c.Kind())
			for _, o := range orgs {
				fmt.Printf("  %s\n", o.Name)
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// repo
// ---------------------------------------------------------------------------

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Open, create and list repositories",
	}
	cmd.AddCommand(newRepoOpenCmd(), newRepoCreateCmd(), newRepoListCmd())
	return cmd
}

func newRepoOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open OWNER/REPO",
		Short: "Check access to a repository and remember it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			w, err := a.workspace(c)
			if err != nil {
				return err
			}
			repo, err := w.OpenRepo(cmd.Context(), ref)
			if err != nil {
				return err
			}
			logSuccess("Opened %s (default branch %s)", repo.FullName, repo.DefaultBranch)
			if recent := w.RecentBranches(); len(recent) > 0 {
				logInfo("Recent branches: %s", strings.Join(recent, ", "))
			}
			return nil
		},
	}
}

func newRepoCreateCmd() *cobra.Command {
	var (
		org     string
		private bool
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			in := gitprovider.CreateRepoInput{Name: args[0], Visibility: gitprovider.Public}
			if private {
				in.Visibility = gitprovider.Private
			}
			if org != "" {
				orgs, err := c.GetOrganizations(cmd.Context())
				if err != nil {
					return err
				}
				i := slices.IndexFunc(orgs, func(o gitprovider.Organization) bool { return o.Name == org })
				if i < 0 {
					return fmt.Errorf("organization %q not found", org)
				}
				in.Owner = gitprovider.Owner{Name: orgs[i].Name, ID: orgs[i].ID, IsOrg: true}
			}
			w, err := a.workspace(c)
			if err != nil {
				return err
			}
			repo, err := w.CreateRepo(cmd.Context(), in)
			if err != nil {
				return err
			}
			logSuccess("Created %s", repo.FullName)
			return nil
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "Create the repository in this organization")
	cmd.Flags().BoolVar(&private, "private", false, "Create a private repository")
	return cmd
}

func newRepoListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List repositories opened before",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			provider := ""
			if !all {
				if sess, err := settings.LoadSession(a.creds); err == nil {
					provider = sess.Provider
				}
			}
			repos := a.registry.List(provider)
			if len(repos) == 0 {
				logInfo("No repositories yet")
				return nil
			}
			for _, r := range repos {
				fmt.Printf("%-10s %-40s %s\n", r.Provider, r.FullName, strings.Join(r.RecentBranches, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "List repositories of every provider")
	return cmd
}

// ---------------------------------------------------------------------------
// config
// ---------------------------------------------------------------------------

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the repository configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		branch    string
		fileType  string
		pattern   string
		target    string
		languages []string
		def       string
	)
	cmd := &cobra.Command{
		Use:   "init OWNER/REPO",
		Short: "Commit " + config.Path + " to a branch",
		Long: `Create the configuration file describing where translation files live.

The pattern uses :lng for the language and :ns for the namespace; the file
extension is added from --file-type.

Examples:
  i18ncms config init acme/site --languages en,fr --pattern locales/:lng/:ns
  i18ncms config init acme/site --file-type yaml --default de --languages de,en`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRepoArg(args[0])
			if err != nil {
				return err
			}
			ft, err := localefile.ParseFileType(fileType)
			if err != nil {
				return err
			}
			cfg := &config.RepoConfig{
				FileType:        ft,
				Pattern:         pattern,
				TargetPattern:   target,
				DefaultLanguage: def,
				Languages:       languages,
			}
			data, err := config.Encode(cfg)
			if err != nil {
				return err
			}
			if cfg, err = config.Decode(data); err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			w, err := a.workspace(c)
			if err != nil {
				return err
			}
			repo, err := w.OpenRepo(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if branch == "" {
				branch = repo.DefaultBranch
			}
			res, err := w.SetupConfig(cmd.Context(), branch, cfg)
			if err != nil {
				return err
			}
			logSuccess("Configuration committed to %s: %s", branch, res.URL)
			return nil
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch to commit to (default: the repository default branch)")
	cmd.Flags().StringVar(&fileType, "file-type", "json", "Translation file type: json, yaml or properties")
	cmd.Flags().StringVar(&pattern, "pattern", config.DefaultPattern, "Path pattern of translation files")
	cmd.Flags().StringVar(&target, "target-pattern", "", "Path pattern to write files to, if different")
	cmd.Flags().StringSliceVar(&languages, "languages", nil, "Languages (comma separated)")
	cmd.Flags().StringVar(&def, "default", "", "Default language (default: the first language)")
	return cmd
}

// ---------------------------------------------------------------------------
// namespaces
// ---------------------------------------------------------------------------

func newNamespacesCmd() *cobra.Command {
	var bf branchFlags
	cmd := &cobra.Command{
		Use:     "namespaces OWNER/REPO",
		Aliases: []string{"ns"},
		Short:   "List namespaces and languages of a branch",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			w, resolved, err := a.open(cmd.Context(), args[0], bf)
			if err != nil {
				return err
			}
			branch, _ := w.Branch()
			logInfo("Branch %s, file type %s", branch, resolved.Config.FileType)
			fmt.Println(i18n.T("Namespaces:"))
			for _, ns := range resolved.Namespaces {
				fmt.Printf("  %s\n", ns)
			}
			fmt.Println(i18n.T("Languages:"))
			for _, lng := range w.Store().Languages() {
				fmt.Printf("  %s\n", langCell(lng, resolved.Config.DefaultLanguage))
			}
			return nil
		},
	}
	bf.register(cmd)
	return cmd
}

// ---------------------------------------------------------------------------
// show
// ---------------------------------------------------------------------------

func newShowCmd() *cobra.Command {
	var (
		bf    branchFlags
		langs []string
	)
	cmd := &cobra.Command{
		Use:   "show OWNER/REPO NAMESPACE",
		Short: "Print the translations of a namespace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			w, _, err := a.open(cmd.Context(), args[0], bf)
			if err != nil {
				return err
			}
			if err := loadNamespace(cmd.Context(), w, args[1]); err != nil {
				return err
			}
			if err := restrictLanguages(w.Store(), langs); err != nil {
				return err
			}
			rows, err := w.Store().Rows(args[1])
			if err != nil {
				return err
			}
			printRows(os.Stdout, rows, w.Store().VisibleLanguages())
			return nil
		},
	}
	bf.register(cmd)
	cmd.Flags().StringSliceVar(&langs, "lang", nil, "Only show these languages")
	return cmd
}

// ---------------------------------------------------------------------------
// find
// ---------------------------------------------------------------------------

func newFindCmd() *cobra.Command {
	var (
		bf      branchFlags
		langs   []string
		replace string
		doAll   bool
		message string
	)
	cmd := &cobra.Command{
		Use:   "find OWNER/REPO NAMESPACE TEXT",
		Short: "Search a namespace, optionally replacing matches",
		Long: `Search keys and the values of the shown languages for TEXT, ignoring case.

With --replace the first match (or every match with --all) is replaced in the
values of the shown languages and the result is committed.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			w, _, err := a.open(cmd.Context(), args[0], bf)
			if err != nil {
				return err
			}
			st := w.Store()
			if err := loadNamespace(cmd.Context(), w, args[1]); err != nil {
				return err
			}
			if err := restrictLanguages(st, langs); err != nil {
				return err
			}

			st.SetFindText(args[2])
			matches := st.Matches()
			if len(matches) == 0 {
				logInfo("No matches")
				return nil
			}
			all, err := st.Rows(args[1])
			if err != nil {
				return err
			}
			rows := make([]editor.Row, 0, len(matches))
			for _, m := range matches {
				rows = append(rows, all[m.Row])
			}
			printRows(os.Stdout, rows, st.VisibleLanguages())
			logInfo(i18n.N("%d match", "%d matches", len(matches)), len(matches))

			if !cmd.Flags().Changed("replace") {
				return nil
			}
			var n int
			if doAll {
				n = st.ReplaceAll(replace)
			} else {
				n = st.ReplaceCurrent(replace)
			}
			logInfo(i18n.N("%d value replaced", "%d values replaced", n), n)
			return save(cmd.Context(), w, message)
		},
	}
	bf.register(cmd)
	cmd.Flags().StringSliceVar(&langs, "lang", nil, "Only search these languages")
	cmd.Flags().StringVar(&replace, "replace", "", "Replacement text")
	cmd.Flags().BoolVar(&doAll, "all", false, "Replace every match")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	return cmd
}

// ---------------------------------------------------------------------------
// set
// ---------------------------------------------------------------------------

func newSetCmd() *cobra.Command {
	var (
		bf      branchFlags
		rename  string
		remove  bool
		message string
	)
	cmd := &cobra.Command{
		Use:   "set OWNER/REPO NAMESPACE KEY [LANG=VALUE...]",
		Short: "Set translations of a key",
		Long: `Set the values of KEY in a namespace and commit the change. The key is
added when missing.

Examples:
  i18ncms set acme/site common nav.home en=Home fr=Accueil
  i18ncms set acme/site common nav.home --rename nav.start
  i18ncms set acme/site common nav.home --delete`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(args[3:])
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			w, _, err := a.open(cmd.Context(), args[0], bf)
			if err != nil {
				return err
			}
			ns, key := args[1], args[2]
			if err := loadNamespace(cmd.Context(), w, ns); err != nil {
				return err
			}
			if err := applySet(w.Store(), ns, key, rename, remove, values); err != nil {
				return err
			}
			return save(cmd.Context(), w, message)
		},
	}
	bf.register(cmd)
	cmd.Flags().StringVar(&rename, "rename", "", "New name of the key")
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the key")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	return cmd
}

// applySet edits the row of key in the selected namespace ns.
func applySet(st *editor.Store, ns, key, rename string, remove bool, values map[string]string) error {
	rows, err := st.Rows(ns)
	if err != nil {
		return err
	}
	index := slices.IndexFunc(rows, func(r editor.Row) bool { return r.Key == key })

	if remove {
		if index < 0 {
			return fmt.Errorf("key %q not found in %s", key, ns)
		}
		return st.DeleteRow(index)
	}

	var id string
	if index < 0 {
		if id, err = st.Append(); err != nil {
			return err
		}
		if err := st.SetKey(id, key); err != nil {
			return err
		}
	} else {
		id = rows[index].ID
	}
	if rename != "" {
		if err := st.SetKey(id, rename); err != nil {
			return err
		}
	}
	langs := make([]string, 0, len(values))
	for lng := range values {
		langs = append(langs, lng)
	}
	sort.Strings(langs)
	for _, lng := range langs {
		if err := st.SetValue(lng, id, values[lng]); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// check
// ---------------------------------------------------------------------------

func newCheckCmd() *cobra.Command {
	var bf branchFlags
	cmd := &cobra.Command{
		Use:   "check OWNER/REPO",
		Short: "Report duplicated keys in every namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			w, resolved, err := a.open(cmd.Context(), args[0], bf)
			if err != nil {
				return err
			}
			found := make(map[string]map[string]int)
			for _, ns := range resolved.Namespaces {
				if err := loadNamespace(cmd.Context(), w, ns); err != nil {
					return err
				}
				dups, err := w.Store().DuplicateKeys(ns)
				if err != nil {
					return err
				}
				if len(dups) > 0 {
					found[ns] = dups
				}
			}
			if len(found) == 0 {
				logSuccess("No duplicated keys in %d namespaces", len(resolved.Namespaces))
				return nil
			}
			for _, line := range formatDuplicates(found) {
				fmt.Println(line)
			}
			return &reconcile.DuplicateKeysError{Keys: found}
		},
	}
	bf.register(cmd)
	return cmd
}

// ---------------------------------------------------------------------------
// languages
// ---------------------------------------------------------------------------

func newLanguagesCmd() *cobra.Command {
	var bf branchFlags
	var repoArg string
	cmd := &cobra.Command{
		Use:   "languages [CODE...]",
		Short: "Show language names and flags",
		Long: `Show the native name and flag of language codes, or of every language of a
repository branch with --repo.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			codes, def := args, ""
			if repoArg != "" {
				a, err := newApp()
				if err != nil {
					return err
				}
				w, resolved, err := a.open(cmd.Context(), repoArg, bf)
				if err != nil {
					return err
				}
				codes, def = w.Store().Languages(), resolved.Config.DefaultLanguage
			}
			if len(codes) == 0 {
				codes = i18n.Available()
			}
			for _, code := range codes {
				fmt.Println(langCell(code, def))
			}
			return nil
		},
	}
	bf.register(cmd)
	cmd.Flags().StringVar(&repoArg, "repo", "", "List the languages of OWNER/REPO")
	return cmd
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

// parseRepoArg splits "owner/repo". GitLab subgroups keep their path in
// the owner: "group/sub/repo".
func parseRepoArg(s string) (gitprovider.RepoRef, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	i := strings.LastIndexByte(s, '/')
	if i <= 0 || i == len(s)-1 {
		return gitprovider.RepoRef{}, fmt.Errorf("invalid repository %q, want OWNER/REPO", s)
	}
	return gitprovider.RepoRef{Owner: s[:i], Repo: s[i+1:]}, nil
}

// parseAssignments parses LANG=VALUE arguments. Values may be empty and
// may contain '='.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		lng, value, ok := strings.Cut(arg, "=")
		lng = strings.TrimSpace(lng)
		if !ok || lng == "" {
			return nil, fmt.Errorf("invalid assignment %q, want LANG=VALUE", arg)
		}
		if _, dup := out[lng]; dup {
			return nil, fmt.Errorf("language %q given twice", lng)
		}
		out[lng] = value
	}
	return out, nil
}

func loadNamespace(ctx context.Context, w *workspace.Workspace, ns string) error {
	loaded, err := w.SelectNamespace(ctx, ns)
	if err != nil {
		return err
	}
	if !loaded {
		return fmt.Errorf("namespace %q was not loaded", ns)
	}
	return nil
}

// restrictLanguages shows only langs; an empty list shows every language.
func restrictLanguages(st *editor.Store, langs []string) error {
	if len(langs) == 0 {
		return nil
	}
	st.SetAllLanguagesVisible(false)
	for _, lng := range langs {
		if err := st.SetLanguageVisible(strings.TrimSpace(lng), true); err != nil {
			return err
		}
	}
	return nil
}

func save(ctx context.Context, w *workspace.Workspace, message string) error {
	res, err := w.Save(ctx, message)
	if errors.Is(err, reconcile.ErrNothingToSave) {
		logInfo("Nothing to save")
		return nil
	}
	if err != nil {
		return err
	}
	logSuccess("Saved: %s", res.URL)
	return nil
}

// printRows prints rows as a table of the key and one column per language.
// Missing values print as "-".
func printRows(w io.Writer, rows []editor.Row, langs []string) {
	keyWidth := utf8.RuneCountInString(i18n.T("KEY"))
	for _, r := range rows {
		keyWidth = max(keyWidth, utf8.RuneCountInString(r.Key))
	}
	header := []string{padRight(i18n.T("KEY"), keyWidth)}
	for _, lng := range langs {
		header = append(header, lng)
	}
	fmt.Fprintln(w, strings.Join(header, "  "))
	for _, r := range rows {
		cols := []string{padRight(r.Key, keyWidth)}
		for _, lng := range langs {
			v, ok := r.Values[lng]
			if !ok {
				v = "-"
			}
			cols = append(cols, strings.ReplaceAll(v, "\n", `\n`))
		}
		fmt.Fprintln(w, strings.Join(cols, "  "))
	}
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// langCell renders "flag code  native name", marking the default language.
func langCell(code, def string) string {
	m := langmeta.Resolve(code)
	flag := m.Flag
	if flag == "" {
		flag = "  "
	}
	cell := fmt.Sprintf("%s %-8s %s", flag, code, m.Name)
	if code == def {
		cell += " " + paint(colorGreen, i18n.T("(default)"))
	}
	return cell
}

// formatDuplicates renders one sorted line per namespace and key.
func formatDuplicates(found map[string]map[string]int) []string {
	var lines []string
	namespaces := make([]string, 0, len(found))
	for ns := range found {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		keys := make([]string, 0, len(found[ns]))
		for k := range found[ns] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s: %s (%d)", ns, k, found[ns][k]))
		}
	}
	return lines
}
