package config

import (
	"context"
	"log/slog"
	"slices"

	"golang.org/x/text/language"

	"github.com/minios-linux/i18ncms/gitprovider"
)

// Source is the part of the provider contract the resolver reads from.
type Source interface {
	GetContent(ctx context.Context, ref gitprovider.ContentRef) ([]byte, error)
	GetTree(ctx context.Context, in gitprovider.TreeInput) ([]string, error)
}

// Resolved is the configuration of a branch together with the namespaces
// and languages it holds.
type Resolved struct {
	Config     *RepoConfig
	Namespaces []string
	Languages  []string
}

// Resolver loads the configuration file of a branch and enumerates its
// namespaces and languages.
type Resolver struct {
	src Source
	log *slog.Logger
}

// NewResolver returns a resolver reading through src. A nil log uses
// slog.Default().
func NewResolver(src Source, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{src: src, log: log}
}

// Load fetches and decodes the configuration file. A missing file fails
// with gitprovider.ErrConfigNotFound.
func (r *Resolver) Load(ctx context.Context, repo gitprovider.RepoRef, branch string) (*RepoConfig, error) {
	data, err := r.src.GetContent(ctx, gitprovider.ContentRef{RepoRef: repo, Path: Path, Ref: branch})
	if err != nil {
		if gitprovider.CodeOf(err) == gitprovider.CodeContentNotFound {
			return nil, gitprovider.Wrap(gitprovider.CodeConfigNotFound, "getConfig", err)
		}
		return nil, err
	}
	return Decode(data)
}

// Resolve loads the configuration and lists namespaces and languages. With
// explicit lists in the file they are used as is. Otherwise namespaces are
// the distinct :ns captures under the default language's directory, in
// tree order, and languages are the configured ones followed by any other
// :lng captures found in the tree next to a known namespace.
func (r *Resolver) Resolve(ctx context.Context, repo gitprovider.RepoRef, branch string) (*Resolved, error) {
	cfg, err := r.Load(ctx, repo, branch)
	if err != nil {
		return nil, err
	}
	if cfg.HasExplicitLists() {
		return &Resolved{
			Config:     cfg,
			Namespaces: slices.Clone(cfg.Namespaces),
			Languages:  withDefault(cfg.Languages, cfg.DefaultLanguage),
		}, nil
	}

	pat := cfg.SourcePattern()
	nsPrefix := pat.Prefix(cfg.DefaultLanguage)
	nsTree, err := r.src.GetTree(ctx, gitprovider.TreeInput{RepoRef: repo, Branch: branch, PathPrefix: nsPrefix})
	if err != nil {
		return nil, err
	}
	nsMatcher := pat.Matcher(cfg.DefaultLanguage)
	var namespaces []string
	for _, p := range nsTree {
		if _, ns, ok := nsMatcher.Match(p); ok && !slices.Contains(namespaces, ns) {
			namespaces = append(namespaces, ns)
		}
	}

	lngTree := nsTree
	if lngPrefix := pat.Prefix(""); lngPrefix != nsPrefix {
		lngTree, err = r.src.GetTree(ctx, gitprovider.TreeInput{RepoRef: repo, Branch: branch, PathPrefix: lngPrefix})
		if err != nil {
			return nil, err
		}
	}
	languages := withDefault(cfg.Languages, cfg.DefaultLanguage)
	lngMatcher := pat.Matcher("")
	for _, p := range lngTree {
		lng, ns, ok := lngMatcher.Match(p)
		if !ok || slices.Contains(languages, lng) {
			continue
		}
		// Only siblings of the default language's files count, so unrelated
		// directories at the pattern root are not taken for languages.
		if !slices.Contains(namespaces, ns) {
			continue
		}
		if _, err := language.Parse(lng); err != nil {
			continue
		}
		languages = append(languages, lng)
	}

	r.log.Debug("resolved repository config",
		"repo", repo.FullName(), "branch", branch,
		"namespaces", len(namespaces), "languages", languages)

	return &Resolved{Config: cfg, Namespaces: namespaces, Languages: languages}, nil
}

// withDefault returns a copy of langs with def appended when missing.
func withDefault(langs []string, def string) []string {
	out := slices.Clone(langs)
	if !slices.Contains(out, def) {
		out = append(out, def)
	}
	return out
}
