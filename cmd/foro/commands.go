package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pders01/foro/internal/api"
	"github.com/pders01/foro/internal/debuglog"
	"github.com/pders01/foro/internal/forum"
	"github.com/pders01/foro/internal/media"
	"github.com/pders01/foro/internal/search"
	"github.com/pders01/foro/internal/storage"
)

var (
	searchLimit   int
	watchInterval time.Duration
)

var (
	authorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Bold(true)

	timeStyle = lipgloss.NewStyle().
			Foreground(forum.MutedColor).
			Faint(true)

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))
)

func addFeedCommands(root *cobra.Command) {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Refresh and print the feed",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			entries, err := a.controller.Load(ctx)
			if err != nil {
				return err
			}
			renderEntries(cmd.OutOrStdout(), entries, a.detector)
			a.notifier.Notify(forum.StatusInfo, forum.MsgFeedSummary(len(entries), 0))
			return nil
		}),
	}

	postCmd := &cobra.Command{
		Use:   "post <text>",
		Short: "Post text to the feed",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
			entry, err := a.controller.PostText(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			a.notifier.Notify(forum.StatusSuccess, forum.MsgPosted(entry.Content))
			return nil
		}),
	}

	editCmd := &cobra.Command{
		Use:   "edit <id> <text>",
		Short: "Replace the content of a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
			if _, err := a.controller.Load(ctx); err != nil {
				return err
			}
			return a.controller.Edit(ctx, args[0], strings.Join(args[1:], " "))
		}),
	}

	photoCmd := &cobra.Command{
		Use:   "photo",
		Short: "Capture a photo and post it",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			entry, err := a.controller.SendPhoto(ctx)
			if err != nil {
				return err
			}
			a.notifier.Notify(forum.StatusSuccess, forum.MsgPosted(entry.Content))
			return nil
		}),
	}

	fileCmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Upload a file and post its link",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
			entry, err := a.controller.SendFile(ctx, args[0])
			if err != nil {
				return err
			}
			a.notifier.Notify(forum.StatusSuccess, forum.MsgPosted(entry.Content))
			return nil
		}),
	}

	locationCmd := &cobra.Command{
		Use:   "location",
		Short: "Post a map link to the current position",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			_, err := a.controller.ShareLocation(ctx)
			return err
		}),
	}

	jokeCmd := &cobra.Command{
		Use:   "joke",
		Short: "Fetch a random joke and post it",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			entry, err := a.controller.PostJoke(ctx)
			if err != nil {
				return err
			}
			a.notifier.Notify(forum.StatusSuccess, forum.MsgPosted(entry.Content))
			return nil
		}),
	}

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search posts by content and author",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if err := a.openSearch(); err != nil {
				return err
			}
			if _, err := a.controller.Load(ctx); err != nil {
				return err
			}
			entries, err := searchEntries(a.index, strings.Join(args, " "), searchLimit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				a.notifier.Notify(forum.StatusInfo, forum.MsgNoResults)
				return nil
			}
			renderEntries(cmd.OutOrStdout(), entries, a.detector)
			a.notifier.Notify(forum.StatusInfo, forum.MsgResultsCount(len(entries)))
			return nil
		}),
	}
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of results")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the feed on every update, refreshing on an interval",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			return watch(ctx, a, cmd.OutOrStdout(), watchInterval)
		}),
	}
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "Refresh interval")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local backend over the hosted REST and storage API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	root.AddCommand(feedCmd, postCmd, editCmd, photoCmd, fileCmd, locationCmd, jokeCmd, searchCmd, watchCmd, serveCmd)
}

type appFunc func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

// withApp builds the app for one command and tears it down afterwards. The
// context is cancelled on SIGINT or SIGTERM.
func withApp(fn appFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, cmd, args)
	}
}

func watch(ctx context.Context, a *app, out io.Writer, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	updates := make(chan []storage.Entry, 1)
	sub := a.cache.Subscribe(func(entries []storage.Entry) {
		// keep only the latest list if the printer falls behind
		select {
		case <-updates:
		default:
		}
		updates <- entries
	})
	defer sub.Unsubscribe()

	if _, err := a.controller.Load(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case entries := <-updates:
			fmt.Fprintln(out, timeStyle.Render(time.Now().Format("15:04:05")+" "+forum.MsgFeedSummary(len(entries), a.cache.ObserverCount())))
			renderEntries(out, entries, a.detector)
		case <-ticker.C:
			// failures are toasted; keep watching
			_, _ = a.controller.Load(ctx)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, closeBackend, err := openLocalBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeBackend() }()

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(backend, api.Options{
			APIKey:         cfg.Remote.APIKey,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s backend on %s\n", cfg.Remote.Backend, cfg.Server.Addr)
	debuglog.Infof("serving %s backend on %s", cfg.Remote.Backend, cfg.Server.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func searchEntries(s search.Searcher, query string, limit int) ([]storage.Entry, error) {
	if dc, ok := s.(search.DocCounter); ok {
		if n, err := dc.DocCount(); err == nil {
			debuglog.Debugf("searching %d indexed entries for %q", n, query)
		}
	}
	results, err := s.Search(query, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]storage.Entry, 0, len(results))
	for _, r := range results {
		entries = append(entries, r.Entry)
	}
	return entries, nil
}

func renderEntries(w io.Writer, entries []storage.Entry, detector *media.TypeDetector) {
	for _, e := range entries {
		header := authorStyle.Render(e.AuthorName) + "  " +
			timeStyle.Render(e.Created().Local().Format("2006-01-02 15:04")+"  "+e.ID)
		fmt.Fprintln(w, header)
		fmt.Fprintln(w, "  "+renderContent(forum.Classify(e.Content, detector)))
	}
}

func renderContent(c forum.Content) string {
	switch c.Kind {
	case forum.KindLocation:
		if c.Position != nil {
			return kindStyle.Render("[location]") + fmt.Sprintf(" %g, %g  %s", c.Position.Latitude, c.Position.Longitude, c.Raw)
		}
		return kindStyle.Render("[location]") + " " + c.Raw
	case forum.KindMedia:
		label := "file"
		if c.Media != media.KindUnknown {
			label = c.Media.String()
		}
		return kindStyle.Render("["+label+"]") + " " + c.Raw
	default:
		return c.Raw
	}
}
