package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	appI18n "github.com/pavelanni/spiel/internal/i18n"
	"github.com/pavelanni/spiel/internal/model"
	"github.com/pavelanni/spiel/internal/navigate"
	"github.com/pavelanni/spiel/internal/reconciler"
	"github.com/pavelanni/spiel/internal/remote"
	"github.com/pavelanni/spiel/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "spiel",
		Short:        "Vocabulary quiz client with resumable local progress",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringP("server", "s", "http://localhost:5000", "Question service base URL")
	pf.String("db", "spiel.db", "SQLite path for local progress (\":memory:\" keeps nothing)")
	pf.StringSlice("types", model.DefaultTypes, "Item types covered by a serial pass")
	pf.Duration("timeout", remote.DefaultTimeout, "HTTP request timeout")
	pf.StringP("lang", "l", "en", "UI language (en, de)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	play := playCmd()
	root.AddCommand(play, initCmd(), nextCmd(), answerCmd(), saveCmd(), statsCmd(), scoresCmd(), wordsCmd())

	// Make "play" the default when no subcommand is given.
	root.RunE = play.RunE
	root.Flags().AddFlagSet(play.Flags())

	return root
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Start a server session from local scores and print the first page",
		RunE:  runInit,
	}
}

func nextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Pick the next question page (serial order probes and recovers expired sessions)",
		RunE:  runNext,
	}
	cmd.Flags().StringP("order", "o", "", "Order mode: serial or random (default: last used, else random)")
	return cmd
}

func answerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Record a score for an answered item",
		RunE:  runAnswer,
	}
	f := cmd.Flags()
	f.StringP("type", "t", model.TypeWord, "Item type")
	f.StringP("key", "k", "", "Item key (required)")
	f.Float64("score", 0, "Score to append (required)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Write scores and stats back to storage",
		RunE:  runSave,
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show session statistics and resume position",
		RunE:  runStats,
	}
}

func scoresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Report per-item scores, weakest trend first",
		RunE:  runScores,
	}
	f := cmd.Flags()
	f.Bool("json", false, "Emit JSON instead of a table")
	f.StringP("output", "O", "-", "Output file path (- for stdout)")
	return cmd
}

func wordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "words",
		Short: "List the words known to the question service",
		RunE:  runWords,
	}
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SPIEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("spiel")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/spiel")
	v.AddConfigPath("/etc/spiel")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app bundles the collaborators every command needs.
type app struct {
	v      *viper.Viper
	ctx    context.Context
	db     *store.Store
	client *remote.Client
	nav    *navigate.Recorder
	rec    *reconciler.Reconciler
}

func openApp(cmd *cobra.Command) (*app, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(cmd.Context(), appI18n.NewLocalizer(lang))

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := remote.New(v.GetString("server"), v.GetDuration("timeout"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create service client: %w", err)
	}

	nav := &navigate.Recorder{}
	logNav := navigate.Func(func(_ context.Context, target string) error {
		slog.Info("navigate", "url", client.Resolve(target))
		return nil
	})
	rec := reconciler.New(db, client, navigate.Chain(nav, logNav), reconciler.Config{
		Types: v.GetStringSlice("types"),
	})
	if err := rec.Load(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("load local state: %w", err)
	}

	return &app{v: v, ctx: ctx, db: db, client: client, nav: nav, rec: rec}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Warn("close database", "error", err)
	}
}

// printLocation writes the page the last navigation went to.
func (a *app) printLocation(w io.Writer) {
	if target, ok := a.nav.Last(); ok {
		fmt.Fprintln(w, appI18n.Td(a.ctx, "OpenPage", map[string]any{"URL": a.client.Resolve(target)}))
	}
}

// orderFor resolves the order flag, falling back to the stored mode.
func (a *app) orderFor(flag string) (model.OrderMode, error) {
	if flag != "" {
		return model.ParseOrderMode(flag)
	}
	if o := a.rec.Snapshot().Order; o != "" {
		return o, nil
	}
	return model.OrderRandom, nil
}

func runInit(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.rec.InitializeSession(a.ctx); err != nil {
		return err
	}
	a.printLocation(cmd.OutOrStdout())
	return nil
}

func runNext(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	order, err := a.orderFor(a.v.GetString("order"))
	if err != nil {
		return err
	}
	if err := a.rec.NavigateNext(a.ctx, order); err != nil {
		return err
	}
	a.printLocation(cmd.OutOrStdout())
	return nil
}

func runAnswer(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.rec.RecordAnswer(a.ctx, a.v.GetString("type"), a.v.GetString("key"), a.v.GetFloat64("score")); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Attempted(a.ctx, a.rec.Snapshot().Stats.NumQuestions))
	return nil
}

func runSave(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.rec.Save(a.ctx); err != nil {
		return err
	}
	slog.Info("progress saved", "db", a.v.GetString("db"))
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.rec.Snapshot()
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, appI18n.Attempted(a.ctx, st.Stats.NumQuestions))
	if st.Stats.HistoricalNumQuestions > 0 {
		fmt.Fprintln(w, appI18n.Tp(a.ctx, "HistoricalAttempted", st.Stats.HistoricalNumQuestions))
	}
	if st.Stats.StartTime != nil {
		fmt.Fprintln(w, appI18n.Td(a.ctx, "SessionStarted", map[string]any{"Ago": humanize.Time(*st.Stats.StartTime)}))
	}
	if len(st.Unasked) > 0 {
		fmt.Fprintln(w, appI18n.Td(a.ctx, "Unasked", map[string]any{"Types": strings.Join(st.Unasked, ", ")}))
	}
	if st.Last != nil && st.Last.Type != "" {
		key, _ := st.Last.Key(st.Last.Type)
		fmt.Fprintln(w, appI18n.Td(a.ctx, "ResumeAt", map[string]any{"Type": st.Last.Type, "Key": key}))
	}
	return nil
}

func runScores(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.rec.Snapshot()
	report := model.BuildScoreReport(st.Ledger, st.Stats, time.Now())

	outPath := a.v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if a.v.GetBool("json") {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		_, _ = fmt.Fprintln(w)
		return nil
	}

	if len(report.Items) == 0 {
		fmt.Fprintln(w, appI18n.T(a.ctx, "NoScores"))
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tATTEMPTS\tMEAN\tTREND\tSCORES")
	for _, it := range report.Items {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%+.2f\t%v\n", it.Key, it.Attempts, it.Mean, it.Slope, it.Scores)
	}
	return tw.Flush()
}

func runWords(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	words, err := a.client.ListWords(a.ctx)
	if err != nil {
		return err
	}
	for _, w := range words {
		fmt.Fprintln(cmd.OutOrStdout(), w)
	}
	return nil
}
