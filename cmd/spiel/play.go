package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/spiel/internal/i18n"
	"github.com/pavelanni/spiel/internal/model"
	"github.com/pavelanni/spiel/internal/reconciler"
	"github.com/pavelanni/spiel/internal/remote"
)

const maxExamples = 5

func playCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Run an interactive quiz in the terminal",
		RunE:  runPlay,
	}
	f := cmd.Flags()
	f.StringP("order", "o", "", "Order mode: serial or random (default: last used, else random)")
	f.Duration("autosave", reconciler.DefaultAutosaveInterval, "Interval between background saves")
	return cmd
}

func runPlay(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	order, err := a.orderFor(a.v.GetString("order"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt)
	defer stop()

	go a.rec.RunAutosave(ctx, a.v.GetDuration("autosave"))
	defer func() {
		// The play context may already be cancelled; the final save must still run.
		if err := a.rec.Save(context.WithoutCancel(a.ctx)); err != nil {
			slog.Error("final save failed", "error", err)
		}
	}()

	if err := a.rec.InitializeSession(ctx); err != nil {
		return err
	}

	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	fresh := true

	for {
		target, _ := a.nav.Last()
		if target == "" || target == reconciler.DefaultFallbackPath {
			target = reconciler.DefaultNextPath
		}

		q, err := a.client.NextQuestion(ctx, target)
		if errors.Is(err, remote.ErrSessionExpired) && !fresh {
			slog.Info("session expired, starting a new one")
			if err := a.rec.InitializeSession(ctx); err != nil {
				return err
			}
			fresh = true
			continue
		}
		if err != nil {
			return err
		}
		fresh = false

		fmt.Fprintf(out, "\n%s ", appI18n.Td(ctx, "QuestionPrompt", map[string]any{"Word": q.Word}))
		answer, ok := readLine(in)
		if !ok {
			return nil
		}

		score, err := a.scoreAnswer(ctx, out, answer, q.Translation)
		if err != nil {
			return err
		}
		printSolution(ctx, out, q)

		itemType := q.Mode
		if itemType == "" {
			itemType = model.TypeWord
		}
		if err := a.rec.RecordAnswer(ctx, itemType, q.Word, score); err != nil {
			return err
		}
		fmt.Fprintln(out, appI18n.Attempted(ctx, a.rec.Snapshot().Stats.NumQuestions))

		fmt.Fprintf(out, "%s [y/n] ", appI18n.T(ctx, "ContinuePrompt"))
		reply, ok := readLine(in)
		if !ok || !isYes(reply) {
			fmt.Fprintln(out, appI18n.T(ctx, "ThankYou"))
			return nil
		}

		if err := a.rec.NavigateNext(ctx, order); err != nil {
			return err
		}
	}
}

// scoreAnswer asks the service to grade answer. An empty answer scores zero.
func (a *app) scoreAnswer(ctx context.Context, out io.Writer, answer, translation string) (float64, error) {
	if answer == "" {
		return 0, nil
	}
	res, err := a.client.ScoreAnswer(ctx, answer, translation)
	if err != nil {
		return 0, err
	}
	fmt.Fprintln(out, appI18n.Td(ctx, "AnswerResult", map[string]any{
		"Verdict": appI18n.Verdict(ctx, model.VerdictFor(res.Score)),
		"Score":   res.ScoreString,
	}))
	return res.Score, nil
}

func printSolution(ctx context.Context, out io.Writer, q remote.Question) {
	fmt.Fprintln(out, appI18n.Td(ctx, "TrueAnswer", map[string]any{"Translation": strings.ToUpper(q.Translation)}))

	if len(q.Examples) > 0 {
		fmt.Fprintln(out, appI18n.T(ctx, "Examples"))
		for i, ex := range q.Examples {
			if i == maxExamples {
				break
			}
			fmt.Fprintf(out, "  %s\n", strings.Join(ex, " / "))
		}
	}
	if genus, ok := q.Metadata["genus"].(string); ok && genus != "" {
		fmt.Fprintf(out, "%s %s\n", appI18n.T(ctx, "Genus"), genus)
	}
}

func readLine(s *bufio.Scanner) (string, bool) {
	if !s.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.Text()), true
}

func isYes(reply string) bool {
	switch strings.ToLower(reply) {
	case "", "y", "yes", "j", "ja":
		return true
	}
	return false
}
