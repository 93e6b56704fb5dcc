package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/earworm/internal/engine"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	Input string
}

// TelemetryMessage is one NDJSON line read by listen.
//
//	{"type":"play","track":"challenge-1"}
//	{"type":"position","track":"challenge-1","position":12.5,"duration":180}
//	{"type":"seek","position":90}
//	{"type":"rate","rate":1.5}
//	{"type":"progress","track":"challenge-2","pct":40}
//	{"type":"end"}
//	{"type":"reset"}
type TelemetryMessage struct {
	Type     string  `json:"type"`
	Track    string  `json:"track,omitempty"`
	Position float64 `json:"position,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	Pct      float64 `json:"pct,omitempty"`
}

// ListenEvent is one NDJSON line written by listen in JSON format.
type ListenEvent struct {
	Seq          int64   `json:"seq"`
	Event        string  `json:"event"`
	Track        string  `json:"track,omitempty"`
	Session      string  `json:"session,omitempty"`
	Verdict      string  `json:"verdict,omitempty"`
	Progress     float64 `json:"progress"`
	Points       int     `json:"points,omitempty"`
	Penalty      int     `json:"penalty_points,omitempty"`
	Confirmation string  `json:"confirmation,omitempty"`
	TotalPoints  int     `json:"total_points"`
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Adjudicate playback telemetry from NDJSON",
		Long: `Read playback telemetry as newline-delimited JSON and run it through
the award engine against the configured database.

Each line is one message: play, position, seek, rate, progress, end or
reset. Malformed lines are logged and skipped. At end of input the
engine finishes outstanding confirmations and exits. Interrupting
leaves unconfirmed awards in the outbox for the next run.

Examples:
  earworm listen < session.ndjson
  player-bridge | earworm listen --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "-", "telemetry file (- for stdin)")

	return cmd
}

func runListen(opts *ListenOptions, cmd *cobra.Command) error {
	in := cmd.InOrStdin()
	if opts.Input != "-" {
		f, err := os.Open(opts.Input)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input", err)
		}
		defer f.Close()
		in = f
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	printer := &outcomePrinter{w: cmd.OutOrStdout(), json: opts.Format == "json"}
	eng, err := a.newEngine(ctx, cmd.ErrOrStderr(), engine.WithObserver(printer.print))
	if err != nil {
		return err
	}
	printer.catalogTitle = func(id string) string {
		if ch, ok := eng.Catalog().Get(id); ok {
			return ch.Title
		}
		return id
	}
	if err := a.resume(ctx, eng); err != nil {
		return err
	}

	go func() {
		defer eng.StopWhenIdle()
		if err := feedTelemetry(in, eng, a.logger.Warn); err != nil {
			a.logger.Error("telemetry input failed", "error", err)
		}
	}()

	a.logger.Info("listening for telemetry", "db", a.cfg.Paths.Database)
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	st := eng.Status()
	if opts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Total points: %d\n", st.TotalPoints)
	}
	if len(st.Pending) > 0 {
		a.logger.Warn("awards left awaiting confirmation", "count", len(st.Pending))
	}
	a.logger.Info("engine stopped gracefully")
	return nil
}

// feedTelemetry enqueues one event per message until r is exhausted or
// the engine stops accepting events.
func feedTelemetry(r io.Reader, eng *engine.Engine, warn func(msg string, args ...any)) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var msg TelemetryMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			warn("skipping malformed telemetry", "line", line, "error", err)
			continue
		}
		ev, err := msg.Event()
		if err != nil {
			warn("skipping telemetry", "line", line, "error", err)
			continue
		}
		if !eng.Enqueue(ev) {
			return nil
		}
	}
	return scanner.Err()
}

// Event converts the message to an engine event. Player-facing messages
// (play, seek, rate, end) are marked as commands.
func (m TelemetryMessage) Event() (engine.Event, error) {
	switch m.Type {
	case "play":
		if m.Track == "" {
			return engine.Event{}, errors.New("play requires track")
		}
		return engine.Event{Type: engine.EventTypeTrackActivated, TrackID: m.Track, Command: true}, nil
	case "position":
		return engine.Event{Type: engine.EventTypePositionObserved, TrackID: m.Track, Position: m.Position, Duration: m.Duration}, nil
	case "seek":
		return engine.Event{Type: engine.EventTypeExplicitSeek, TrackID: m.Track, Position: m.Position, Command: true}, nil
	case "rate":
		return engine.Event{Type: engine.EventTypeRateChanged, Rate: m.Rate, Command: true}, nil
	case "progress":
		if m.Track == "" {
			return engine.Event{}, errors.New("progress requires track")
		}
		return engine.Event{Type: engine.EventTypeProgressSet, TrackID: m.Track, Pct: m.Pct}, nil
	case "end":
		return engine.Event{Type: engine.EventTypeTrackEnded, Command: true}, nil
	case "reset":
		return engine.Event{Type: engine.EventTypeResetAll}, nil
	default:
		return engine.Event{}, fmt.Errorf("unknown message type %q", m.Type)
	}
}

// outcomePrinter writes engine outcomes as they are applied. It runs on
// the engine loop goroutine.
type outcomePrinter struct {
	w            io.Writer
	json         bool
	catalogTitle func(id string) string
}

func (p *outcomePrinter) print(out engine.Outcome) {
	if p.json {
		ev := ListenEvent{
			Seq:          out.Seq,
			Event:        out.Type.String(),
			Track:        out.TrackID,
			Session:      out.Session,
			Verdict:      string(out.Verdict),
			Progress:     out.Progress,
			Confirmation: string(out.Confirmation),
			TotalPoints:  out.TotalPoints,
		}
		if out.Award != nil {
			ev.Points = out.Award.EffectivePoints
			ev.Penalty = out.Award.PenaltyPoints
		}
		_ = json.NewEncoder(p.w).Encode(ev)
		return
	}

	title := out.TrackID
	if p.catalogTitle != nil {
		title = p.catalogTitle(out.TrackID)
	}

	switch {
	case out.Type == engine.EventTypeTrackActivated && out.Started:
		fmt.Fprintf(p.w, "▶ %s\n", title)
	case out.Award != nil && out.Credited:
		fmt.Fprintf(p.w, "★ %s completed: +%d points", title, out.Award.EffectivePoints)
		if out.Award.PenaltyPoints > 0 {
			fmt.Fprintf(p.w, " (-%d for %d seeks, peak %gx)", out.Award.PenaltyPoints, out.Award.ForwardSeeks, out.Award.PeakRate)
		}
		fmt.Fprintln(p.w)
	case out.Award != nil:
		fmt.Fprintf(p.w, "★ %s completed again (no new points)\n", title)
	case out.Confirmation == engine.ConfirmationConfirmed:
		fmt.Fprintf(p.w, "✓ %s confirmed\n", title)
	}
}
