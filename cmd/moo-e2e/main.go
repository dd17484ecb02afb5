// moo-e2e is the single-turn test entry-point: it accepts one user message,
// runs a full agent turn against the state directory named by MOO_STATE_DIR,
// and writes the final reply between E2E_REPLY_START and E2E_REPLY_END on
// standard output. Scheduled one-shots that are due imminently are allowed
// to fire before the process exits, so cron delivery is observable from the
// same invocation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mooassistant/moo/internal/agent"
	"github.com/mooassistant/moo/internal/app"
	"github.com/mooassistant/moo/internal/config"
	"github.com/mooassistant/moo/internal/cron"
	"github.com/mooassistant/moo/internal/logger"
	"github.com/mooassistant/moo/internal/state"
	"github.com/mooassistant/moo/internal/transport"
)

const (
	replyStartMarker = "E2E_REPLY_START"
	replyEndMarker   = "E2E_REPLY_END"

	oneShotHorizon  = 15 * time.Second
	oneShotPollTick = 200 * time.Millisecond
)

var numericJID = regexp.MustCompile(`^[0-9]+$`)

// captureSender prints every outbound payload to stdout so the harness can
// observe transport-level sends (cron deliveries) alongside the turn reply.
type captureSender struct {
	kind transport.Kind
}

func (c captureSender) Kind() transport.Kind { return c.kind }

func (c captureSender) SendText(ctx context.Context, jid, text string) error {
	fmt.Printf("E2E_SEND %s: %s\n", jid, text)
	return nil
}

func (c captureSender) SendImage(ctx context.Context, jid, path, caption string) error {
	fmt.Printf("E2E_SEND_IMAGE %s: %s (%s)\n", jid, path, caption)
	return nil
}

func (c captureSender) SendVoice(ctx context.Context, jid, audioPath string) error {
	fmt.Printf("E2E_SEND_VOICE %s: %s\n", jid, audioPath)
	return nil
}

func resolveCapture(jid string) transport.Sender {
	if numericJID.MatchString(jid) {
		return captureSender{kind: transport.KindBotAPI}
	}
	return captureSender{kind: transport.KindLinkedDevice}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "moo-e2e:", err)
		os.Exit(1)
	}
}

func run() error {
	jid := flag.String("jid", "e2e-user", "chat id the message arrives from")
	group := flag.Bool("group", false, "treat the message as a group chat message")
	flag.Parse()

	message := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if message == "" {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			message = strings.TrimSpace(scanner.Text())
		}
	}
	if message == "" {
		return fmt.Errorf("no user message given")
	}

	paths, err := state.Resolve()
	if err != nil {
		return err
	}
	cfg, err := config.Load(paths.ConfigPath(), nil)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, "text")

	a, err := app.New(logger.L, paths, cfg, resolveCapture)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a.Scheduler.Start(ctx)
	defer a.Scheduler.Stop()

	if a.Memory != nil {
		if err := a.Memory.Sync(ctx); err != nil {
			logger.Warn("memory sync failed", "err", err)
		}
	}

	result, err := a.Loop.Run(ctx, agent.Request{
		SystemPrompt: a.Bridge.SystemPrompt(*group),
		UserMessage:  message,
		JID:          *jid,
		IsGroup:      *group,
	})
	if err != nil {
		return err
	}

	fmt.Println(replyStartMarker)
	fmt.Println(result.Text)
	fmt.Println(replyEndMarker)

	waitForImminentOneShots(a.CronStore)
	return nil
}

// waitForImminentOneShots blocks until every enabled, unsent one-shot due
// within the horizon has run to completion (removed on success, or left
// with its error recorded), or one further horizon past the horizon
// elapses. Recurring jobs are never waited on.
func waitForImminentOneShots(store *cron.Store) {
	horizon := time.Now().Add(oneShotHorizon)
	watched := map[string]struct{}{}
	for _, j := range store.LoadJobs() {
		if j.Schedule.Kind != cron.KindOneShot || !j.Enabled || j.AlreadySent() {
			continue
		}
		if time.UnixMilli(j.Schedule.AtMs).Before(horizon) {
			watched[j.ID] = struct{}{}
		}
	}

	deadline := horizon.Add(oneShotHorizon)
	for len(watched) > 0 && time.Now().Before(deadline) {
		remaining := map[string]cron.Job{}
		for _, j := range store.LoadJobs() {
			remaining[j.ID] = j
		}
		for id := range watched {
			j, ok := remaining[id]
			if !ok || j.LastError != "" {
				delete(watched, id)
			}
		}
		if len(watched) == 0 {
			return
		}
		time.Sleep(oneShotPollTick)
	}
}
