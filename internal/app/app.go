// Package app assembles the core service graph from a loaded config: model
// registry, chat log, memory index, skill registry, agent loop, cron
// engine, and the transport bridge. cmd/moo wraps these constructors in an
// fx application; cmd/moo-e2e calls them directly against a stub transport.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mooassistant/moo/internal/agent"
	"github.com/mooassistant/moo/internal/agentctx"
	"github.com/mooassistant/moo/internal/bridge"
	"github.com/mooassistant/moo/internal/chatlog"
	"github.com/mooassistant/moo/internal/config"
	"github.com/mooassistant/moo/internal/cron"
	"github.com/mooassistant/moo/internal/memory"
	"github.com/mooassistant/moo/internal/merrors"
	"github.com/mooassistant/moo/internal/model"
	"github.com/mooassistant/moo/internal/model/openai"
	"github.com/mooassistant/moo/internal/skill"
	"github.com/mooassistant/moo/internal/skill/builtin"
	"github.com/mooassistant/moo/internal/state"
	"github.com/mooassistant/moo/internal/tide"
	"github.com/mooassistant/moo/internal/transport"
	"github.com/mooassistant/moo/internal/turnqueue"
)

// SenderResolver returns the full-capability Sender that owns jid, or nil
// if no transport is wired for it.
type SenderResolver func(jid string) transport.Sender

// textSender adapts a resolved transport.Sender to the text-only
// cron.Sender/tide.Sender contract.
type textSender struct {
	resolve SenderResolver
}

func (t textSender) Send(ctx context.Context, jid, text string) error {
	s := t.resolve(jid)
	if s == nil {
		return merrors.NewTransportError("none", fmt.Errorf("no transport wired for jid %q", jid))
	}
	return s.SendText(ctx, jid, text)
}

// App is the assembled core: everything except the concrete transports,
// which the caller supplies through the SenderResolver.
type App struct {
	Cfg     config.Config
	Paths   state.Paths
	Models  *model.Registry
	ChatLog *chatlog.Log
	Memory  *memory.Service // nil when memory.enabled is false
	Skills  *skill.Registry
	Enabled []string
	Queue   *turnqueue.Manager

	CronStore *cron.Store
	Scheduler *cron.Scheduler
	Loop      *agent.Loop
	Bridge    *bridge.Bridge

	resolve SenderResolver
	logger  *slog.Logger
}

// New assembles the core graph. resolve routes outbound sends by jid; pass
// a resolver over the live transports in the daemon, or over a capture stub
// in tests.
func New(log *slog.Logger, paths state.Paths, cfg config.Config, resolve SenderResolver) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := paths.EnsureAll(); err != nil {
		return nil, merrors.NewConfigError("state dir", err)
	}

	models, err := buildModelRegistry(log, paths, cfg)
	if err != nil {
		return nil, err
	}
	logStore := chatlog.New(log, paths)

	var mem *memory.Service
	if cfg.Memory.Enabled {
		mem, err = buildMemory(log, paths, cfg, models)
		if err != nil {
			return nil, err
		}
	}

	store, err := cron.NewStore(log, paths.CronStorePath())
	if err != nil {
		return nil, err
	}

	skills, enabled := buildSkills(cfg, models, mem, store)

	a := &App{
		Cfg:       cfg,
		Paths:     paths,
		Models:    models,
		ChatLog:   logStore,
		Memory:    mem,
		Skills:    skills,
		Enabled:   enabled,
		Queue:     turnqueue.New(log, 0),
		CronStore: store,
		resolve:   resolve,
		logger:    log,
	}

	a.Loop = agent.New(log, models, skills, logStore, a.buildAgentContext, agent.Config{
		EnabledSkillIDs: enabled,
	})

	router := cron.TransportRouter{
		BotAPI:       textSender{resolve: a.resolveBotAPI},
		LinkedDevice: textSender{resolve: a.resolveLinkedDevice},
	}
	executor := cron.NewExecutor(log, a.Loop, router)
	a.Scheduler = cron.NewScheduler(log, store, executor)

	a.Bridge = bridge.New(log, a.Loop, a.Queue, skills, enabled, bridge.Config{
		UserTimezone: cfg.Agents.Defaults.UserTimezone,
		TimeFormat:   cfg.Agents.Defaults.TimeFormat,
	})
	return a, nil
}

func (a *App) resolveBotAPI(jid string) transport.Sender {
	if s := a.resolve(jid); s != nil && s.Kind() == transport.KindBotAPI {
		return s
	}
	return nil
}

func (a *App) resolveLinkedDevice(jid string) transport.Sender {
	if s := a.resolve(jid); s != nil && s.Kind() == transport.KindLinkedDevice {
		return s
	}
	return nil
}

// TextSender returns the text-only send surface Tide and operator commands
// deliver through.
func (a *App) TextSender() tide.Sender {
	return textSender{resolve: a.resolve}
}

// NewTide builds the idle-wake scheduler over this app's agent loop and
// chat log, or nil when tide.enabled is false or no chat is configured.
func (a *App) NewTide() *tide.Tide {
	tc := a.Cfg.Tide
	if !tc.Enabled || tc.JID == "" {
		return nil
	}
	loc, err := time.LoadLocation(a.Cfg.Agents.Defaults.UserTimezone)
	if err != nil {
		loc = time.UTC
	}
	return tide.New(a.logger, a.Loop, a.TextSender(), a.ChatLog, tide.Config{
		Enabled:         true,
		SilenceCooldown: time.Duration(tc.SilenceCooldownMinutes) * time.Minute,
		InactiveStart:   tc.InactiveStart,
		InactiveEnd:     tc.InactiveEnd,
		JID:             tc.JID,
		Location:        loc,
	}, nil)
}

// buildAgentContext is the ContextBuilder the loop hands to skill
// executors: scheduling goes through the store plus a live timer install,
// media sends go through whichever transport owns the turn's jid.
func (a *App) buildAgentContext(jid string, isGroup bool) agentctx.Context {
	return agentctx.Context{
		StorePath:    a.Paths.Root,
		JID:          jid,
		IsGroup:      isGroup,
		WorkspaceDir: a.Paths.WorkspaceDir(),

		ScheduleOneShot: func(ctx context.Context, atMs int64, name, message string) (string, error) {
			job, err := a.CronStore.AddJob(cron.Job{
				Name:        name,
				Enabled:     true,
				Message:     message,
				JID:         jid,
				CreatedAtMs: time.Now().UnixMilli(),
				Schedule:    cron.Schedule{Kind: cron.KindOneShot, AtMs: atMs},
			})
			if err != nil {
				return "", err
			}
			a.Scheduler.InstallJob(context.WithoutCancel(ctx), job)
			return job.ID, nil
		},
		ScheduleRecurring: func(ctx context.Context, expr, tz, name, message string) (string, error) {
			if err := cron.ValidateExpr(expr); err != nil {
				return "", fmt.Errorf("invalid cron expression %q: %w", expr, err)
			}
			job, err := a.CronStore.AddJob(cron.Job{
				Name:        name,
				Enabled:     true,
				Message:     message,
				JID:         jid,
				CreatedAtMs: time.Now().UnixMilli(),
				Schedule:    cron.Schedule{Kind: cron.KindRecurring, Expr: expr, TZ: tz},
			})
			if err != nil {
				return "", err
			}
			a.Scheduler.InstallJob(context.WithoutCancel(ctx), job)
			return job.ID, nil
		},
		StartCron: func(ctx context.Context) error {
			// The scheduler is started with the app; installing per job above
			// keeps this a no-op, retained so executors can rely on it.
			return nil
		},
		SendImage: func(ctx context.Context, path, caption string) error {
			s := a.resolve(jid)
			if s == nil {
				return merrors.NewTransportError("none", fmt.Errorf("no transport wired for jid %q", jid))
			}
			return s.SendImage(ctx, jid, path, caption)
		},
		SendVoice: func(ctx context.Context, text string) error {
			s := a.resolve(jid)
			if s == nil {
				return merrors.NewTransportError("none", fmt.Errorf("no transport wired for jid %q", jid))
			}
			audioPath, err := a.Models.Synthesize(ctx, text)
			if err != nil {
				return err
			}
			return s.SendVoice(ctx, jid, audioPath)
		},
	}
}

func buildModelRegistry(log *slog.Logger, paths state.Paths, cfg config.Config) (*model.Registry, error) {
	entries := make([]model.ProviderEntry, 0, len(cfg.LLM.Models))
	for _, m := range cfg.LLM.Models {
		entry := model.ProviderEntry{
			ID:           m.ID,
			Capabilities: m.Capabilities,
			Credentialed: m.Credentialed(),
		}
		if entry.Credentialed {
			client, err := openai.New(log, openai.Config{
				Name:        m.ID,
				BaseURL:     m.BaseURL,
				APIKey:      m.APIKey,
				ChatModel:   m.ChatModel,
				EmbedModel:  m.EmbedModel,
				VisionModel: m.VisionModel,
				ImageModel:  m.ImageModel,
				SpeechModel: m.SpeechModel,
				TTSModel:    m.TTSModel,
				UploadsDir:  paths.UploadsDir(),
			})
			if err != nil {
				return nil, merrors.NewConfigError("llm.models."+m.ID, err)
			}
			entry.Client = client
		}
		entries = append(entries, entry)
	}
	return model.NewRegistry(entries), nil
}

func buildMemory(log *slog.Logger, paths state.Paths, cfg config.Config, models *model.Registry) (*memory.Service, error) {
	var embedder memory.Embedder = models
	if id := cfg.Memory.Embedding.ProviderID; id != "" {
		client, ok := models.ByID(id)
		if !ok {
			return nil, merrors.NewConfigError("memory.embedding.providerId",
				fmt.Errorf("provider %q is not configured or not credentialed", id))
		}
		embedder = client
	}

	index, err := memory.NewQdrantStore(log, cfg.Memory.IndexPath, "", "memory", 0)
	if err != nil {
		return nil, err
	}

	chunking := cfg.Memory.Chunking.Normalized()
	return memory.NewService(log, paths, index, embedder, memory.Config{
		ChunkConfig: memory.ChunkConfig{
			TargetTokens:  chunking.TargetTokens,
			OverlapTokens: chunking.OverlapTokens,
		},
		FilesystemDirs: cfg.Memory.Sync.FilesystemDirs,
	})
}

func buildSkills(cfg config.Config, models *model.Registry, mem *memory.Service, store *cron.Store) (*skill.Registry, []string) {
	registry := skill.NewRegistry()

	var shellCfg struct {
		AllowedCommands []string `json:"allowedCommands"`
		TimeoutSeconds  int      `json:"timeoutSeconds"`
		MaxOutputBytes  int      `json:"maxOutputBytes"`
	}
	_ = cfg.Skills.Setting(builtin.ShellSkillID, &shellCfg)
	registry.Register(builtin.ShellDescriptor(), builtin.NewShellExecutor(builtin.ShellConfig{
		AllowedCommands: shellCfg.AllowedCommands,
		Timeout:         time.Duration(shellCfg.TimeoutSeconds) * time.Second,
		MaxOutputBytes:  shellCfg.MaxOutputBytes,
	}))
	registry.Register(builtin.FileDescriptor(), builtin.NewFileExecutor())
	registry.Register(builtin.CronDescriptor(), builtin.NewCronExecutor(store))
	registry.Register(builtin.WebDescriptor(), builtin.NewWebExecutor())
	registry.Register(builtin.MediaDescriptor(), builtin.NewMediaExecutor(models))
	if mem != nil {
		registry.Register(builtin.MemoryDescriptor(), builtin.NewMemoryExecutor(mem, cfg.Agents.Defaults.UserTimezone))
	}

	enabled := cfg.Skills.Enabled
	if mem == nil {
		filtered := enabled[:0:0]
		for _, id := range enabled {
			if id != builtin.MemorySkillID {
				filtered = append(filtered, id)
			}
		}
		enabled = filtered
	}
	return registry, enabled
}
