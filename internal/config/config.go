// Package config loads and exposes a typed view over moo's single JSON
// configuration document: LLM provider list, enabled-skill list,
// memory/Tide settings, timezone/time-format defaults, and per-channel
// credentials.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/mooassistant/moo/internal/merrors"
)

// ProviderEntry is one entry in llm.models, tried in declared order for a
// given capability; the first that advertises the capability and has valid
// credentials wins.
type ProviderEntry struct {
	ID           string   `json:"id"`
	BaseURL      string   `json:"baseUrl"`
	APIKey       string   `json:"apiKey"`
	ChatModel    string   `json:"chatModel,omitempty"`
	EmbedModel   string   `json:"embedModel,omitempty"`
	VisionModel  string   `json:"visionModel,omitempty"`
	ImageModel   string   `json:"imageModel,omitempty"`
	SpeechModel  string   `json:"speechModel,omitempty"`
	TTSModel     string   `json:"ttsModel,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// HasCapability reports whether this entry advertises the named capability
// ("chat", "embed", "vision", "image", "speech", "tts").
func (p ProviderEntry) HasCapability(cap string) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Credentialed reports whether the entry has enough to attempt a call.
func (p ProviderEntry) Credentialed() bool {
	return strings.TrimSpace(p.BaseURL) != "" && strings.TrimSpace(p.APIKey) != ""
}

// LLMConfig holds the ordered provider list.
type LLMConfig struct {
	Models []ProviderEntry `json:"models"`
}

// SkillsConfig holds the enabled-skill list plus free-form per-skill
// settings (the JSON document's skills.<id> sibling keys).
type SkillsConfig struct {
	Enabled  []string
	Settings map[string]json.RawMessage
}

// UnmarshalJSON splits the "enabled" key from the remaining skill-scoped
// settings keys.
func (s *SkillsConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Settings = map[string]json.RawMessage{}
	for key, value := range raw {
		if key == "enabled" {
			if err := json.Unmarshal(value, &s.Enabled); err != nil {
				return fmt.Errorf("skills.enabled: %w", err)
			}
			continue
		}
		s.Settings[key] = value
	}
	return nil
}

// MarshalJSON reassembles "enabled" plus the per-skill settings.
func (s SkillsConfig) MarshalJSON() ([]byte, error) {
	out := map[string]json.RawMessage{}
	for k, v := range s.Settings {
		out[k] = v
	}
	enabled, err := json.Marshal(s.Enabled)
	if err != nil {
		return nil, err
	}
	out["enabled"] = enabled
	return json.Marshal(out)
}

// IsEnabled reports whether the named skill is in skills.enabled.
func (s SkillsConfig) IsEnabled(id string) bool {
	for _, e := range s.Enabled {
		if e == id {
			return true
		}
	}
	return false
}

// Setting unmarshals the per-skill settings blob for id into out.
func (s SkillsConfig) Setting(id string, out any) error {
	raw, ok := s.Settings[id]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// EmbeddingConfig names the provider/model used for memory embeddings.
type EmbeddingConfig struct {
	ProviderID string `json:"providerId,omitempty"`
	Model      string `json:"model,omitempty"`
}

// ChunkingConfig bounds the memory chunker: target ~512 tokens, ~32
// overlap, clamped to [100,2000]/[0,100].
type ChunkingConfig struct {
	TargetTokens  int `json:"targetTokens,omitempty"`
	OverlapTokens int `json:"overlapTokens,omitempty"`
}

// Normalized clamps chunking settings into the safe band and applies defaults.
func (c ChunkingConfig) Normalized() ChunkingConfig {
	if c.TargetTokens <= 0 {
		c.TargetTokens = 512
	}
	if c.TargetTokens < 100 {
		c.TargetTokens = 100
	}
	if c.TargetTokens > 2000 {
		c.TargetTokens = 2000
	}
	if c.OverlapTokens == 0 {
		c.OverlapTokens = 32
	}
	if c.OverlapTokens < 0 {
		c.OverlapTokens = 0
	}
	if c.OverlapTokens > 100 {
		c.OverlapTokens = 100
	}
	return c
}

// SearchConfig holds memory search defaults.
type SearchConfig struct {
	DefaultK int     `json:"defaultK,omitempty"`
	MinScore float64 `json:"minScore,omitempty"`
}

// SyncConfig controls what the memory indexer walks besides notes and chat logs.
type SyncConfig struct {
	FilesystemDirs []string `json:"filesystemDirs,omitempty"`
}

// MemoryConfig is the memory.* document section.
type MemoryConfig struct {
	Enabled      bool            `json:"enabled"`
	WorkspaceDir string          `json:"workspaceDir,omitempty"`
	IndexPath    string          `json:"indexPath,omitempty"`
	Embedding    EmbeddingConfig `json:"embedding,omitempty"`
	Chunking     ChunkingConfig  `json:"chunking,omitempty"`
	Search       SearchConfig    `json:"search,omitempty"`
	Sync         SyncConfig      `json:"sync,omitempty"`
}

// TideConfig is the tide.* document section.
type TideConfig struct {
	Enabled                bool   `json:"enabled"`
	SilenceCooldownMinutes int    `json:"silenceCooldownMinutes,omitempty"`
	InactiveStart          string `json:"inactiveStart,omitempty"`
	InactiveEnd            string `json:"inactiveEnd,omitempty"`
	JID                    string `json:"jid,omitempty"`
}

// AgentDefaults is agents.defaults.
type AgentDefaults struct {
	UserTimezone string `json:"userTimezone,omitempty"`
	TimeFormat   string `json:"timeFormat,omitempty"`
}

// AgentsConfig is the agents.* document section.
type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

// OwnerConfig is the owner.* document section.
type OwnerConfig struct {
	TelegramUserID string `json:"telegramUserId,omitempty"`
}

// TelegramChannelConfig is channels.telegram.
type TelegramChannelConfig struct {
	BotToken string `json:"botToken"`
}

// LinkedDeviceChannelConfig is channels.linkedDevice: where the
// linked-device websocket endpoint listens.
type LinkedDeviceChannelConfig struct {
	ListenAddr string `json:"listenAddr,omitempty"`
}

// ChannelsConfig is the channels.* document section.
type ChannelsConfig struct {
	Telegram     *TelegramChannelConfig     `json:"telegram,omitempty"`
	LinkedDevice *LinkedDeviceChannelConfig `json:"linkedDevice,omitempty"`
}

// LogConfig controls logger.Init; defaults to info/text.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the root configuration document.
type Config struct {
	Log      LogConfig      `json:"log"`
	LLM      LLMConfig      `json:"llm"`
	Skills   SkillsConfig   `json:"skills"`
	Memory   MemoryConfig   `json:"memory"`
	Tide     TideConfig     `json:"tide"`
	Agents   AgentsConfig   `json:"agents"`
	Owner    OwnerConfig    `json:"owner"`
	Channels ChannelsConfig `json:"channels"`
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the JSON configuration document at path, resolves ${VAR}-shaped
// env references in any string value, and applies default values for
// missing ambient fields. A missing file is a ConfigError, fatal at startup.
func Load(path string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, merrors.NewConfigError(path, err)
	}

	raw := v.AllSettings()
	resolved := resolveEnvRefs(raw, getenv)

	data, err := json.Marshal(resolved)
	if err != nil {
		return Config{}, merrors.NewConfigError(path, err)
	}

	cfg := defaultConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, merrors.NewConfigError(path, err)
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				UserTimezone: "UTC",
				TimeFormat:   "15:04",
			},
		},
		Tide: TideConfig{
			SilenceCooldownMinutes: 30,
			InactiveStart:          "23:00",
			InactiveEnd:            "08:00",
		},
	}
}

func validate(cfg Config) error {
	if len(cfg.LLM.Models) == 0 {
		return merrors.NewConfigError("llm.models", fmt.Errorf("at least one provider entry is required"))
	}
	for i, m := range cfg.LLM.Models {
		if strings.TrimSpace(m.ID) == "" {
			return merrors.NewConfigError(fmt.Sprintf("llm.models[%d].id", i), fmt.Errorf("required"))
		}
	}
	return nil
}

// resolveEnvRefs walks an arbitrary JSON-ish value (from viper.AllSettings)
// and substitutes any "${VAR}" string occurrence with the environment
// variable's value.
func resolveEnvRefs(value any, getenv func(string) string) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, sub := range v {
			out[k] = resolveEnvRefs(sub, getenv)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, sub := range v {
			out[i] = resolveEnvRefs(sub, getenv)
		}
		return out
	case string:
		return envRefPattern.ReplaceAllStringFunc(v, func(match string) string {
			name := envRefPattern.FindStringSubmatch(match)[1]
			if resolved := getenv(name); resolved != "" {
				return resolved
			}
			return match
		})
	default:
		return value
	}
}
