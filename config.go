package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/emotimatch/games/emotimatch"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	configFile     string
	maxPlayers     int
	maxRooms       int
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	rounds            int
	roundPrepareDelay time.Duration
	roundStartDelay   time.Duration
	roundMaxTime      time.Duration
	penaltyTime       time.Duration
	gameFinishDelay   time.Duration
	cardSize          int
	winCardSizeAdd    float64
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxRooms < 1 {
		return fmt.Errorf("invalid maximum number of rooms (must be at least 1): %d", c.maxRooms)
	}
	if c.maxPlayers < 1 {
		return fmt.Errorf("invalid maximum number of players (must be at least 1): %d", c.maxPlayers)
	}
	return c.gameOptions().Validate()
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) gameOptions() emotimatch.Options {
	opts := emotimatch.DefaultOptions()

	opts.Rounds = c.rounds
	opts.RoundPrepareDelay = c.roundPrepareDelay
	opts.RoundStartDelay = c.roundStartDelay
	opts.RoundMaxTime = c.roundMaxTime
	opts.PenaltyTime = c.penaltyTime
	opts.GameFinishDelay = c.gameFinishDelay
	opts.CardSize = c.cardSize
	opts.WinCardSizeAdd = c.winCardSizeAdd

	return opts
}

// applyViper fills every flag not set on the command line from the
// environment or the config file.
func applyViper(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("invalid value for %s: %w", f.Name, err))
			}
		}
	})

	return errors.Join(errs...)
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("EMOTIMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := emotimatch.DefaultOptions()

	cmd := &cobra.Command{
		Use:           "emotimatch",
		Short:         "A party game where everyone races to spot the one emoji on every card.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.configFile != "" {
				v.SetConfigFile(cfg.configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config file: %w", err)
				}
			}
			return applyViper(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: EMOTIMATCH_BIND)")
	fs.StringVarP(&cfg.configFile, "config", "c", "", "path to config file (json, yaml or toml) (env: EMOTIMATCH_CONFIG)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 9, "maximum number of players per room (env: EMOTIMATCH_MAX_PLAYERS)")
	fs.IntVar(&cfg.maxRooms, "max-rooms", 9, "maximum number of concurrent rooms (env: EMOTIMATCH_MAX_ROOMS)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 1*time.Minute, "time before disconnected players are removed (env: EMOTIMATCH_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: EMOTIMATCH_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: EMOTIMATCH_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: EMOTIMATCH_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are removed (env: EMOTIMATCH_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: EMOTIMATCH_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: EMOTIMATCH_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: EMOTIMATCH_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: EMOTIMATCH_VERSION)")

	fs.IntVar(&cfg.rounds, "rounds", defaults.Rounds, "rounds per game (env: EMOTIMATCH_ROUNDS)")
	fs.DurationVar(&cfg.roundPrepareDelay, "round-prepare-delay", defaults.RoundPrepareDelay, "delay before a round is dealt (env: EMOTIMATCH_ROUND_PREPARE_DELAY)")
	fs.DurationVar(&cfg.roundStartDelay, "round-start-delay", defaults.RoundStartDelay, "delay between dealing and revealing cards (env: EMOTIMATCH_ROUND_START_DELAY)")
	fs.DurationVar(&cfg.roundMaxTime, "round-max-time", defaults.RoundMaxTime, "time allowed to find the solution (env: EMOTIMATCH_ROUND_MAX_TIME)")
	fs.DurationVar(&cfg.penaltyTime, "penalty-time", defaults.PenaltyTime, "time a player is blocked after a wrong answer (env: EMOTIMATCH_PENALTY_TIME)")
	fs.DurationVar(&cfg.gameFinishDelay, "game-finish-delay", defaults.GameFinishDelay, "delay before final ranks are announced (env: EMOTIMATCH_GAME_FINISH_DELAY)")
	fs.IntVar(&cfg.cardSize, "card-size", defaults.CardSize, "symbols per card in the first round (env: EMOTIMATCH_CARD_SIZE)")
	fs.Float64Var(&cfg.winCardSizeAdd, "win-card-size-add", defaults.WinCardSizeAdd, "symbols added to a card per round won (env: EMOTIMATCH_WIN_CARD_SIZE_ADD)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("emotimatch v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
