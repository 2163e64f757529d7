package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// defaultPrompts seeds the prompt pool when no --prompts flag is given.
// The host can replace the pool at any time with a set_prompts message.
var defaultPrompts = []string{
	"The worst superhero power",
	"A terrible name for a cruise ship",
	"The last thing you'd want to find in your closet",
	"If you were alone on an island, you would like to have...",
}

type Config struct {
	answerGrace    time.Duration
	bind           string
	dedupeInterval time.Duration
	port           int
	prefix         string
	profile        bool
	prompts        []string
	resultsDelay   time.Duration
	roundDelay     time.Duration
	rounds         int
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
	votingTimeout  time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.rounds < 1 {
		return fmt.Errorf("invalid round count (must be at least 1): %d", c.rounds)
	}
	if len(c.prompts) == 0 {
		return errors.New("prompt pool must not be empty")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("QUIPBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quipbox",
		Short:         "A prompt-and-vote party game server, one session per shareable game link.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
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

	fs.DurationVar(&cfg.answerGrace, "answer-grace", 3*time.Second, "delay between the last answer arriving and voting opening (env: QUIPBOX_ANSWER_GRACE)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIPBOX_BIND)")
	fs.DurationVar(&cfg.dedupeInterval, "dedupe-interval", 30*time.Second, "interval between defensive roster dedupe passes (env: QUIPBOX_DEDUPE_INTERVAL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIPBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: QUIPBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: QUIPBOX_PROFILE)")
	fs.StringSliceVar(&cfg.prompts, "prompts", defaultPrompts, "prompt pool for new games (env: QUIPBOX_PROMPTS)")
	fs.DurationVar(&cfg.resultsDelay, "results-delay", 8*time.Second, "time per-question results stay on screen (env: QUIPBOX_RESULTS_DELAY)")
	fs.DurationVar(&cfg.roundDelay, "round-delay", 10*time.Second, "time the scoreboard stays on screen between rounds (env: QUIPBOX_ROUND_DELAY)")
	fs.IntVarP(&cfg.rounds, "rounds", "r", 2, "number of rounds per game (env: QUIPBOX_ROUNDS)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: QUIPBOX_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: QUIPBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: QUIPBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: QUIPBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: QUIPBOX_VERSION)")
	fs.DurationVar(&cfg.votingTimeout, "voting-timeout", 30*time.Second, "maximum time a single question stays open for votes (env: QUIPBOX_VOTING_TIMEOUT)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quipbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
