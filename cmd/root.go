package cmd

import (
	u "net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/polyfetch/internal/output"
	"github.com/tanq16/polyfetch/internal/scheduler"
	"github.com/tanq16/polyfetch/internal/utils"
)

var (
	workers       int
	timeout       time.Duration
	kaTimeout     time.Duration
	fetchTimeout  time.Duration
	batchTimeout  time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	accessToken   string
	rateLimit     float64
	apiKey        string
	apiBase       string
	profile       string
	debug         bool
	headers       []string
)

var PolyfetchVersion = "dev"

var globalHTTPConfig utils.HTTPClientConfig

var rootCmd = &cobra.Command{
	Use:     "polyfetch",
	Short:   "Polyfetch downloads Poly models and file batches",
	Version: PolyfetchVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		if userAgent == "randomize" {
			userAgent = utils.GetRandomUserAgent()
		}
		// Check if proxy URL contains auth
		parsedProxy, err := u.Parse(proxyURL)
		if err == nil && parsedProxy.User != nil && proxyUsername == "" {
			proxyUsername = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				proxyPassword = password
			}
			parsedProxy.User = nil
			proxyURL = parsedProxy.String()
		}
		if apiKey == "" {
			apiKey = os.Getenv("POLY_API_KEY")
		}
		globalHTTPConfig = utils.HTTPClientConfig{
			Timeout:       timeout,
			KATimeout:     kaTimeout,
			ProxyURL:      proxyURL,
			ProxyUsername: proxyUsername,
			ProxyPassword: proxyPassword,
			UserAgent:     userAgent,
			Headers:       utils.ParseHeaderArgs(headers),
			AccessToken:   accessToken,
			RateLimit:     rateLimit,
		}
		log.Debug().Str("op", "cmd/root").Int("workers", workers).Str("proxy", proxyURL).Msg("configuration loaded")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func schedulerConfig() scheduler.Config {
	return scheduler.Config{
		Workers:          workers,
		HTTPClientConfig: globalHTTPConfig,
		APIBaseURL:       apiBase,
		APIKey:           apiKey,
		FetchTimeout:     fetchTimeout,
		BatchTimeout:     batchTimeout,
		S3Profile:        profile,
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 1, "Number of jobs to run in parallel")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent (use 'randomize' for a random browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().StringVar(&accessToken, "token", "", "Bearer token sent with every request")
	rootCmd.PersistentFlags().Float64Var(&rateLimit, "rate", 0, "Maximum requests per second (0 for unlimited)")
	rootCmd.PersistentFlags().DurationVar(&fetchTimeout, "fetch-timeout", 0, "Deadline for each file fetch (0 for none)")
	rootCmd.PersistentFlags().DurationVar(&batchTimeout, "batch-timeout", 0, "Deadline for a whole batch (0 for none)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Poly API key (defaults to $POLY_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api-base", "", "Poly API base URL")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "AWS profile for s3:// destinations")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newAssetCmd())
	rootCmd.AddCommand(newFilesCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
}
