package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/typesift/typesift/internal/log"
	"github.com/typesift/typesift/internal/model"
	"github.com/typesift/typesift/internal/service"
)

var (
	userConfigPath string // default config directory on this OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "typesift")
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is typesift.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initTypesift

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("typesift failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "typesift",
	Short:        "Content detection scan orchestration service",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve runs the scan orchestration HTTP service",
	RunE:  doServe,
}

var scanCmd = &cobra.Command{
	Use:   "scan [path...]",
	Short: "scan runs the detection engines over local paths and prints results",
	RunE:  doScan,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides the typesift build information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("typesift: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("typesift: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
	},
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = log.ContextAttrs(ctx, slog.Group("typesift",
		slog.String("cmd", "serve"),
		slog.Int("pid", os.Getpid()),
	))

	svc, err := service.New(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		_ = svc.Close()
	}()

	return svc.Run(ctx)
}

func doScan(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("typesift",
		slog.String("cmd", "scan"),
		slog.Int("pid", os.Getpid()),
	))

	// the scan command should not touch the service history database
	cfg := config
	cfg.History.Path = ":memory:"

	svc, err := service.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = svc.Close()
	}()

	return svc.LocalScan(ctx, os.Stdout, args...)
}

func initTypesift(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("TYPESIFTCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "typesift.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "typesift.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		enc := yaml.NewEncoder(f)
		if err := enc.Encode(config); err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.ConfigErrDetails(err) {
				slog.Error("config validation", d.Attr("detail"))
			}
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// --verbose has a precedence over the config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	slog.SetDefault(log.New(config.Service))

	slog.Debug("typesift run", "configPath", configPath)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
