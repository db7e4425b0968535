package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/archive-extract/extract"
	"github.com/dhcgn/archive-extract/filter"
)

// Global holds the options shared by every subcommand.
type Global struct {
	LogLevel string
	LogDir   string
}

// Filters holds the regex filter flags.
type Filters struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

func (f Filters) Options() filter.Options {
	return filter.Options{
		IncludeHeader: f.IncludeHeader,
		IncludeBody:   f.IncludeBody,
		ExcludeHeader: f.ExcludeHeader,
		ExcludeBody:   f.ExcludeBody,
	}
}

// ExtractConfig captures the options of the extract command.
type ExtractConfig struct {
	Global
	Filters

	Paths         []string
	OutputDir     string
	AttachmentDir string
	Format        extract.Format
	MaxDepth      int
	SkipEmpty     bool
	Verbose       bool
	// PrefixContainer is nil when the flag was not given; the command then
	// decides from the number of containers.
	PrefixContainer *bool
	Readpst         string
	ProbeTimeout    time.Duration
}

// InspectConfig captures the options of the inspect command.
type InspectConfig struct {
	Global
	Filters

	Path         string
	ReportDir    string
	Top          int
	Readpst      string
	ProbeTimeout time.Duration
}

// PushConfig captures the options of the push command.
type PushConfig struct {
	Global
	Filters

	Dir                string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	StateDir           string
	DryRun             bool
}

// RegisterGlobalFlags attaches the persistent logging flags to the root command.
func RegisterGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (stdout only when empty)")
}

func registerFilterFlags(cmd *cobra.Command, what string) {
	flags := cmd.Flags()
	flags.StringArray("include-header", nil, "Regex allow-list applied to "+what+" headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to "+what+" bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to "+what+" headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to "+what+" bodies (mutually exclusive with include flags)")
}

// RegisterExtractFlags attaches the extract flags.
func RegisterExtractFlags(cmd *cobra.Command) error {
	defaults := extract.DefaultOptions()

	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Output directory for extracted items")
	flags.StringP("attachments", "a", "", "Attachment directory (default <output>/attachments)")
	flags.String("format", defaults.Format.String(), "Message format: eml or txt")
	flags.Int("max-depth", defaults.MaxDepth, "Maximum folder depth below the root, -1 for unlimited")
	flags.Bool("skip-empty", defaults.SkipEmpty, "Do not create directories for folders without content")
	flags.Bool("verbose", false, "Log every item that could not be written")
	flags.Bool("prefix-container", false, "Prefix file names with the container name (default on when extracting several containers)")
	flags.String("readpst", "readpst", "External converter binary for PST files")
	flags.Duration("probe-timeout", extract.DefaultProbeTimeout, "Timeout for the external converter availability check")
	registerFilterFlags(cmd, "mbox message")

	return cmd.MarkFlagRequired("output")
}

// RegisterInspectFlags attaches the inspect flags.
func RegisterInspectFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("report-dir", "", "Write CSV reports of the top header values to this directory")
	flags.IntP("top", "t", 10, "Number of top items to display")
	flags.String("readpst", "readpst", "External converter binary for PST files")
	flags.Duration("probe-timeout", extract.DefaultProbeTimeout, "Timeout for the external converter availability check")
	registerFilterFlags(cmd, "mbox message")
}

// RegisterPushFlags attaches the push flags.
func RegisterPushFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("dir", "", "Directory with extracted .eml files")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("target-folder", "INBOX", "Target IMAP folder for uploaded mail")
	flags.String("state-dir", defaultStateDir, "Directory for incremental sync state files")
	flags.Bool("dry-run", false, "Simulate the upload and emit stats without touching the server")
	registerFilterFlags(cmd, "message")

	for _, name := range []string{"dir", "imap-host", "imap-user"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			return err
		}
	}
	return nil
}

// LoadGlobal reads the persistent flags.
func LoadGlobal(cmd *cobra.Command) (Global, error) {
	flags := cmd.Flags()

	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Global{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Global{}, err
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	g := Global{LogLevel: logLevel, LogDir: logDir}
	if err := validateGlobal(g); err != nil {
		return Global{}, err
	}
	return g, nil
}

func loadFilters(cmd *cobra.Command) (Filters, error) {
	flags := cmd.Flags()

	includeHeader, err := flags.GetStringArray("include-header")
	if err != nil {
		return Filters{}, err
	}
	includeBody, err := flags.GetStringArray("include-body")
	if err != nil {
		return Filters{}, err
	}
	excludeHeader, err := flags.GetStringArray("exclude-header")
	if err != nil {
		return Filters{}, err
	}
	excludeBody, err := flags.GetStringArray("exclude-body")
	if err != nil {
		return Filters{}, err
	}

	f := Filters{
		IncludeHeader: includeHeader,
		IncludeBody:   includeBody,
		ExcludeHeader: excludeHeader,
		ExcludeBody:   excludeBody,
	}
	if err := validateFilters(f); err != nil {
		return Filters{}, err
	}
	return f, nil
}

// LoadExtractConfig converts the parsed flags and arguments of the extract
// command into an ExtractConfig.
func LoadExtractConfig(cmd *cobra.Command, args []string) (ExtractConfig, error) {
	global, err := LoadGlobal(cmd)
	if err != nil {
		return ExtractConfig{}, err
	}
	filters, err := loadFilters(cmd)
	if err != nil {
		return ExtractConfig{}, err
	}

	flags := cmd.Flags()
	outputDir, err := flags.GetString("output")
	if err != nil {
		return ExtractConfig{}, err
	}
	attachmentDir, err := flags.GetString("attachments")
	if err != nil {
		return ExtractConfig{}, err
	}
	formatName, err := flags.GetString("format")
	if err != nil {
		return ExtractConfig{}, err
	}
	maxDepth, err := flags.GetInt("max-depth")
	if err != nil {
		return ExtractConfig{}, err
	}
	skipEmpty, err := flags.GetBool("skip-empty")
	if err != nil {
		return ExtractConfig{}, err
	}
	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return ExtractConfig{}, err
	}
	readpst, err := flags.GetString("readpst")
	if err != nil {
		return ExtractConfig{}, err
	}
	probeTimeout, err := flags.GetDuration("probe-timeout")
	if err != nil {
		return ExtractConfig{}, err
	}

	var prefix *bool
	if flags.Changed("prefix-container") {
		v, err := flags.GetBool("prefix-container")
		if err != nil {
			return ExtractConfig{}, err
		}
		prefix = &v
	}

	format, err := extract.ParseFormat(formatName)
	if err != nil {
		return ExtractConfig{}, fmt.Errorf("--format: %w", err)
	}

	if strings.TrimSpace(outputDir) != "" {
		outputDir = filepath.Clean(outputDir)
	}
	if attachmentDir == "" && outputDir != "" {
		attachmentDir = filepath.Join(outputDir, "attachments")
	}
	if maxDepth < 0 {
		maxDepth = extract.Unbounded
	}

	cfg := ExtractConfig{
		Global:          global,
		Filters:         filters,
		Paths:           args,
		OutputDir:       outputDir,
		AttachmentDir:   attachmentDir,
		Format:          format,
		MaxDepth:        maxDepth,
		SkipEmpty:       skipEmpty,
		Verbose:         verbose,
		PrefixContainer: prefix,
		Readpst:         readpst,
		ProbeTimeout:    probeTimeout,
	}

	if err := validateExtract(cfg); err != nil {
		return ExtractConfig{}, err
	}
	return cfg, nil
}

// LoadInspectConfig converts the parsed flags of the inspect command.
func LoadInspectConfig(cmd *cobra.Command, args []string) (InspectConfig, error) {
	global, err := LoadGlobal(cmd)
	if err != nil {
		return InspectConfig{}, err
	}
	filters, err := loadFilters(cmd)
	if err != nil {
		return InspectConfig{}, err
	}

	flags := cmd.Flags()
	reportDir, err := flags.GetString("report-dir")
	if err != nil {
		return InspectConfig{}, err
	}
	top, err := flags.GetInt("top")
	if err != nil {
		return InspectConfig{}, err
	}
	readpst, err := flags.GetString("readpst")
	if err != nil {
		return InspectConfig{}, err
	}
	probeTimeout, err := flags.GetDuration("probe-timeout")
	if err != nil {
		return InspectConfig{}, err
	}

	if len(args) != 1 {
		return InspectConfig{}, fmt.Errorf("exactly one container path is required")
	}
	if top <= 0 {
		return InspectConfig{}, fmt.Errorf("--top must be positive")
	}
	if probeTimeout <= 0 {
		return InspectConfig{}, fmt.Errorf("--probe-timeout must be positive")
	}

	return InspectConfig{
		Global:       global,
		Filters:      filters,
		Path:         args[0],
		ReportDir:    reportDir,
		Top:          top,
		Readpst:      readpst,
		ProbeTimeout: probeTimeout,
	}, nil
}

// LoadPushConfig converts the parsed flags of the push command.
func LoadPushConfig(cmd *cobra.Command) (PushConfig, error) {
	global, err := LoadGlobal(cmd)
	if err != nil {
		return PushConfig{}, err
	}
	filters, err := loadFilters(cmd)
	if err != nil {
		return PushConfig{}, err
	}

	flags := cmd.Flags()
	dir, err := flags.GetString("dir")
	if err != nil {
		return PushConfig{}, err
	}
	imapHost, err := flags.GetString("imap-host")
	if err != nil {
		return PushConfig{}, err
	}
	imapPort, err := flags.GetInt("imap-port")
	if err != nil {
		return PushConfig{}, err
	}
	imapUser, err := flags.GetString("imap-user")
	if err != nil {
		return PushConfig{}, err
	}
	imapPass, err := flags.GetString("imap-pass")
	if err != nil {
		return PushConfig{}, err
	}
	useTLS, err := flags.GetBool("use-tls")
	if err != nil {
		return PushConfig{}, err
	}
	insecureSkipVerify, err := flags.GetBool("insecure-skip-verify")
	if err != nil {
		return PushConfig{}, err
	}
	targetFolder, err := flags.GetString("target-folder")
	if err != nil {
		return PushConfig{}, err
	}
	stateDir, err := flags.GetString("state-dir")
	if err != nil {
		return PushConfig{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return PushConfig{}, err
	}

	if imapPass == "" {
		imapPass = os.Getenv("IMAP_PASS")
	}
	if stateDir == "" {
		stateDir, err = defaultStateDir()
		if err != nil {
			return PushConfig{}, err
		}
	}

	cfg := PushConfig{
		Global:             global,
		Filters:            filters,
		Dir:                dir,
		IMAPHost:           imapHost,
		IMAPPort:           imapPort,
		IMAPUser:           imapUser,
		IMAPPass:           imapPass,
		UseTLS:             useTLS,
		InsecureSkipVerify: insecureSkipVerify,
		TargetFolder:       targetFolder,
		StateDir:           filepath.Clean(stateDir),
		DryRun:             dryRun,
	}

	if err := validatePush(cfg); err != nil {
		return PushConfig{}, err
	}
	return cfg, nil
}

func validateGlobal(g Global) error {
	switch g.LogLevel {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid --log-level: %s", g.LogLevel)
	}
}

func validateFilters(f Filters) error {
	includeActive := len(f.IncludeHeader) > 0 || len(f.IncludeBody) > 0
	excludeActive := len(f.ExcludeHeader) > 0 || len(f.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}
	return nil
}

func validateExtract(cfg ExtractConfig) error {
	if len(cfg.Paths) == 0 {
		return fmt.Errorf("at least one container path is required")
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("--output is required")
	}
	if cfg.ProbeTimeout <= 0 {
		return fmt.Errorf("--probe-timeout must be positive")
	}
	return nil
}

func validatePush(cfg PushConfig) error {
	if cfg.Dir == "" {
		return fmt.Errorf("--dir is required")
	}
	if cfg.IMAPHost == "" {
		return fmt.Errorf("--imap-host is required")
	}
	if cfg.IMAPUser == "" {
		return fmt.Errorf("--imap-user is required")
	}
	if cfg.IMAPPass == "" && !cfg.DryRun {
		return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
	}
	if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
		return fmt.Errorf("--imap-port must be between 1 and 65535")
	}
	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".archive-extract", "state"), nil
}
