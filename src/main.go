package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
)

func main() {
	config := &Config{
		Suffixes:    DefaultSuffixes,
		Mode:        ModeDryRun,
		WriteTags:   true,
		CopyWorkers: defaultWorkers(),
	}

	// Config file fills defaults; flags override
	if configExists() {
		if fileCfg, err := loadConfigFile(); err == nil {
			applyConfigFile(config, fileCfg)
		}
	}

	var suffixList string
	flag.StringVar(&config.SourcePath, "source", config.SourcePath, "Path to the extracted photo export")
	flag.StringVar(&config.DestPath, "dest", config.DestPath, "Output directory (default: <source>_fixed)")
	flag.StringVar(&suffixList, "suffixes", "", "Comma-separated filename suffixes to try in order (empty suffix is always first)")
	flag.IntVar(&config.CopyWorkers, "workers", config.CopyWorkers, "Number of parallel copy workers")
	flag.StringVar(&config.ExifTool, "exiftool", config.ExifTool, "Path to the exiftool binary (default: found on PATH)")
	flag.BoolVar(&config.RenameMotion, "rename-mp", config.RenameMotion, "Rename motion photo sidecars (.MP) to .MP4")
	flag.BoolVar(&config.Verbose, "verbose", false, "Log every file operation")
	execute := flag.Bool("execute", false, "Actually copy and tag files (default is dry run)")
	extend := flag.Bool("extend", false, "Write tags onto an already-processed destination without recopying")
	noTags := flag.Bool("no-tags", false, "Skip exiftool tag writing (timestamps only)")
	noTUI := flag.Bool("no-tui", false, "Disable TUI, use simple CLI output")
	setup := flag.Bool("setup", false, "Re-run the configuration wizard")
	flag.Parse()

	if *setup || (!configExists() && config.SourcePath == "") {
		fileCfg, err := runSetupWizard()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		applyConfigFile(config, fileCfg)
	}

	if suffixList != "" {
		config.Suffixes = []string{""}
		for _, s := range strings.Split(suffixList, ",") {
			if s = strings.TrimSpace(s); s != "" {
				config.Suffixes = append(config.Suffixes, s)
			}
		}
	}
	if *execute {
		config.Mode = ModeProcess
	}
	if *extend {
		config.Mode = ModeExtend
	}
	if *noTags {
		config.WriteTags = false
	}
	config.SourcePath = normalizePath(config.SourcePath)
	if config.DestPath != "" {
		config.DestPath = normalizePath(config.DestPath)
	}

	cancel := &CancelFlag{}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Fprintln(os.Stderr, "\nCancelling... state will be saved for resume")
		cancel.Cancel()
	}()

	if *noTUI {
		runCLI(config, cancel)
	} else {
		runTUI(config, cancel)
	}
}

func applyConfigFile(config *Config, fileCfg *ConfigFile) {
	if fileCfg.SourcePath != "" {
		config.SourcePath = fileCfg.SourcePath
	}
	if fileCfg.DestPath != "" {
		config.DestPath = fileCfg.DestPath
	}
	if len(fileCfg.Suffixes) > 0 {
		config.Suffixes = fileCfg.Suffixes
	}
	if fileCfg.ExifTool != "" {
		config.ExifTool = fileCfg.ExifTool
	}
	if fileCfg.CopyWorkers > 0 {
		config.CopyWorkers = fileCfg.CopyWorkers
	}
	config.RenameMotion = fileCfg.RenameMotion
}

func runCLI(config *Config, cancel *CancelFlag) {
	fmt.Println("Takeout Fixer")
	fmt.Println("=============")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Source:   %s\n", config.SourcePath)
	if config.DestPath != "" {
		fmt.Printf("  Dest:     %s\n", config.DestPath)
	}
	fmt.Printf("  Suffixes: %q\n", config.Suffixes)
	fmt.Printf("  Workers:  %d\n", config.CopyWorkers)
	fmt.Println()
	switch config.Mode {
	case ModeDryRun:
		fmt.Println("Mode: DRY RUN (no changes will be made)")
	case ModeProcess:
		fmt.Println("Mode: PROCESS (files will be copied and tagged)")
	case ModeExtend:
		fmt.Println("Mode: EXTEND (tags written onto existing destination)")
	}
	fmt.Println()

	orch, err := NewOrchestrator(config, cancel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	onProgress := func(current, total int, message string) {
		if total > 0 {
			percent := float64(current) * 100 / float64(total)
			fmt.Printf("\r  [%3.0f%%] %-60s", percent, truncatePath(message, 60))
		} else {
			fmt.Printf("\r  %-70s", truncatePath(message, 70))
		}
	}

	var report *Report
	switch config.Mode {
	case ModeDryRun:
		report, err = orch.DryRun(onProgress)
	case ModeProcess:
		report, err = orch.Process(context.Background(), onProgress)
	case ModeExtend:
		report, err = orch.Extend(context.Background(), onProgress)
	}
	fmt.Println()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printReport(config, report)
}

func printReport(config *Config, report *Report) {
	fmt.Println()
	if report.Cancelled {
		fmt.Println("Run CANCELLED — state saved, re-run to resume.")
	}
	fmt.Printf("Sidecars found:     %d\n", report.SidecarCount)
	fmt.Printf("Media found:        %d\n", report.MediaCount)
	fmt.Printf("Matched:            %d\n", report.MatchedCount)
	if config.Mode == ModeDryRun {
		fmt.Printf("Would tag with GPS: %d\n", report.Stats.WithGPS)
		fmt.Printf("Would tag people:   %d\n", report.Stats.WithPeople)
		fmt.Printf("Unmatched sidecars: %d\n", report.Stats.UnmatchedJSONs)
		fmt.Printf("Unmatched media:    %d\n", report.Stats.UnmatchedMedia)
		if report.ExifToolFound {
			fmt.Printf("ExifTool:           %s\n", report.ExifToolPath)
		} else {
			fmt.Println("ExifTool:           not found (tags would be skipped)")
		}
		fmt.Println("\nThis was a DRY RUN. Use --execute to process files.")
	} else {
		fmt.Printf("Processed:          %d (%s)\n", report.Stats.Processed, humanize.Bytes(uint64(report.Stats.BytesCopied)))
		fmt.Printf("With GPS:           %d\n", report.Stats.WithGPS)
		fmt.Printf("With people:        %d\n", report.Stats.WithPeople)
		fmt.Printf("Errors:             %d copy, %d tag writes\n", report.Stats.Errors, report.Stats.TagWriteErrors)
		fmt.Printf("Unmatched sidecars: %d\n", report.Stats.UnmatchedJSONs)
		fmt.Printf("Unmatched media:    %d\n", report.Stats.UnmatchedMedia)
		if report.OutputDir != "" {
			fmt.Printf("Output:             %s\n", report.OutputDir)
		}
	}
	for _, msg := range report.ConfigErrors {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
	}
}

func runTUI(config *Config, cancel *CancelFlag) {
	p := tea.NewProgram(initialModel(config, cancel), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// truncatePath shortens a path or message for single-line display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen > 10 {
		return "..." + path[len(path)-maxLen+3:]
	}
	return path[:maxLen]
}
