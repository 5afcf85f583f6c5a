package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFile is the YAML configuration persisted in the user's home.
type ConfigFile struct {
	SourcePath   string   `yaml:"source_path"`
	DestPath     string   `yaml:"dest_path"`
	Suffixes     []string `yaml:"suffixes"`
	ExifTool     string   `yaml:"exiftool"`
	CopyWorkers  int      `yaml:"copy_workers"`
	RenameMotion bool     `yaml:"rename_motion_photos"`
}

func getConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".takeout-fixer.yaml"
	}
	return filepath.Join(home, ".takeout-fixer.yaml")
}

func configExists() bool {
	_, err := os.Stat(getConfigPath())
	return err == nil
}

func loadConfigFile() (*ConfigFile, error) {
	data, err := os.ReadFile(getConfigPath())
	if err != nil {
		return nil, err
	}

	var cfg ConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func saveConfigFile(cfg *ConfigFile) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(getConfigPath(), data, 0644)
}

// runSetupWizard interactively collects configuration on first run and
// saves it to the YAML file.
func runSetupWizard() (*ConfigFile, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Println("║           Takeout Fixer - First Time Setup               ║")
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("This configuration will be saved to:", getConfigPath())
	fmt.Println()

	cfg := &ConfigFile{}

	fmt.Println("1. Where is the extracted photo export located?")
	fmt.Print("   Path: ")
	source, _ := reader.ReadString('\n')
	cfg.SourcePath = normalizePath(strings.TrimSpace(source))

	fmt.Println()
	fmt.Println("2. Where should the fixed library be created?")
	defaultDest := cfg.SourcePath + "_fixed"
	fmt.Printf("   Path [%s]: ", defaultDest)
	dest, _ := reader.ReadString('\n')
	dest = strings.TrimSpace(dest)
	if dest == "" {
		dest = defaultDest
	}
	cfg.DestPath = normalizePath(dest)

	fmt.Println()
	fmt.Println("3. Filename suffixes to try, comma separated, in order.")
	fmt.Println("   The empty suffix is always tried first.")
	fmt.Print("   Suffixes [-edited]: ")
	suffixLine, _ := reader.ReadString('\n')
	suffixLine = strings.TrimSpace(suffixLine)
	cfg.Suffixes = []string{""}
	if suffixLine == "" {
		cfg.Suffixes = append(cfg.Suffixes, "-edited")
	} else {
		for _, s := range strings.Split(suffixLine, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Suffixes = append(cfg.Suffixes, s)
			}
		}
	}

	fmt.Println()
	fmt.Println("4. How many parallel copy workers?")
	fmt.Printf("   (Your system has %d CPUs, recommend %d)\n", runtime.NumCPU(), defaultWorkers())
	fmt.Printf("   Workers [%d]: ", defaultWorkers())
	workersStr, _ := reader.ReadString('\n')
	workersStr = strings.TrimSpace(workersStr)
	if workersStr == "" {
		cfg.CopyWorkers = defaultWorkers()
	} else {
		workers, err := strconv.Atoi(workersStr)
		if err != nil || workers < 1 {
			cfg.CopyWorkers = defaultWorkers()
		} else {
			cfg.CopyWorkers = workers
		}
	}

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println("Configuration Summary:")
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("  Source:    %s\n", cfg.SourcePath)
	fmt.Printf("  Dest:      %s\n", cfg.DestPath)
	fmt.Printf("  Suffixes:  %q\n", cfg.Suffixes)
	fmt.Printf("  Workers:   %d\n", cfg.CopyWorkers)
	fmt.Println()

	fmt.Print("Save this configuration? [Y/n]: ")
	confirm, _ := reader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))
	if confirm == "n" || confirm == "no" {
		fmt.Println("\nSetup cancelled.")
		os.Exit(0)
	}

	if err := saveConfigFile(cfg); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved to:", getConfigPath())
	fmt.Println()
	return cfg, nil
}

// defaultWorkers keeps the machine responsive while copies run.
func defaultWorkers() int {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return workers
}
