package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

func cmdInit(args []string) {
	force := false
	for _, arg := range args {
		if arg == "-f" || arg == "--force" {
			force = true
		}
	}

	projectRoot := GetProjectRoot()
	configPath := ConfigPath(projectRoot)

	if fileExists(configPath) && !force {
		fmt.Fprintf(os.Stderr, "agentbender.config.json already exists at %s\n", configPath)
		fmt.Fprintln(os.Stderr, "Use --force to overwrite.")
		os.Exit(1)
	}

	if err := WriteDefaultConfig(projectRoot); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Initialized agentbender:")
	fmt.Printf("  Config: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit agentbender.config.json (Ollama URL, model, browser)")
	fmt.Println("  2. Run 'agentbender generate <test-cases.json or dir>'")
}

func cmdGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	outDir := fs.String("out", "", "Output directory (default: output.dir from config)")
	workers := fs.Int("workers", 0, "Concurrent test cases (default: performance.maxWorkers)")
	noBrowser := fs.Bool("no-browser", false, "Skip selector stabilization")
	noLLM := fs.Bool("no-llm", false, "Skip the LLM, use the keyword classifier only")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: agentbender generate <file-or-dir> [options]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
	}

	input := resolveInputPath(fs, args)
	if input == "" {
		fs.Usage()
		os.Exit(1)
	}

	projectRoot := GetProjectRoot()
	cfg, err := LoadConfig(projectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dir := *outDir
	if dir == "" {
		dir = cfg.Config.Output.Dir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(projectRoot, dir)
	}

	lock := NewLockFile(dir)
	if err := lock.Acquire(input); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer lock.Release()

	logger, err := NewRunLogger(dir, cfg.Config.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx := context.Background()

	var provider LLMProvider
	if !*noLLM {
		provider, err = buildProvider(&cfg.Config.LLM, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if provider != nil && !provider.IsAvailable(ctx) {
			fmt.Fprintf(os.Stderr, "Warning: %s is not reachable at %s, using the keyword classifier\n",
				cfg.Config.LLM.Provider, cfg.Config.LLM.BaseURL)
			logger.Warnf("provider %s unreachable, classifier only", cfg.Config.LLM.Provider)
			provider = nil
		}
	}

	var probeFactory ProbeFactory
	if !*noBrowser && cfg.Config.Browser.Enabled {
		browser := NewBrowser(&cfg.Config.Browser)
		if err := browser.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: browser unavailable, selectors stay as written: %v\n", err)
		} else {
			defer browser.Close()
			probeFactory = browser.ProbeFactory()
		}
	}

	resolver := NewResolver(ResolverOptions{
		Provider:     provider,
		ProbeFactory: probeFactory,
		Emitter:      NewJSONEmitter(dir),
		Logger:       logger,
		Workers:      pickWorkers(*workers, cfg.Config.Performance.MaxWorkers),
		Temperature:  cfg.Config.LLM.Temperature,
		MaxTokens:    cfg.Config.LLM.MaxTokens,
	})

	var results []*ResolutionResult
	info, statErr := os.Stat(input)
	switch {
	case statErr != nil:
		fmt.Fprintf(os.Stderr, "Error: cannot read %s: %v\n", input, statErr)
		os.Exit(1)
	case info.IsDir():
		results, err = resolver.ResolveDirectory(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		data, readErr := os.ReadFile(input)
		if readErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", readErr)
			os.Exit(1)
		}
		logger.RunStart(input, 1)
		result := resolver.Resolve(ctx, data)
		logger.RunEnd(result.Status != StatusFailed, string(result.Status))
		results = []*ResolutionResult{result}
	}

	failed := printResults(logger, results, dir)
	if failed > 0 {
		os.Exit(1)
	}
}

// printResults summarizes each result and returns the failure count
func printResults(logger *RunLogger, results []*ResolutionResult, outDir string) int {
	failed := 0
	for _, res := range results {
		id := "?"
		title := ""
		if res.TestCase != nil {
			id = res.TestCase.ID
			title = res.TestCase.DisplayTitle()
		}

		switch res.Status {
		case StatusSuccess:
			logger.LogPrintln(fmt.Sprintf("✓ %s: %s (%d pages, %s)", id, title, len(res.Pages), FormatDuration(res.Duration)))
		case StatusPartial:
			logger.LogPrintln(fmt.Sprintf("! %s: %s (%d pages, %d degraded)", id, title, len(res.Pages), res.DegradedPages()))
			for _, w := range res.Warnings {
				fmt.Printf("    └─ %s\n", w)
			}
		default:
			failed++
			logger.LogPrintln(fmt.Sprintf("✗ %s: %s", id, res.Error))
		}
	}

	fmt.Println()
	logger.LogPrint("%d/%d cases resolved, output in %s\n", len(results)-failed, len(results), outDir)
	return failed
}

func cmdValidate(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: agentbender validate <file-or-dir>")
		os.Exit(1)
	}

	paths, err := collectJSONInputs(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	normalizer := NewNormalizer(nil)
	invalid := 0

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			fmt.Printf("✗ %s: %v\n", filepath.Base(p), err)
			invalid++
			continue
		}

		tc, err := normalizer.Normalize(data)
		if err != nil {
			fmt.Printf("✗ %s: %v\n", filepath.Base(p), err)
			invalid++
			continue
		}

		report := ValidateTestCase(tc)
		status := "✓"
		if !report.IsValid {
			status = "✗"
			invalid++
		} else if len(report.Warnings) > 0 {
			status = "!"
		}
		fmt.Printf("%s %s (%s): %s\n", status, filepath.Base(p), tc.ID, report.Summary())
		for _, e := range report.Errors {
			fmt.Printf("    ✗ %s\n", e)
		}
		for _, w := range report.Warnings {
			fmt.Printf("    ! %s\n", w)
		}
		for _, s := range report.Suggestions {
			fmt.Printf("    ○ %s\n", s)
		}
	}

	fmt.Println()
	fmt.Printf("%d/%d files valid\n", len(paths)-invalid, len(paths))
	if invalid > 0 {
		os.Exit(1)
	}
}

func cmdDoctor(args []string) {
	projectRoot := GetProjectRoot()
	issues := 0

	fmt.Println("agentbender Environment Check")
	fmt.Println()

	cfg, err := LoadConfig(projectRoot)
	if err != nil {
		fmt.Printf("✗ config: %v\n", err)
		issues++
	} else {
		if cfg.ConfigPath != "" {
			fmt.Printf("✓ config found: %s\n", filepath.Base(cfg.ConfigPath))
		} else {
			fmt.Printf("○ no config file, using defaults (run 'agentbender init')\n")
		}
	}

	if cfg != nil {
		if cfg.Config.LLM.Provider == "ollama" {
			provider := NewOllamaProvider(cfg.Config.LLM.BaseURL, cfg.Config.LLM.Model,
				10*time.Second, nil)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if provider.IsAvailable(ctx) {
				fmt.Printf("✓ ollama reachable at %s (model: %s)\n", cfg.Config.LLM.BaseURL, cfg.Config.LLM.Model)
			} else {
				fmt.Printf("✗ ollama not reachable at %s (steps fall back to keyword classification)\n", cfg.Config.LLM.BaseURL)
				issues++
			}
			cancel()
		} else {
			fmt.Printf("○ llm provider: %s\n", cfg.Config.LLM.Provider)
		}

		if cfg.Config.Browser.Enabled {
			exe := cfg.Config.Browser.ExecutablePath
			if exe != "" {
				if fileExists(exe) {
					fmt.Printf("✓ browser executable: %s\n", exe)
				} else {
					fmt.Printf("✗ browser executable not found: %s\n", exe)
					issues++
				}
			} else if chromeAvailable() {
				fmt.Printf("✓ chrome/chromium found in PATH\n")
			} else {
				fmt.Printf("✗ no chrome/chromium in PATH (selectors will not be stabilized)\n")
				issues++
			}
		} else {
			fmt.Printf("○ browser disabled, selectors stay as written\n")
		}

		outDir := cfg.Config.Output.Dir
		if !filepath.IsAbs(outDir) {
			outDir = filepath.Join(projectRoot, outDir)
		}
		fmt.Printf("○ output directory: %s\n", outDir)
	}

	fmt.Println()
	if issues > 0 {
		fmt.Printf("%d issue(s) found.\n", issues)
		os.Exit(1)
	}
	fmt.Println("All checks passed.")
}

// chromeBinaries are probed in order by doctor
var chromeBinaries = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}

func chromeAvailable() bool {
	for _, name := range chromeBinaries {
		if isCommandAvailable(name) {
			return true
		}
	}
	return false
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	runNum := fs.Int("run", 0, "Show specific run number (default: latest)")
	listRuns := fs.Bool("list", false, "List all runs")
	tail := fs.Int("tail", 50, "Show last N events")
	follow := fs.Bool("follow", false, "Follow log in real-time")
	fs.BoolVar(follow, "f", false, "Follow log in real-time (shorthand)")
	eventType := fs.String("type", "", "Filter by event type")
	caseID := fs.String("case", "", "Filter by test case ID")
	jsonOutput := fs.Bool("json", false, "Output raw JSONL")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: agentbender logs [options]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	projectRoot := GetProjectRoot()
	cfg, err := LoadConfig(projectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	outDir := cfg.Config.Output.Dir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(projectRoot, outDir)
	}
	logsDir := filepath.Join(outDir, "logs")

	runs, err := listRunLogs(logsDir)
	if err != nil || len(runs) == 0 {
		fmt.Println("No logs found.")
		fmt.Println("Run 'agentbender generate' to create some.")
		return
	}

	if *listRuns {
		fmt.Println("Runs:")
		for _, p := range runs {
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			fmt.Printf("  Run #%d - %s\n", extractRunNumber(filepath.Base(p)),
				info.ModTime().Format("2006-01-02 15:04:05"))
		}
		return
	}

	logPath := runs[0]
	if *runNum > 0 {
		logPath = ""
		for _, p := range runs {
			if extractRunNumber(filepath.Base(p)) == *runNum {
				logPath = p
				break
			}
		}
		if logPath == "" {
			fmt.Fprintf(os.Stderr, "Run #%d not found\n", *runNum)
			os.Exit(1)
		}
	}

	if *follow {
		followLog(logPath, *eventType, *caseID, *jsonOutput)
		return
	}

	printEvents(logPath, *tail, *eventType, *caseID, *jsonOutput)
}

// listRunLogs returns run log paths, most recent first
func listRunLogs(logsDir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(logsDir, "run-*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Slice(paths, func(i, j int) bool {
		return extractRunNumber(filepath.Base(paths[i])) > extractRunNumber(filepath.Base(paths[j]))
	})
	return paths, nil
}

func printEvents(logPath string, tailN int, eventTypeFilter, caseFilter string, jsonOutput bool) {
	events, err := ReadEvents(logPath, &EventFilter{EventType: EventType(eventTypeFilter), CaseID: caseFilter})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading log: %v\n", err)
		os.Exit(1)
	}

	if len(events) > tailN {
		events = events[len(events)-tailN:]
	}

	for _, e := range events {
		if jsonOutput {
			data, _ := json.Marshal(e)
			fmt.Println(string(data))
		} else {
			printEvent(&e)
		}
	}
}

func printEvent(e *Event) {
	timestamp := e.Timestamp.Format("15:04:05")

	switch e.Type {
	case EventRunStart:
		source, _ := e.Data["source"].(string)
		fmt.Printf("[%s] === Run started: %s ===\n", timestamp, source)

	case EventRunEnd:
		result := "failed"
		if e.Success != nil && *e.Success {
			result = "success"
		}
		fmt.Printf("[%s] === Run ended: %s ===\n", timestamp, result)
		if e.Message != "" {
			fmt.Printf("         %s\n", e.Message)
		}

	case EventCaseStart:
		title, _ := e.Data["title"].(string)
		fmt.Printf("[%s] ─── %s: %s ───\n", timestamp, e.CaseID, title)

	case EventCaseEnd:
		status := "✗"
		if e.Success != nil && *e.Success {
			status = "✓"
		}
		duration := ""
		if e.Duration != nil {
			duration = fmt.Sprintf(" (%s)", FormatDuration(time.Duration(*e.Duration)))
		}
		fmt.Printf("[%s] %s %s complete%s\n", timestamp, status, e.CaseID, duration)

	case EventCaseNormalized:
		schema, _ := e.Data["schema"].(string)
		steps, _ := e.Data["steps"].(float64)
		fmt.Printf("[%s]   normalized (%s, %d steps)\n", timestamp, schema, int(steps))

	case EventStepSkipped:
		step, _ := e.Data["step"].(float64)
		reason, _ := e.Data["reason"].(string)
		fmt.Printf("[%s]   ◆ step %d skipped: %s\n", timestamp, int(step), reason)

	case EventInterpretFallback:
		step, _ := e.Data["step"].(float64)
		fmt.Printf("[%s]   ◆ step %d fell back to the classifier\n", timestamp, int(step))

	case EventStabilizeStart:
		page, _ := e.Data["page"].(string)
		url, _ := e.Data["url"].(string)
		fmt.Printf("[%s] → Stabilizing %s (%s)\n", timestamp, page, url)

	case EventStabilizeStep:
		original, _ := e.Data["original"].(string)
		improved, _ := e.Data["improved"].(string)
		fmt.Printf("[%s]   %s → %s\n", timestamp, original, improved)

	case EventStabilizeEnd:
		page, _ := e.Data["page"].(string)
		status := "✓"
		if e.Success != nil && !*e.Success {
			status = "✗"
		}
		improved, _ := e.Data["improved"].(float64)
		fmt.Printf("[%s] %s %s: %d selectors improved\n", timestamp, status, page, int(improved))

	case EventWarning:
		fmt.Printf("[%s] ! Warning: %s\n", timestamp, e.Message)

	case EventError:
		fmt.Printf("[%s] ✗ Error: %s\n", timestamp, e.Message)
		if errMsg, ok := e.Data["error"].(string); ok {
			fmt.Printf("         %s\n", errMsg)
		}

	default:
		fmt.Printf("[%s] %s", timestamp, e.Type)
		if e.CaseID != "" {
			fmt.Printf(" [%s]", e.CaseID)
		}
		if e.Message != "" {
			fmt.Printf(": %s", e.Message)
		}
		fmt.Println()
	}
}

func followLog(logPath, eventTypeFilter, caseFilter string, jsonOutput bool) {
	file, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	file.Seek(0, io.SeekEnd)

	fmt.Printf("Following %s (Ctrl+C to stop)\n\n", logPath)

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		if eventTypeFilter != "" && string(event.Type) != eventTypeFilter {
			continue
		}
		if caseFilter != "" && event.CaseID != caseFilter {
			continue
		}

		if jsonOutput {
			fmt.Println(line)
		} else {
			printEvent(&event)
		}
	}
}

// splitLeadingArg peels a leading non-flag argument off the args
func splitLeadingArg(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", args
	}
	return args[0], args[1:]
}

// resolveInputPath parses fs over args and returns the input path, which
// may come before the flags or after them.
func resolveInputPath(fs *flag.FlagSet, args []string) string {
	input, flagArgs := splitLeadingArg(args)
	fs.Parse(flagArgs)
	if input == "" {
		input = fs.Arg(0)
	}
	return input
}

// collectJSONInputs expands a path into the JSON files it names
func collectJSONInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	paths, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no test case files found in %s", path)
	}
	sort.Strings(paths)
	return paths, nil
}

// pickWorkers resolves the worker count from flag and config
func pickWorkers(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}
