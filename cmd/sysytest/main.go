// sysytest is the golden-file test runner for the compiler: it compiles every
// matching SysY source in both modes and diffs the emitted Koopa IR and RISC-V
// assembly against cached golden files. Identical inputs are detected by
// content hash and compiled only once.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

var (
	compiler  = flag.String("compiler", "./sysyc", "Path to the compiler under test.")
	testFiles = flag.String("test-files", "testdata/*.sy", "Glob pattern(s) for files to test (space-separated).")
	skipFiles = flag.String("skip-files", "", "Files to skip (space-separated).")
	modes     = flag.String("modes", "koopa,riscv", "Comma-separated output modes to check.")
	update    = flag.Bool("update", false, "Regenerate the golden files instead of comparing.")
	goldenDir = flag.String("dir", "", "Directory for golden files (defaults to the source file dir).")
	jobs      = flag.Int("j", 4, "Number of parallel test jobs.")
	timeout   = flag.Duration("timeout", 10*time.Second, "Timeout for each compiler invocation.")
	verbose   = flag.Bool("v", false, "Enable verbose logging.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

type fileResult struct {
	File    string
	Status  string // PASS, FAIL, SKIP, ERROR
	Message string
	Diff    string
}

func main() {
	flag.Parse()
	log.SetFlags(0)

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s invalid glob pattern(s): %v", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		abs, _ := filepath.Abs(f)
		skipList[abs] = true
	}

	tempDir, err := os.MkdirTemp("", "sysytest-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s failed to create temp directory: %v", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)

	tasks := make(chan string, len(files))
	resultsChan := make(chan *fileResult, len(files))
	var wg sync.WaitGroup
	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(file, tempDir)
			}
		}()
	}

	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &fileResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		hash, err := hashFile(file)
		if err != nil {
			resultsChan <- &fileResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to hash source file: %v", err)}
			continue
		}
		if original, seen := seenHashes[hash]; seen {
			resultsChan <- &fileResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seenHashes[hash] = file
		tasks <- file
	}
	close(tasks)
	wg.Wait()
	close(resultsChan)

	var results []*fileResult
	for r := range resultsChan {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })

	failed := printSummary(results)
	if failed {
		os.Exit(1)
	}
}

// hashFile computes the xxhash of a file's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func goldenPath(sourceFile, mode string) string {
	ext := ".koopa"
	if mode == "riscv" {
		ext = ".S"
	}
	name := filepath.Base(sourceFile) + ext
	if *goldenDir != "" {
		return filepath.Join(*goldenDir, name)
	}
	return filepath.Join(filepath.Dir(sourceFile), name)
}

func testFile(file, tempDir string) *fileResult {
	for _, mode := range strings.Split(*modes, ",") {
		mode = strings.TrimSpace(mode)
		output, stderr, err := compileFile(file, mode, tempDir)
		if err != nil {
			return &fileResult{
				File:    file,
				Status:  "FAIL",
				Message: fmt.Sprintf("compiler failed in -%s mode", mode),
				Diff:    stderr,
			}
		}

		golden := goldenPath(file, mode)
		if *update {
			if *goldenDir != "" {
				if err := os.MkdirAll(*goldenDir, 0755); err != nil {
					return &fileResult{File: file, Status: "ERROR", Message: err.Error()}
				}
			}
			if err := os.WriteFile(golden, output, 0644); err != nil {
				return &fileResult{File: file, Status: "ERROR", Message: err.Error()}
			}
			continue
		}

		expected, err := os.ReadFile(golden)
		if err != nil {
			return &fileResult{File: file, Status: "SKIP", Message: fmt.Sprintf("no golden file for -%s (run with -update)", mode)}
		}
		if diff := cmp.Diff(string(expected), string(output)); diff != "" {
			return &fileResult{
				File:    file,
				Status:  "FAIL",
				Message: fmt.Sprintf("-%s output differs from %s", mode, golden),
				Diff:    diff,
			}
		}
	}
	if *update {
		return &fileResult{File: file, Status: "PASS", Message: "golden files updated"}
	}
	return &fileResult{File: file, Status: "PASS", Message: "all modes match"}
}

func compileFile(file, mode, tempDir string) (output []byte, stderr string, err error) {
	hash, err := hashFile(file)
	if err != nil {
		return nil, "", err
	}
	outPath := filepath.Join(tempDir, hash+"."+mode)
	cmd := exec.Command(*compiler, "-"+mode, file, "-o", outPath)
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		return nil, "", err
	}
	go func() { done <- cmd.Wait() }()
	select {
	case err = <-done:
	case <-time.After(*timeout):
		_ = cmd.Process.Kill()
		return nil, errBuf.String(), fmt.Errorf("timed out after %s", *timeout)
	}
	if err != nil {
		return nil, errBuf.String(), err
	}
	output, err = os.ReadFile(outPath)
	return output, errBuf.String(), err
}

func printSummary(results []*fileResult) bool {
	var passed, failed, skipped, errored int
	for _, r := range results {
		switch r.Status {
		case "PASS":
			passed++
			if *verbose {
				fmt.Printf("[%sPASS%s] %s%s%s: %s\n", cGreen, cNone, cCyan, r.File, cNone, r.Message)
			}
		case "FAIL":
			failed++
			fmt.Printf("[%sFAIL%s] %s%s%s: %s\n", cRed, cNone, cCyan, r.File, cNone, r.Message)
			if r.Diff != "" {
				fmt.Println(formatDiff(r.Diff))
			}
		case "SKIP":
			skipped++
			if *verbose {
				fmt.Printf("[%sSKIP%s] %s: %s\n", cYellow, cNone, r.File, r.Message)
			}
		case "ERROR":
			errored++
			fmt.Printf("[%sERROR%s] %s: %s\n", cRed, cNone, r.File, r.Message)
		}
	}
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	return failed > 0 || errored > 0
}

func formatDiff(diff string) string {
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmed, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
