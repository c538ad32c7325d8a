package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"lognorm/internal/pipeline"
)

var processOutDir string

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Normalize one file from the shell",
	Long: `Run a single file through the normalization pipeline and write the
processed CSV next to it (or into --out). The preview is printed to stdout.

Examples:
  lognorm process app.log
  lognorm process export.json --out processed/`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processOutDir, "out", "o", "", "output directory (default: alongside the input)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	backend, _, err := buildMetrics(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	p := buildPipeline(cfg, backend)
	res, err := p.Process(cmd.Context(), filepath.Base(path), data)
	if err != nil {
		return err
	}

	outDir := processOutDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	} else if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", outDir, err)
	}
	outPath := filepath.Join(outDir, res.OutputName)
	if err := os.WriteFile(outPath, res.CSV, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	if res.Warning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", res.Warning)
	}
	fmt.Printf("%s: %s, %d rows -> %s\n", filepath.Base(path), res.Format, res.RowCount, outPath)
	printPreview(res, 10)
	return nil
}

// printPreview shows a small slice of the table so a shell user can sanity
// check the mapping without opening the CSV.
func printPreview(res *pipeline.Result, n int) {
	if n > len(res.Preview) {
		n = len(res.Preview)
	}
	fmt.Println(join(res.Columns))
	for i := 0; i < n; i++ {
		fmt.Println(join(res.Preview[i]))
	}
}

func join(cells []string) string {
	out := ""
	for i, c := range cells {
		if i > 0 {
			out += "\t"
		}
		if c == "" {
			c = "-"
		}
		out += c
	}
	return out
}
