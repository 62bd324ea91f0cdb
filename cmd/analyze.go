package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/ecmsim/ecm"
	"github.com/sarchlab/ecmsim/kernel"
	"github.com/sarchlab/ecmsim/machine"
	"github.com/sarchlab/ecmsim/resultstore"
)

// comparisonTolerance is the relative deviation from a reference result
// above which an analysis run is considered failed.
const comparisonTolerance = 0.1

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE...",
	Short: "Predict per-cache-level cycle costs for loop kernels",
	Long: `Analyze parses each kernel file, simulates its data traffic through ` +
		`the cache hierarchy of the given machine, and prints the predicted ` +
		`cycles per cache line of work for every hierarchy transition. ` +
		`Kernels fail independently; the exit status is non-zero if any ` +
		`kernel fails or any reference comparison deviates by more than 10%.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("machine", "m",
		envDefault("ECMSIM_MACHINE", ""),
		"machine description file")
	analyzeCmd.Flags().StringArrayP("define", "D", nil,
		"bind a kernel constant, NAME=VALUE, overrides testcase constants")
	analyzeCmd.Flags().BoolP("testcases", "t", false,
		"read constants and reference results from the sibling .testcases file")
	analyzeCmd.Flags().IntP("testcase-index", "i", -1,
		"run only the testcase at this index")
	analyzeCmd.Flags().String("store",
		envDefault("ECMSIM_STORE", ""),
		"record predictions in this result database")
	analyzeCmd.Flags().CountP("verbose", "v",
		"print kernel details, repeat for per-level statistics")
}

// analyzeOptions carries the resolved analyze flags.
type analyzeOptions struct {
	machine       *machine.Model
	defines       map[string]int
	useTestcases  bool
	testcaseIndex int
	verbose       int
	writer        resultstore.Writer
	runID         string
}

func runAnalyze(cmd *cobra.Command, args []string) {
	cmd.SilenceUsage = true

	opts, err := resolveAnalyzeOptions(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		atexit.Exit(1)
	}

	if opts.writer != nil {
		defer opts.writer.Close()
	}

	failed := false
	for _, path := range args {
		err := analyzeFile(path, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", kernelName(path), err)
			failed = true
		}
	}

	if failed {
		atexit.Exit(1)
	}
}

func resolveAnalyzeOptions(cmd *cobra.Command) (*analyzeOptions, error) {
	machinePath, _ := cmd.Flags().GetString("machine")
	if machinePath == "" {
		return nil, fmt.Errorf(
			"no machine description given, use --machine or ECMSIM_MACHINE")
	}

	mach, err := machine.Load(machinePath)
	if err != nil {
		return nil, err
	}

	defineArgs, _ := cmd.Flags().GetStringArray("define")
	defines, err := parseDefines(defineArgs)
	if err != nil {
		return nil, err
	}

	opts := &analyzeOptions{
		machine: mach,
		defines: defines,
	}
	opts.useTestcases, _ = cmd.Flags().GetBool("testcases")
	opts.testcaseIndex, _ = cmd.Flags().GetInt("testcase-index")
	opts.verbose, _ = cmd.Flags().GetCount("verbose")

	storePath, _ := cmd.Flags().GetString("store")
	if storePath != "" {
		opts.writer = resultstore.NewWriter(storePath)
		opts.runID = resultstore.NewRunID()
	}

	return opts, nil
}

// parseDefines turns repeated NAME=VALUE flags into a constant binding.
func parseDefines(args []string) (map[string]int, error) {
	defines := make(map[string]int)

	for _, arg := range args {
		name, valueStr, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf(
				"malformed define %q, expected NAME=VALUE", arg)
		}

		value, err := strconv.Atoi(valueStr)
		if err != nil {
			return nil, fmt.Errorf(
				"define %s: %q is not an integer", name, valueStr)
		}

		defines[name] = value
	}

	return defines, nil
}

func analyzeFile(path string, opts *analyzeOptions) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cases := []Testcase{{}}
	if opts.useTestcases {
		cases, err = loadTestcases(path)
		if err != nil {
			return err
		}
	}

	if opts.testcaseIndex >= 0 {
		if opts.testcaseIndex >= len(cases) {
			return fmt.Errorf("testcase index %d out of range, have %d",
				opts.testcaseIndex, len(cases))
		}

		cases = cases[opts.testcaseIndex : opts.testcaseIndex+1]
	}

	name := kernelName(path)

	failures := 0
	for _, tc := range cases {
		err := analyzeCase(name, string(code), tc, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %s: %s\n",
				name, constantsKey(mergeConstants(tc.Constants, opts.defines)),
				err)
			failures++
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d testcases failed", failures, len(cases))
	}

	return nil
}

func analyzeCase(
	name, code string,
	tc Testcase,
	opts *analyzeOptions,
) error {
	constants := mergeConstants(tc.Constants, opts.defines)

	k := kernel.New(code)
	for cName, cValue := range constants {
		k.BindConstant(cName, cValue)
	}

	model, err := k.Process()
	if err != nil {
		return err
	}

	if opts.verbose >= 1 {
		model.Dump(os.Stdout)
	}

	sim := ecm.NewCacheSimulator(model, opts.machine)

	result, err := sim.Calculate()
	if err != nil {
		return err
	}

	fmt.Printf("%s %s: %s\n", name, constantsKey(constants), result)

	if opts.verbose >= 2 {
		printLevelStats(os.Stdout, sim.Stats())
	}

	if opts.writer != nil {
		recordResult(opts.writer, opts.runID, name, constants,
			sim.Name(), result)
	}

	return compareToReference(name, constants, result, tc.Results)
}

// mergeConstants combines testcase constants with command-line defines,
// defines taking precedence.
func mergeConstants(testcase, defines map[string]int) map[string]int {
	merged := make(map[string]int, len(testcase)+len(defines))
	for name, value := range testcase {
		merged[name] = value
	}
	for name, value := range defines {
		merged[name] = value
	}

	return merged
}

// constantsKey renders a constant binding in the canonical sorted form the
// result store groups by, e.g. "M=30,N=50".
func constantsKey(constants map[string]int) string {
	names := make([]string, 0, len(constants))
	for name := range constants {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, constants[name]))
	}

	return strings.Join(parts, ",")
}

func recordResult(
	writer resultstore.Writer,
	runID, kernel string,
	constants map[string]int,
	model string,
	result ecm.Result,
) {
	for _, label := range result.Labels() {
		writer.Record(resultstore.Entry{
			RunID:     runID,
			Kernel:    kernel,
			Constants: constantsKey(constants),
			Model:     model,
			Metric:    label,
			Value:     result[label],
		})
	}
}

func compareToReference(
	name string,
	constants map[string]int,
	result ecm.Result,
	reference map[string]float64,
) error {
	if reference == nil {
		return nil
	}

	fatal := 0
	for _, d := range ecm.Compare(result, reference, comparisonTolerance) {
		if d.Fatal {
			fatal++
			fmt.Fprintf(os.Stderr, "%s %s: %s\n",
				name, constantsKey(constants), d)
		} else {
			fmt.Fprintf(os.Stderr, "Warning: %s %s: %s\n",
				name, constantsKey(constants), d)
		}
	}

	if fatal > 0 {
		return fmt.Errorf("%d metrics deviate from the reference", fatal)
	}

	return nil
}

func printLevelStats(w *os.File, stats []ecm.LevelStats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "level\ttrace\thits\tmisses\tevicts\tlines in\tlines out")
	for _, st := range stats {
		fmt.Fprintf(tw, "L%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			st.Level, st.TraceLength, st.Hits, st.Misses, st.Evicts,
			st.LineMisses, st.LineEvicts)
	}

	tw.Flush()
}

func kernelName(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
