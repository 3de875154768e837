package main

/*
runqc-check validates that the cluster counts reported at each stage of a
sequencing run's processing agree with each other.  For every requested
lane it compares the raw and pass-filter totals decoded from the run's
InterOp TileMetrics file against the spatial filter's processed/failed
counts and the final alignment output's read totals, and writes a TSV
report with one row per lane.  Any inconsistency is fatal.
*/

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/runqc/encoding/interop"
	"github.com/grailbio/runqc/jobdef"
	"github.com/grailbio/runqc/qc"
	"github.com/grailbio/runqc/reconcile"
)

var (
	idRun       = flag.Int("id-run", 0, "Run identifier; required")
	interopPath = flag.String("interop", "", "Path to the run's TileMetrics InterOp file; required")
	qcDir       = flag.String("qc-dir", "", "Path to the run's QC result folder; required")
	positions   = flag.String("positions", "", "Comma-separated lane numbers to validate; default is every decoded lane")
	paired      = flag.Bool("paired", false, "The run is paired-read; per-read counts are halved before comparison")
	multiplexed = flag.Bool("multiplexed", false, "Compare against plex-level final output results")
	parallelism = flag.Int("parallelism", 1, "Number of lanes validated concurrently")
	outPath     = flag.String("out", "", "Report TSV path; default stdout")
	printJobs   = flag.Bool("print-jobs", false, "Print per-lane job definitions instead of validating")
)

func usage() {
	fmt.Printf("Usage: %s -id-run N -interop PATH -qc-dir PATH [OPTIONS]\n", os.Args[0])
	flag.PrintDefaults()
}

func parsePositions(s string) ([]int, error) {
	var out []int
	for _, field := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("bad position %q in -positions", field)
		}
		out = append(out, v)
	}
	return out, nil
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if *idRun <= 0 {
		log.Fatalf("-id-run is required and must be positive")
	}
	if *interopPath == "" || *qcDir == "" {
		log.Fatalf("-interop and -qc-dir are required")
	}
	if *parallelism <= 0 {
		log.Fatalf("-parallelism must be positive")
	}
	ctx := vcontext.Background()

	lanes, err := interop.ReadTileMetricsFile(ctx, *interopPath)
	if err != nil {
		log.Fatalf("decoding %s: %v", *interopPath, err)
	}
	var checkPositions []int
	if *positions != "" {
		if checkPositions, err = parsePositions(*positions); err != nil {
			log.Fatalf("%v", err)
		}
	} else {
		for lane := range lanes {
			checkPositions = append(checkPositions, lane)
		}
		sort.Ints(checkPositions)
	}
	if len(checkPositions) == 0 {
		log.Fatalf("run %d: no lanes to validate", *idRun)
	}

	if *printJobs {
		for _, position := range checkPositions {
			def, err := jobdef.New(jobdef.Params{
				IDRun:           *idRun,
				Position:        position,
				TileMetricsPath: *interopPath,
				QCPath:          *qcDir,
				Paired:          *paired,
				Multiplexed:     *multiplexed,
			})
			if err != nil {
				log.Fatalf("building job for position %d: %v", position, err)
			}
			fmt.Printf("%s\t%s\n", def.Name, def.Command)
		}
		return
	}

	results, err := qc.LoadDir(ctx, *qcDir)
	if err != nil {
		log.Fatalf("loading qc results from %s: %v", *qcDir, err)
	}
	checker := reconcile.New(lanes, results, reconcile.Opts{
		IDRun:       *idRun,
		Paired:      *paired,
		Multiplexed: *multiplexed,
	})

	// Lanes are independent; validate them concurrently and keep every
	// verdict so the report is complete even when some lanes fail.
	verdicts := make([]error, len(checkPositions))
	if err := traverse.Limit(*parallelism).Each(len(checkPositions), func(i int) error {
		verdicts[i] = checker.Check(ctx, checkPositions[i])
		return nil
	}); err != nil {
		log.Fatalf("validating positions: %v", err)
	}

	if err := writeReport(ctx, checker, checkPositions, verdicts); err != nil {
		log.Fatalf("writing report: %v", err)
	}
	nFailed := 0
	for i, verdict := range verdicts {
		if verdict != nil {
			nFailed++
			log.Error.Printf("position %d: %v", checkPositions[i], verdict)
		}
	}
	if nFailed > 0 {
		log.Fatalf("run %d: cluster count check failed for %d of %d positions", *idRun, nFailed, len(checkPositions))
	}
	log.Printf("run %d: cluster counts consistent for all %d positions", *idRun, len(checkPositions))
}

func writeReport(ctx context.Context, checker *reconcile.Checker, checkPositions []int, verdicts []error) (err error) {
	var w io.Writer = os.Stdout
	if *outPath != "" {
		var dst file.File
		if dst, err = file.Create(ctx, *outPath); err != nil {
			return err
		}
		defer file.CloseAndReport(ctx, dst, &err)
		w = dst.Writer(ctx)
	}
	report := tsv.NewWriter(w)
	report.WriteString("id_run")
	report.WriteString("position")
	report.WriteString("raw_cluster_count")
	report.WriteString("pf_cluster_count")
	report.WriteString("status")
	report.WriteString("message")
	if err = report.EndLine(); err != nil {
		return err
	}
	for i, position := range checkPositions {
		report.WriteInt64(int64(*idRun))
		report.WriteInt64(int64(position))
		stats, found := checker.Stats(position)
		if found {
			report.WriteInt64(stats.RawClusterCount)
			report.WriteInt64(stats.PFClusterCount)
		} else {
			report.WriteString("NA")
			report.WriteString("NA")
		}
		if verdicts[i] == nil {
			report.WriteString("PASS")
			report.WriteString("")
		} else {
			report.WriteString("FAIL")
			report.WriteString(verdicts[i].Error())
		}
		if err = report.EndLine(); err != nil {
			return err
		}
	}
	return report.Flush()
}
