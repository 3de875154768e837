package qc

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// FlagstatsFromBAM derives a BamFlagstats result for one position directly
// from an alignment file, for runs whose QC folder predates the JSON
// flagstats writer.  TotalReads counts every primary record (secondary and
// supplementary alignments are the same physical read seen again, so they
// are excluded), which matches the total_reads field the downstream
// pipeline serializes.
func FlagstatsFromBAM(ctx context.Context, idRun, position int, path string) (r Result, err error) {
	r = Result{Category: BamFlagstats, IDRun: idRun, Position: position}
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return r, errors.E(err, "flagstats: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return r, errors.E(err, "flagstats: read header", path)
	}
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return r, errors.E(err, "flagstats: read record", path)
		}
		if rec.Flags&(sam.Secondary|sam.Supplementary) == 0 {
			r.TotalReads++
		}
		sam.PutInFreePool(rec)
	}
	return r, nil
}
