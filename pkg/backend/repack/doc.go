// Package repack produces pruned daily files by running the miniSEED
// command line tools.
//
// dataselect reads the target file and its neighbours, sorts the records,
// optionally removes overlaps and trims to the day window. When re-blocking
// is requested its output is piped into msrepack:
//
//	r := repack.New(repack.Config{})
//	var buf bytes.Buffer
//	err := r.Repack(ctx, backend.RepackRequest{
//		Inputs:        paths,
//		Start:         f.SampleStart(),
//		End:           f.SampleEnd(),
//		CutBoundaries: true,
//		Quality:       quality.Pruned,
//	}, &buf)
//
// Commands run through a Runner so tests can replace the child processes.
package repack
