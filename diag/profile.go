package diag

import (
	"io"
	"strconv"

	"github.com/google/pprof/profile"
)

const pageBytes = 4096

// BorrowedProfile builds a pprof-format profile whose samples are one
// per process, valued by bytes currently borrowed via map_shared_pages.
// Loading it with `go tool pprof` gives an operator the same kind of
// live-memory breakdown a heap profile gives for Go allocations, but
// over shared mappings instead of the Go heap.
func BorrowedProfile(reports []ProcessReport) *profile.Profile {
	valType := &profile.ValueType{Type: "borrowed_bytes", Unit: "bytes"}
	p := &profile.Profile{
		SampleType:        []*profile.ValueType{valType},
		PeriodType:        valType,
		Period:            1,
		DefaultSampleType: "borrowed_bytes",
	}

	for i, r := range reports {
		fn := &profile.Function{ID: uint64(i + 1), Name: "pid:" + strconv.Itoa(r.Pid) + " " + r.Name.String()}
		loc := &profile.Location{ID: uint64(i + 1), Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{r.Usage.BorrowedPages * pageBytes},
			Label:    map[string][]string{"pid": {strconv.Itoa(r.Pid)}},
		})
	}
	return p
}

// WriteProfile serializes p in pprof's gzip-compressed wire format.
func WriteProfile(w io.Writer, p *profile.Profile) error {
	return p.Write(w)
}
