// Package checkorchestrator implements the Check Orchestrator (component
// F): enumerates a sealed revision's files, selects checker tasks by
// filename suffix, and records per-member results under a Recorder with
// BLAKE3-keyed cache reuse.
//
// Grounded on the teacher's executor/executor.go (Executor/Registry/Result
// dispatch-by-capability shape, generalized here to dispatch-by-suffix) and
// db/repository/redis.go (SetCache/GetCache pattern, reused for the
// content-hash cache-reuse layer).
package checkorchestrator

import (
	"strings"

	"github.com/apache/atr/internal/taskexecutor"
)

// SuffixTable maps a filename suffix to the checker task types it triggers,
// per §4.F's table.
var SuffixTable = map[string][]taskexecutor.Type{
	".asc":     {taskexecutor.TypeSignatureCheck},
	".sha256":  {taskexecutor.TypeHashingCheck},
	".sha512":  {taskexecutor.TypeHashingCheck},
	".tar.gz":  {taskexecutor.TypeLicenseFiles, taskexecutor.TypeLicenseHeaders, taskexecutor.TypeRATCheck, taskexecutor.TypeTarGzIntegrity, taskexecutor.TypeTarGzStructure},
	".tgz":     {taskexecutor.TypeLicenseFiles, taskexecutor.TypeLicenseHeaders, taskexecutor.TypeRATCheck, taskexecutor.TypeTarGzIntegrity, taskexecutor.TypeTarGzStructure},
	".zip":     {taskexecutor.TypeLicenseFiles, taskexecutor.TypeLicenseHeaders, taskexecutor.TypeRATCheck, taskexecutor.TypeZipFormatIntegrity, taskexecutor.TypeZipFormatStructure},
	".cdx.json": {taskexecutor.TypeSBOMToolScore},
}

// CheckersForFile returns the checker task types triggered by path, matching
// the longest applicable suffix in SuffixTable (so ".tar.gz" is preferred
// over a hypothetical ".gz" entry).
func CheckersForFile(path string) []taskexecutor.Type {
	var best string
	var bestTypes []taskexecutor.Type
	for suffix, types := range SuffixTable {
		if strings.HasSuffix(path, suffix) && len(suffix) > len(best) {
			best = suffix
			bestTypes = types
		}
	}
	return bestTypes
}

// Checker is the plug-in interface of §6: "run(FunctionArguments) ->
// Result?". A Checker does not declare the suffix it consumes; which
// checkers a file gets is decided by the suffix table that CheckersForFile
// reads. Concrete checkers (signature
// verification, RAT invocation, SBOM tooling, archive integrity) are
// external collaborators per §1's Non-goals; this module only defines the
// interface and the dispatch/caching machinery around it.
type Checker interface {
	// Run executes the check and reports its outcome via the Recorder. It
	// does not return a Result directly -- every finding, including
	// per-member-file findings inside an archive, goes through the
	// Recorder so that partial results survive a later failure.
	Run(args FunctionArguments, rec *Recorder) error
}

// Registry is the statically populated checker-task-type -> Checker map,
// mirroring taskexecutor.Registry's "no reflection" dispatch.
type Registry struct {
	checkers map[taskexecutor.Type]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[taskexecutor.Type]Checker)}
}

func (r *Registry) Register(t taskexecutor.Type, c Checker) {
	r.checkers[t] = c
}

func (r *Registry) Get(t taskexecutor.Type) (Checker, bool) {
	c, ok := r.checkers[t]
	return c, ok
}
