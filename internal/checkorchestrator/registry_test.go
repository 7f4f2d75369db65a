package checkorchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/atr/internal/taskexecutor"
)

func TestCheckersForFilePrefersLongestSuffix(t *testing.T) {
	got := CheckersForFile("apache-foo-1.0-source-release.tar.gz")
	assert.ElementsMatch(t, []taskexecutor.Type{
		taskexecutor.TypeLicenseFiles,
		taskexecutor.TypeLicenseHeaders,
		taskexecutor.TypeRATCheck,
		taskexecutor.TypeTarGzIntegrity,
		taskexecutor.TypeTarGzStructure,
	}, got)
}

func TestCheckersForFileSingleSuffixMatches(t *testing.T) {
	assert.Equal(t, []taskexecutor.Type{taskexecutor.TypeSignatureCheck}, CheckersForFile("apache-foo-1.0.tar.gz.asc"))
	assert.Equal(t, []taskexecutor.Type{taskexecutor.TypeHashingCheck}, CheckersForFile("apache-foo-1.0.tar.gz.sha512"))
}

func TestCheckersForFileNoMatch(t *testing.T) {
	assert.Nil(t, CheckersForFile("README.md"))
}

func TestCheckersForFileCycloneDXSBOM(t *testing.T) {
	assert.Equal(t, []taskexecutor.Type{taskexecutor.TypeSBOMToolScore}, CheckersForFile("apache-foo-1.0.cdx.json"))
}

type stubChecker struct{ called bool }

func (s *stubChecker) Run(args FunctionArguments, rec *Recorder) error {
	s.called = true
	return nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get(taskexecutor.TypeRATCheck)
	assert.False(t, ok)

	checker := &stubChecker{}
	r.Register(taskexecutor.TypeRATCheck, checker)

	got, ok := r.Get(taskexecutor.TypeRATCheck)
	require.True(t, ok)
	assert.Same(t, checker, got)
}
