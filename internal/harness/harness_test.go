package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioGoldens(t *testing.T) {
	scenarios, err := LoadScenarios("testdata")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			result := RunWithGolden(t, scenario)
			assert.True(t, result.Passed)
		})
	}
}

func TestRunDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "ledger_lifecycle.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Relation, second.Relation)
}

func TestRunExpectMismatchFails(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "ledger_lifecycle.yaml"))
	require.NoError(t, err)
	scenario.Expect.Available = 999

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.NotEmpty(t, result.Failures)
}

func TestLoadScenarioValidation(t *testing.T) {
	dir := t.TempDir()

	writeScenario := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	_, err := LoadScenario(writeScenario("noname.yaml", `
resource_type: {name: X, category: goods, unit: u}
steps: [{op: establish_relation, capacity: 1}]
`))
	assert.Error(t, err, "missing name")

	_, err = LoadScenario(writeScenario("nosteps.yaml", `
name: nosteps
resource_type: {name: X, category: goods, unit: u}
steps: []
`))
	assert.Error(t, err, "missing steps")

	_, err = LoadScenario(writeScenario("badcat.yaml", `
name: badcat
resource_type: {name: X, category: vibes, unit: u}
steps: [{op: establish_relation, capacity: 1}]
`))
	assert.Error(t, err, "unknown category")
}

func TestRunUnknownStep(t *testing.T) {
	scenario := &Scenario{
		Name:         "bad",
		ResourceType: ResourceTypeDecl{Name: "X", Category: "goods", Unit: "u"},
		Steps:        []Step{{Op: "establish_relation", Capacity: 1}, {Op: "teleport"}},
	}
	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}
