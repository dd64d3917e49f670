package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// bundle is the on-disk shape a definition file decodes into: a flat
// list of agents and workflows, scoped to the two definition types
// this catalog owns.
type bundle struct {
	Agents    []model.AgentDef    `yaml:"agents"`
	Workflows []model.WorkflowDef `yaml:"workflows"`
}

// LoadFile reads path, expands environment variable references in its
// string values, and upserts every agent and workflow it declares into
// the catalog. Returns the number of definitions actually changed.
func (c *Catalog) LoadFile(path string) (changed int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, corerr.New(component, "LoadFile", corerr.ErrStorageUnavailable, "read "+path, err)
	}
	return c.LoadBytes(data)
}

// LoadBytes parses data as a definition bundle and upserts its
// contents into the catalog.
func (c *Catalog) LoadBytes(data []byte) (changed int, err error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return 0, corerr.New(component, "LoadBytes", corerr.ErrValidation, "parse yaml", err)
	}
	expanded := ExpandEnvVarsInData(raw)

	reencoded, err := yaml.Marshal(expanded)
	if err != nil {
		return 0, corerr.New(component, "LoadBytes", corerr.ErrInternal, "re-encode expanded yaml", err)
	}

	var b bundle
	if err := yaml.Unmarshal(reencoded, &b); err != nil {
		return 0, corerr.New(component, "LoadBytes", corerr.ErrValidation, "decode bundle", err)
	}

	for _, def := range b.Agents {
		ok, err := c.UpsertAgentDef(def)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	for _, def := range b.Workflows {
		ok, err := c.UpsertWorkflowDef(def)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}
